package speech

// Message kinds of the msgpack framing shared by the STT and TTS services.
const (
	msgReady   = "Ready"
	msgAudio   = "Audio"
	msgText    = "Text"
	msgWord    = "Word"
	msgPause   = "Pause"
	msgEndTurn = "EndTurn"
	msgEos     = "Eos"
	msgEnd     = "End"
	msgError   = "Error"
)

// wireMessage is the envelope of every msgpack frame. Exactly the fields
// relevant to Type are set.
type wireMessage struct {
	Type string `msgpack:"type"`

	// PCM carries audio samples: uplink to STT, downlink from TTS.
	PCM []float32 `msgpack:"pcm,omitempty"`

	// Text carries a transcription word (STT) or a synthesis chunk (TTS).
	Text string `msgpack:"text,omitempty"`

	// StartTime is the in-stream offset in seconds of a Word.
	StartTime float64 `msgpack:"start_time,omitempty"`

	// Message carries the detail of an Error frame.
	Message string `msgpack:"message,omitempty"`
}

// pcmToFloat32 converts int16 samples to the normalized float form the
// services consume.
func pcmToFloat32(pcm []int16) []float32 {
	out := make([]float32, len(pcm))
	for i, s := range pcm {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// float32ToPCM converts normalized float samples back to int16.
func float32ToPCM(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		switch {
		case s > 1.0:
			out[i] = 32767
		case s < -1.0:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767.0)
		}
	}
	return out
}
