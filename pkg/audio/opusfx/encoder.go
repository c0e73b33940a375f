package opusfx

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// opusEncoder is the slice of the Opus encoder API the adapter needs.
// Satisfied by *opus.Encoder; tests substitute a fake.
type opusEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// Encoder converts service-rate PCM into the wire's length-prefixed Opus
// packet stream. One instance per session, single goroutine.
type Encoder struct {
	enc       opusEncoder
	resample  *Resampler
	frameSize int
	pending   []int16
	outBuf    []byte
}

// EncoderOption configures an Encoder.
type EncoderOption func(*encoderConfig)

type encoderConfig struct {
	wireRate int
}

// WithEncoderWireRate sets the sample rate of the outbound Opus stream.
// When it differs from ServiceSampleRate the encoder resamples its input.
// Defaults to ServiceSampleRate.
func WithEncoderWireRate(rate int) EncoderOption {
	return func(c *encoderConfig) {
		c.wireRate = rate
	}
}

// NewEncoder creates an Encoder for a mono Opus stream.
func NewEncoder(opts ...EncoderOption) (*Encoder, error) {
	cfg := encoderConfig{wireRate: ServiceSampleRate}
	for _, opt := range opts {
		opt(&cfg)
	}

	enc, err := opus.NewEncoder(cfg.wireRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("opusfx: create encoder: %w", err)
	}

	e := &Encoder{
		enc:       enc,
		frameSize: cfg.wireRate * int(frameDuration.Milliseconds()) / 1000,
		outBuf:    make([]byte, maxPacketLen),
	}
	if cfg.wireRate != ServiceSampleRate {
		rs, err := NewResampler(ServiceSampleRate, cfg.wireRate)
		if err != nil {
			return nil, err
		}
		e.resample = rs
	}
	return e, nil
}

// Push feeds service-rate PCM into the encoder and returns the wire bytes
// that became available, possibly none: input shorter than one Opus frame
// accumulates until a later call completes the frame.
func (e *Encoder) Push(pcm []int16) ([]byte, error) {
	if e.resample != nil {
		var err error
		pcm, err = e.resample.Process(pcm)
		if err != nil {
			return nil, &CodecError{Op: "resample", Err: err}
		}
	}
	e.pending = append(e.pending, pcm...)

	var out []byte
	for len(e.pending) >= e.frameSize {
		frame := e.pending[:e.frameSize]
		n, err := e.enc.Encode(frame, e.outBuf)
		if err != nil {
			return out, &CodecError{Op: "encode", Err: err}
		}
		out = appendPacket(out, e.outBuf[:n])
		e.pending = e.pending[e.frameSize:]
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return out, nil
}

// Flush pads the pending samples with silence to a full frame and encodes
// it. Used at end of a response so the tail of the audio is not lost.
func (e *Encoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	e.pending = append(e.pending, make([]int16, e.frameSize-len(e.pending))...)

	frame := e.pending[:e.frameSize]
	n, err := e.enc.Encode(frame, e.outBuf)
	e.pending = nil
	if err != nil {
		return nil, &CodecError{Op: "encode", Err: err}
	}
	return appendPacket(nil, e.outBuf[:n]), nil
}
