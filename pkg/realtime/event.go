package realtime

// Subprotocol is the WebSocket subprotocol tag negotiated by both the
// inbound client endpoint and outbound device connections.
const Subprotocol = "realtime"

// Client event types (client to server).
const (
	EventTypeSessionUpdate          = "session.update"
	EventTypeInputAudioBufferAppend = "input_audio_buffer.append"
)

// Server event types (server to client).
const (
	EventTypeError = "error"

	EventTypeSessionUpdated = "session.updated"

	EventTypeInputAudioBufferSpeechStarted = "input_audio_buffer.speech_started"
	EventTypeInputAudioBufferSpeechStopped = "input_audio_buffer.speech_stopped"

	EventTypeConversationItemInputAudioTranscriptionDelta = "conversation.item.input_audio_transcription.delta"

	EventTypeResponseCreated    = "response.created"
	EventTypeResponseTextDelta  = "response.text.delta"
	EventTypeResponseAudioDelta = "response.audio.delta"
	EventTypeResponseAudioDone  = "response.audio.done"
)

// Error severities carried in the "error.type" field.
const (
	ErrorSeverityWarning = "warning"
	ErrorSeverityFatal   = "fatal"
)
