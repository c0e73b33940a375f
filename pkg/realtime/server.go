package realtime

import (
	"encoding/base64"
	"encoding/json"

	"github.com/google/uuid"
)

// ServerEvent is an outbound message. Exactly the fields relevant to its
// Type are populated; zero fields are omitted on the wire.
type ServerEvent struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitzero"`

	// Session echoes the applied configuration (session.updated).
	Session *SessionConfig `json:"session,omitzero"`

	// Response describes a new response cycle (response.created).
	Response *ResponseResource `json:"response,omitzero"`

	// ResponseID ties delta and done events to their response cycle.
	ResponseID string `json:"response_id,omitzero"`

	// Delta carries incremental text, or base64 compressed audio for
	// response.audio.delta.
	Delta string `json:"delta,omitzero"`

	// StartTime is the in-stream offset in seconds of a transcription delta.
	StartTime float64 `json:"start_time,omitzero"`

	// Error carries the problem report for error events.
	Error *ErrorDetails `json:"error,omitzero"`
}

// Encode serializes a server event to its JSON wire form.
func Encode(evt *ServerEvent) ([]byte, error) {
	return json.Marshal(evt)
}

func newEventID() string {
	return "evt_" + uuid.NewString()[:12]
}

// NewSessionUpdated builds the configuration echo event.
func NewSessionUpdated(cfg *SessionConfig) *ServerEvent {
	return &ServerEvent{
		Type:    EventTypeSessionUpdated,
		EventID: newEventID(),
		Session: cfg,
	}
}

// NewResponseCreated announces a new response cycle.
func NewResponseCreated(responseID, voice string) *ServerEvent {
	return &ServerEvent{
		Type:     EventTypeResponseCreated,
		EventID:  newEventID(),
		Response: &ResponseResource{ID: responseID, Voice: voice},
	}
}

// NewTextDelta carries incremental generated text for a response.
func NewTextDelta(responseID, delta string) *ServerEvent {
	return &ServerEvent{
		Type:       EventTypeResponseTextDelta,
		EventID:    newEventID(),
		ResponseID: responseID,
		Delta:      delta,
	}
}

// NewAudioDelta carries one chunk of synthesized compressed audio for a
// response. The payload is base64-encoded here, once, at the boundary.
func NewAudioDelta(responseID string, audio []byte) *ServerEvent {
	return &ServerEvent{
		Type:       EventTypeResponseAudioDelta,
		EventID:    newEventID(),
		ResponseID: responseID,
		Delta:      base64.StdEncoding.EncodeToString(audio),
	}
}

// NewAudioDone marks a response's audio stream as fully emitted.
func NewAudioDone(responseID string) *ServerEvent {
	return &ServerEvent{
		Type:       EventTypeResponseAudioDone,
		EventID:    newEventID(),
		ResponseID: responseID,
	}
}

// NewTranscriptionDelta carries incremental user-speech transcription.
// startTime is the offset in seconds from the start of the input stream.
func NewTranscriptionDelta(delta string, startTime float64) *ServerEvent {
	return &ServerEvent{
		Type:      EventTypeConversationItemInputAudioTranscriptionDelta,
		EventID:   newEventID(),
		Delta:     delta,
		StartTime: startTime,
	}
}

// NewSpeechStarted marks the onset of user speech.
func NewSpeechStarted() *ServerEvent {
	return &ServerEvent{
		Type:    EventTypeInputAudioBufferSpeechStarted,
		EventID: newEventID(),
	}
}

// NewSpeechStopped marks the end of user speech.
func NewSpeechStopped() *ServerEvent {
	return &ServerEvent{
		Type:    EventTypeInputAudioBufferSpeechStopped,
		EventID: newEventID(),
	}
}

// NewWarning reports a recoverable problem; the session stays active.
func NewWarning(message string) *ServerEvent {
	return &ServerEvent{
		Type:    EventTypeError,
		EventID: newEventID(),
		Error:   &ErrorDetails{Type: ErrorSeverityWarning, Message: message},
	}
}

// NewFatal reports a session-ending problem; the connection closes after it.
func NewFatal(message string) *ServerEvent {
	return &ServerEvent{
		Type:    EventTypeError,
		EventID: newEventID(),
		Error:   &ErrorDetails{Type: ErrorSeverityFatal, Message: message},
	}
}
