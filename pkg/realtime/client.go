package realtime

import (
	"encoding/base64"
	"encoding/json"
)

// ClientEvent is a validated inbound message. Exactly the fields relevant to
// its Type are populated; the rest are zero.
type ClientEvent struct {
	// Type is the event discriminator.
	Type string

	// Session carries the new configuration for session.update.
	Session *SessionConfig

	// Audio carries the decoded compressed audio payload for
	// input_audio_buffer.append.
	Audio []byte

	// Raw is the original JSON message.
	Raw []byte
}

// ParseClientEvent parses and validates one inbound JSON envelope. Unknown
// fields are ignored. A missing or unknown "type", invalid JSON, or missing
// required fields yield a MalformedEventError or ErrUnknownEventType; both
// are recoverable and must not terminate the session.
func ParseClientEvent(data []byte) (*ClientEvent, error) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, malformed("invalid JSON", err)
	}
	if env.Type == "" {
		return nil, malformed("missing type", nil)
	}

	evt := &ClientEvent{Type: env.Type, Raw: data}

	switch env.Type {
	case EventTypeSessionUpdate:
		if env.Session == nil {
			return nil, malformed("session.update requires session", nil)
		}
		if env.Session.Instructions != nil {
			if err := env.Session.Instructions.Validate(); err != nil {
				return nil, malformed("session.update instructions", err)
			}
		}
		evt.Session = env.Session

	case EventTypeInputAudioBufferAppend:
		if env.Audio == "" {
			return nil, malformed("input_audio_buffer.append requires audio", nil)
		}
		audio, err := base64.StdEncoding.DecodeString(env.Audio)
		if err != nil {
			return nil, malformed("audio is not valid base64", err)
		}
		evt.Audio = audio

	default:
		return nil, ErrUnknownEventType
	}

	return evt, nil
}
