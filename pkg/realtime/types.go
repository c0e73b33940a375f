package realtime

import (
	"fmt"
)

// Instruction kinds understood by the orchestrator.
const (
	InstructionsSmalltalk = "smalltalk"
	InstructionsConstant  = "constant"
)

// Instructions is the system-prompt payload of a session. The "smalltalk"
// kind selects a built-in casual-conversation prompt; the "constant" kind
// carries the prompt text verbatim.
type Instructions struct {
	Type string `json:"type"`
	Text string `json:"text,omitzero"`
}

// Validate checks that the instruction kind is known and complete.
func (in *Instructions) Validate() error {
	switch in.Type {
	case InstructionsSmalltalk:
		return nil
	case InstructionsConstant:
		if in.Text == "" {
			return fmt.Errorf("realtime: constant instructions require text")
		}
		return nil
	case "":
		return fmt.Errorf("realtime: instructions require a type")
	default:
		return fmt.Errorf("realtime: unknown instructions type %q", in.Type)
	}
}

// SessionConfig is the client-controlled session configuration carried by
// session.update and echoed back in session.updated.
type SessionConfig struct {
	Voice          string        `json:"voice,omitzero"`
	Instructions   *Instructions `json:"instructions,omitzero"`
	AllowRecording bool          `json:"allow_recording,omitzero"`
}

// ErrorDetails is the payload of an error event. Severity is one of
// ErrorSeverityWarning (session continues) or ErrorSeverityFatal (the
// session closes after this event).
type ErrorDetails struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ResponseResource describes a response cycle in response.created.
type ResponseResource struct {
	ID    string `json:"id"`
	Voice string `json:"voice,omitzero"`
}

// clientEnvelope is the raw shape of an inbound message before validation.
type clientEnvelope struct {
	Type    string         `json:"type"`
	Session *SessionConfig `json:"session"`
	Audio   string         `json:"audio"`
}
