package speech

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// probeTimeout bounds one health probe.
const probeTimeout = 5 * time.Second

// ProbeWS checks that a WebSocket service accepts connections. The probe
// connection is closed immediately after the handshake.
func ProbeWS(ctx context.Context, service, url string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: probeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return &UnavailableError{Service: service, Err: err}
	}
	return conn.Close()
}

// Services bundles the endpoints of the three backing services. A session
// dials its own client instances from it; the bundle itself holds no
// per-session state apart from the shared LLM HTTP client.
type Services struct {
	STTURL string
	TTSURL string
	LLM    *LLMClient
}

// Probe health-checks all three services and returns the first failure as
// an *UnavailableError. A session whose bundle fails Probe never starts.
func (s *Services) Probe(ctx context.Context) error {
	if err := ProbeWS(ctx, "stt", s.STTURL); err != nil {
		return err
	}
	if err := ProbeWS(ctx, "tts", s.TTSURL); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return s.LLM.Probe(ctx)
}

// Status reports per-service probe results for the health endpoint.
// Keys are service names; a nil value means healthy.
func (s *Services) Status(ctx context.Context) map[string]error {
	return map[string]error{
		"stt": ProbeWS(ctx, "stt", s.STTURL),
		"tts": ProbeWS(ctx, "tts", s.TTSURL),
		"llm": s.LLM.Probe(ctx),
	}
}
