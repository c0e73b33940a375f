// Package server exposes the orchestrator over HTTP: the realtime
// WebSocket endpoint for clients plus health and device status routes.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicewire/voicewire/pkg/devices"
	"github.com/voicewire/voicewire/pkg/realtime"
	"github.com/voicewire/voicewire/pkg/session"
	"github.com/voicewire/voicewire/pkg/speech"
)

// writeTimeout bounds one outbound WebSocket write. A client that stops
// reading loses its connection instead of stalling the session.
const writeTimeout = 10 * time.Second

// sessionRunner is the slice of session.Handler the connection loop
// drives.
type sessionRunner interface {
	Start(ctx context.Context) error
	Receive(data []byte) error
	Emit() (*realtime.ServerEvent, error)
	Close() error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithRecordingsDir enables conversation recording for consenting
// sessions.
func WithRecordingsDir(dir string) Option {
	return func(s *Server) { s.recordingsDir = dir }
}

// WithDeviceManager exposes the device status and reconnect routes.
func WithDeviceManager(m *devices.Manager) Option {
	return func(s *Server) { s.manager = m }
}

// Server terminates client connections and the operational surface.
type Server struct {
	services      *speech.Services
	manager       *devices.Manager
	log           *slog.Logger
	recordingsDir string

	upgrader   websocket.Upgrader
	newSession func() sessionRunner
}

// New creates a Server backed by the given services.
func New(services *speech.Services, opts ...Option) *Server {
	s := &Server{
		services: services,
		log:      slog.Default(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{realtime.Subprotocol},
			CheckOrigin:  func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.newSession = func() sessionRunner {
		sessOpts := []session.Option{session.WithLogger(s.log)}
		if s.recordingsDir != "" {
			sessOpts = append(sessOpts, session.WithRecordingsDir(s.recordingsDir))
		}
		return session.New(s.services, sessOpts...)
	}
	return s
}

// Handler returns the HTTP routing for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/realtime", s.handleRealtime)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	if s.manager != nil {
		mux.HandleFunc("GET /v1/devices", s.handleDevices)
		mux.HandleFunc("GET /v1/devices/status", s.handleDevices)
		mux.HandleFunc("POST /v1/devices/{name}/reconnect", s.handleReconnect)
	}
	return mux
}

// handleRealtime upgrades the connection and runs one session over it:
// a read loop feeding Receive and a write loop draining Emit. The write
// loop always drains to the end of the stream, so a session that fails
// at start still delivers its fatal error event before the close.
func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	sess := s.newSession()
	defer sess.Close()
	startErr := sess.Start(r.Context())

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		for {
			evt, err := sess.Emit()
			if err != nil {
				return
			}
			data, err := realtime.Encode(evt)
			if err != nil {
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				sess.Close()
				return
			}
		}
	}()

	if startErr != nil {
		<-writeDone
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		sess.Receive(data)
	}
	sess.Close()
	<-writeDone
}

type healthResponse struct {
	OK       bool              `json:"ok"`
	Services map[string]string `json:"services"`
	Devices  *devices.Counts   `json:"devices,omitzero"`
}

// handleHealth probes all backing services and reports per-service
// readiness. Unhealthy backends yield 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	resp := healthResponse{OK: true, Services: make(map[string]string)}
	for name, err := range s.services.Status(ctx) {
		if err != nil {
			resp.OK = false
			resp.Services[name] = err.Error()
		} else {
			resp.Services[name] = "ok"
		}
	}
	if s.manager != nil {
		counts := s.manager.Counts()
		resp.Devices = &counts
	}

	code := http.StatusOK
	if !resp.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.manager.Reconnect(name); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
