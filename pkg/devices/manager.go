package devices

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicewire/voicewire/pkg/jsontime"
	"github.com/voicewire/voicewire/pkg/realtime"
	"github.com/voicewire/voicewire/pkg/session"
	"github.com/voicewire/voicewire/pkg/speech"
)

// dialTimeout bounds the WebSocket handshake to a device.
const dialTimeout = 10 * time.Second

// ConnectionLostError reports a dropped or failed device connection. It
// feeds the reconnect policy and never crosses to another device.
type ConnectionLostError struct {
	Device string
	Err    error
}

// Error implements the error interface.
func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("devices: %s: connection lost: %v", e.Device, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionLostError) Unwrap() error {
	return e.Err
}

// Status is a point-in-time view of one device connection.
type Status struct {
	Connected bool           `json:"connected"`
	LastError string         `json:"last_error,omitzero"`
	Since     jsontime.Milli `json:"since"`
}

// Counts summarizes the fleet for the health endpoint. Total spans the
// whole registry; only enabled devices are supervised.
type Counts struct {
	Total     int `json:"total"`
	Enabled   int `json:"enabled"`
	Connected int `json:"connected"`
}

// sessionRunner is the slice of session.Handler the manager drives.
type sessionRunner interface {
	Start(ctx context.Context) error
	Receive(data []byte) error
	Emit() (*realtime.ServerEvent, error)
	Close() error
}

// connection is the runtime pairing of a device with its live (or
// absent) outbound connection.
type connection struct {
	device Device
	redial chan struct{}

	mu              sync.Mutex
	ws              *websocket.Conn
	connected       bool
	shouldReconnect bool
	lastErr         error
	since           time.Time
}

func (c *connection) setConnected(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.lastErr = nil
	c.since = time.Now()
	c.mu.Unlock()
}

func (c *connection) setDisconnected(err error) {
	c.mu.Lock()
	c.ws = nil
	c.connected = false
	c.lastErr = err
	c.since = time.Now()
	c.mu.Unlock()
}

func (c *connection) status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{Connected: c.connected, Since: jsontime.Milli(c.since)}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

func (c *connection) keepReconnecting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldReconnect
}

// dropLive closes the live connection, if any, forcing its session loop
// to end.
func (c *connection) dropLive() {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws != nil {
		ws.Close()
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithSessionOptions passes extra options to every session the manager
// creates, such as a recordings directory.
func WithSessionOptions(opts ...session.Option) Option {
	return func(m *Manager) { m.sessionOpts = opts }
}

// Manager supervises one outbound connection per enabled device.
type Manager struct {
	services    *speech.Services
	log         *slog.Logger
	sessionOpts []session.Option

	// newSession builds the per-connection session.
	newSession func(d Device) sessionRunner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// total counts every configured device, enabled or not.
	total int

	mu      sync.Mutex
	conns   map[string]*connection
	started bool
}

// NewManager creates a manager for the enabled devices of cfg.
func NewManager(services *speech.Services, cfg *Config, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		services: services,
		log:      slog.Default(),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.newSession = func(d Device) sessionRunner {
		opts := append([]session.Option{
			session.WithLogger(m.log.With("device", d.Name)),
			session.WithConfig(realtime.SessionConfig{Voice: d.Voice, Instructions: d.Instructions}),
		}, m.sessionOpts...)
		return session.New(m.services, opts...)
	}
	m.total = len(cfg.Devices)
	for _, d := range cfg.Enabled() {
		m.conns[d.Name] = &connection{
			device:          d,
			redial:          make(chan struct{}, 1),
			shouldReconnect: true,
		}
	}
	return m
}

// Start launches one supervision goroutine per device. Returns
// immediately; connecting happens in the background.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		m.wg.Add(1)
		go m.supervise(c)
	}
	m.log.Info("device manager started", "devices", len(conns))
}

// Stop disables reconnection, closes the live connections, cancels any
// pending reconnect waits, and blocks until all supervision goroutines
// have exited.
func (m *Manager) Stop() {
	m.mu.Lock()
	conns := make([]*connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.mu.Lock()
		c.shouldReconnect = false
		c.mu.Unlock()
		c.dropLive()
	}
	m.cancel()
	m.wg.Wait()
	m.log.Info("device manager stopped")
}

// Status returns a snapshot per device name. Never blocks on network.
func (m *Manager) Status() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.conns))
	for name, c := range m.conns {
		out[name] = c.status()
	}
	return out
}

// Counts summarizes connection state across the fleet.
func (m *Manager) Counts() Counts {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := Counts{Total: m.total, Enabled: len(m.conns)}
	for _, c := range m.conns {
		if c.status().Connected {
			counts.Connected++
		}
	}
	return counts
}

// Reconnect forces an immediate redial of one device: a live connection
// is dropped, a pending reconnect wait is cut short.
func (m *Manager) Reconnect(name string) error {
	m.mu.Lock()
	c, ok := m.conns[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("devices: unknown device %q", name)
	}
	select {
	case c.redial <- struct{}{}:
	default:
	}
	c.dropLive()
	return nil
}

// supervise runs the connect/run/reconnect cycle for one device until
// reconnection is disabled or the manager stops.
func (m *Manager) supervise(c *connection) {
	defer m.wg.Done()
	log := m.log.With("device", c.device.Name)

	for {
		if m.ctx.Err() != nil || !c.keepReconnecting() {
			return
		}

		err := m.runOnce(c)
		c.setDisconnected(err)
		if m.ctx.Err() != nil || !c.keepReconnecting() {
			return
		}
		if err != nil {
			log.Warn("device connection failed", "error", err)
		} else {
			log.Info("device connection closed")
		}
		if !c.device.AutoReconnect {
			log.Info("auto reconnect disabled, giving up")
			return
		}

		timer := time.NewTimer(c.device.reconnectDelay())
		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-c.redial:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// runOnce dials the device and runs one session over the connection
// until either side drops it.
func (m *Manager) runOnce(c *connection) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: dialTimeout,
		Subprotocols:     []string{realtime.Subprotocol},
	}
	ws, _, err := dialer.DialContext(m.ctx, c.device.URL(), nil)
	if err != nil {
		return &ConnectionLostError{Device: c.device.Name, Err: err}
	}
	defer ws.Close()

	sess := m.newSession(c.device)
	defer sess.Close()

	// The write pump starts before the session does, so a session that
	// fails at start still delivers its fatal error event to the device
	// before the connection closes.
	writeDone := make(chan error, 1)
	go func() {
		for {
			evt, err := sess.Emit()
			if err != nil {
				writeDone <- nil
				return
			}
			data, err := realtime.Encode(evt)
			if err != nil {
				continue
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				sess.Close()
				writeDone <- err
				return
			}
		}
	}()

	if err := sess.Start(m.ctx); err != nil {
		<-writeDone
		return err
	}
	c.setConnected(ws)
	m.log.Info("device connected", "device", c.device.Name)

	var readErr error
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		sess.Receive(data)
	}
	sess.Close()
	writeErr := <-writeDone

	if readErr != nil {
		return &ConnectionLostError{Device: c.device.Name, Err: readErr}
	}
	if writeErr != nil {
		return &ConnectionLostError{Device: c.device.Name, Err: writeErr}
	}
	return nil
}
