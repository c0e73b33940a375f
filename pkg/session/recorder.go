package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/voicewire/voicewire/pkg/jsontime"
)

// Recording entry directions.
const (
	recordIn  = "in"
	recordOut = "out"
)

type recordEntry struct {
	Time  jsontime.Milli  `json:"time"`
	Dir   string          `json:"dir"`
	Event json.RawMessage `json:"event"`
}

// Recorder appends session traffic to a per-session JSON-lines file, one
// entry per protocol event in either direction. Opened only when the
// client consented through allow_recording.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// OpenRecorder creates the recordings directory if needed and opens the
// trace file for the given session.
func OpenRecorder(dir, sessionID string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create recordings dir: %w", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open recording: %w", err)
	}
	return &Recorder{f: f, enc: json.NewEncoder(f)}, nil
}

// Record appends one event envelope. The raw bytes must be valid JSON;
// everything that reaches the recorder already passed the protocol codec.
func (r *Recorder) Record(dir string, event []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enc.Encode(recordEntry{
		Time:  jsontime.NowMilli(),
		Dir:   dir,
		Event: json.RawMessage(event),
	})
}

// Close flushes and closes the trace file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}
