package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/iterator"

	"github.com/voicewire/voicewire/pkg/realtime"
	"github.com/voicewire/voicewire/pkg/speech"
)

func newTestHandler(t *testing.T, b backend, opts ...Option) *Handler {
	t.Helper()
	h := newHandler(b, opts...)
	h.dec = fakeDecoder{}
	h.enc = fakeEncoder{}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

// nextEvent pulls one emitted event, failing the test on stream end,
// error, or timeout.
func nextEvent(t *testing.T, h *Handler) *realtime.ServerEvent {
	t.Helper()
	type result struct {
		evt *realtime.ServerEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		evt, err := h.Emit()
		ch <- result{evt, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Emit: %v", r.err)
		}
		return r.evt
	case <-time.After(3 * time.Second):
		t.Fatal("Emit: timeout waiting for event")
		return nil
	}
}

func expectType(t *testing.T, h *Handler, want string) *realtime.ServerEvent {
	t.Helper()
	evt := nextEvent(t, h)
	if evt.Type != want {
		t.Fatalf("event type = %q, want %q (event %+v)", evt.Type, want, evt)
	}
	return evt
}

func expectDone(t *testing.T, h *Handler) {
	t.Helper()
	type result struct {
		evt *realtime.ServerEvent
		err error
	}
	ch := make(chan result, 1)
	go func() {
		evt, err := h.Emit()
		ch <- result{evt, err}
	}()
	select {
	case r := <-ch:
		if r.err != iterator.Done {
			t.Fatalf("Emit = (%+v, %v), want iterator.Done", r.evt, r.err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Emit: timeout waiting for end of stream")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

func updateJSON(t *testing.T, session map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{"type": "session.update", "session": session})
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	return data
}

func appendJSON(t *testing.T, payload []byte) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(payload),
	})
	if err != nil {
		t.Fatalf("marshal append: %v", err)
	}
	return data
}

func TestStartUnavailableNeverActivates(t *testing.T) {
	b := newFakeBackend()
	b.probeErr = &speech.UnavailableError{Service: "stt", Err: errors.New("connection refused")}

	h := newHandler(b)
	h.dec = fakeDecoder{}
	h.enc = fakeEncoder{}

	err := h.Start(context.Background())
	var unavailable *speech.UnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Start error = %v, want *speech.UnavailableError", err)
	}
	if got := h.State(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}

	evt := expectType(t, h, realtime.EventTypeError)
	if evt.Error.Type != realtime.ErrorSeverityFatal {
		t.Errorf("error severity = %q, want fatal", evt.Error.Type)
	}
	expectDone(t, h)
}

func TestAudioRoundTripToSTT(t *testing.T) {
	b := newFakeBackend()
	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	chunks := [][]byte{{1, 2, 3}, {4, 5}, {6, 7, 8, 9}}
	var want []int16
	for _, chunk := range chunks {
		if err := h.Receive(appendJSON(t, chunk)); err != nil {
			t.Fatalf("Receive: %v", err)
		}
		for _, by := range chunk {
			want = append(want, int16(by))
		}
	}

	waitFor(t, "pcm to reach stt", func() bool { return len(b.stt.received()) == len(want) })
	got := b.stt.received()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pcm[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestCorruptAudioChunkDropped(t *testing.T) {
	b := newFakeBackend()
	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	if err := h.Receive(appendJSON(t, []byte{0xee, 1, 2})); err != nil {
		t.Fatalf("Receive corrupt chunk: %v", err)
	}
	if err := h.Receive(appendJSON(t, []byte{10, 11})); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	waitFor(t, "valid pcm to reach stt", func() bool { return len(b.stt.received()) == 2 })
	if got := b.stt.received(); got[0] != 10 || got[1] != 11 {
		t.Errorf("stt pcm = %v, want [10 11]", got)
	}
	if got := h.State(); got != StateActive {
		t.Errorf("state = %v, want %v", got, StateActive)
	}
}

func TestMalformedEventWarningRecoverable(t *testing.T) {
	b := newFakeBackend()
	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	if err := h.Receive([]byte("{not json")); err != nil {
		t.Fatalf("Receive malformed: %v", err)
	}
	evt := expectType(t, h, realtime.EventTypeError)
	if evt.Error.Type != realtime.ErrorSeverityWarning {
		t.Errorf("severity = %q, want warning", evt.Error.Type)
	}

	if err := h.Receive([]byte(`{"type":"bogus.event"}`)); err != nil {
		t.Fatalf("Receive unknown type: %v", err)
	}
	evt = expectType(t, h, realtime.EventTypeError)
	if evt.Error.Type != realtime.ErrorSeverityWarning {
		t.Errorf("severity = %q, want warning", evt.Error.Type)
	}

	if err := h.Receive(updateJSON(t, map[string]any{"voice": "Gertrude"})); err != nil {
		t.Fatalf("Receive update: %v", err)
	}
	evt = expectType(t, h, realtime.EventTypeSessionUpdated)
	if evt.Session.Voice != "Gertrude" {
		t.Errorf("echoed voice = %q, want Gertrude", evt.Session.Voice)
	}
	if got := h.State(); got != StateActive {
		t.Errorf("state = %v, want %v", got, StateActive)
	}
}

func TestFullResponseCycle(t *testing.T) {
	b := newFakeBackend()
	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	update := updateJSON(t, map[string]any{
		"voice":        "Watercooler",
		"instructions": map[string]any{"type": "smalltalk"},
	})
	if err := h.Receive(update); err != nil {
		t.Fatalf("Receive update: %v", err)
	}
	evt := expectType(t, h, realtime.EventTypeSessionUpdated)
	if evt.Session.Voice != "Watercooler" {
		t.Errorf("echoed voice = %q, want Watercooler", evt.Session.Voice)
	}

	if err := h.Receive(appendJSON(t, []byte{1, 2, 3})); err != nil {
		t.Fatalf("Receive append: %v", err)
	}
	waitFor(t, "pcm to reach stt", func() bool { return len(b.stt.received()) == 3 })

	b.stt.word("hello", 0.5)
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStarted)
	delta := expectType(t, h, realtime.EventTypeConversationItemInputAudioTranscriptionDelta)
	if delta.Delta != "hello" || delta.StartTime != 0.5 {
		t.Errorf("transcription delta = (%q, %v), want (hello, 0.5)", delta.Delta, delta.StartTime)
	}
	b.stt.word("world", 0.9)
	expectType(t, h, realtime.EventTypeConversationItemInputAudioTranscriptionDelta)

	b.stt.endTurn()
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStopped)

	created := expectType(t, h, realtime.EventTypeResponseCreated)
	if created.Response.Voice != "Watercooler" {
		t.Errorf("response voice = %q, want Watercooler", created.Response.Voice)
	}
	respID := created.Response.ID

	var text strings.Builder
	for range 2 {
		ev := expectType(t, h, realtime.EventTypeResponseTextDelta)
		if ev.ResponseID != respID {
			t.Errorf("text delta response id = %q, want %q", ev.ResponseID, respID)
		}
		text.WriteString(ev.Delta)
	}
	if text.String() != "Hi there" {
		t.Errorf("generated text = %q, want %q", text.String(), "Hi there")
	}

	audio := expectType(t, h, realtime.EventTypeResponseAudioDelta)
	if audio.ResponseID != respID {
		t.Errorf("audio delta response id = %q, want %q", audio.ResponseID, respID)
	}
	packet, err := base64.StdEncoding.DecodeString(audio.Delta)
	if err != nil {
		t.Fatalf("audio delta is not base64: %v", err)
	}
	if len(packet) != 3 || packet[0] != 1 || packet[1] != 2 || packet[2] != 3 {
		t.Errorf("audio packet = %v, want [1 2 3]", packet)
	}

	done := expectType(t, h, realtime.EventTypeResponseAudioDone)
	if done.ResponseID != respID {
		t.Errorf("audio done response id = %q, want %q", done.ResponseID, respID)
	}

	waitFor(t, "tts text", func() bool { return len(b.tts) == 1 && b.tts[0].sent() == "Hi there" })

	turns := b.lastTurns()
	if len(turns) != 2 {
		t.Fatalf("llm turns = %d, want 2 (system + user)", len(turns))
	}
	if turns[0].Role != speech.RoleSystem {
		t.Errorf("first turn role = %q, want system", turns[0].Role)
	}
	if turns[1].Role != speech.RoleUser || turns[1].Content != "hello world" {
		t.Errorf("user turn = %+v, want hello world", turns[1])
	}

	if got := h.State(); got != StateActive {
		t.Errorf("state after cycle = %v, want %v", got, StateActive)
	}
}

func TestInterruptAbandonsInFlightResponse(t *testing.T) {
	b := newFakeBackend()
	b.newTTS = func() *fakeTTS { return newFakeTTS(nil) }
	b.newStream = func([]speech.Turn) *fakeStream { return &fakeStream{deltas: []string{"One"}} }

	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	b.stt.word("hi", 0)
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStarted)
	expectType(t, h, realtime.EventTypeConversationItemInputAudioTranscriptionDelta)
	b.stt.endTurn()
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStopped)

	created := expectType(t, h, realtime.EventTypeResponseCreated)
	firstID := created.Response.ID
	expectType(t, h, realtime.EventTypeResponseTextDelta)

	waitFor(t, "tts dial", func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return len(b.tts) == 1
	})
	b.tts[0].chunks.Push(&speech.AudioChunk{PCM: []int16{5, 6}})
	audio := expectType(t, h, realtime.EventTypeResponseAudioDelta)
	if audio.ResponseID != firstID {
		t.Fatalf("audio delta response id = %q, want %q", audio.ResponseID, firstID)
	}

	// The assistant is mid-audio; new speech interrupts it.
	b.stt.word("stop", 2.0)

	done := expectType(t, h, realtime.EventTypeResponseAudioDone)
	if done.ResponseID != firstID {
		t.Fatalf("first post-interrupt event closes %q, want %q", done.ResponseID, firstID)
	}
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStarted)
	expectType(t, h, realtime.EventTypeConversationItemInputAudioTranscriptionDelta)

	b.stt.endTurn()
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStopped)
	second := expectType(t, h, realtime.EventTypeResponseCreated)
	if second.Response.ID == firstID {
		t.Error("successor response reused the interrupted response id")
	}
}

func TestServiceStreamFaultIsFatal(t *testing.T) {
	b := newFakeBackend()
	b.newStream = func([]speech.Turn) *fakeStream {
		return &fakeStream{
			deltas: []string{"par"},
			err:    &speech.StreamFaultError{Service: "llm", Err: errors.New("connection reset")},
		}
	}

	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	b.stt.word("hi", 0)
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStarted)
	expectType(t, h, realtime.EventTypeConversationItemInputAudioTranscriptionDelta)
	b.stt.endTurn()
	expectType(t, h, realtime.EventTypeInputAudioBufferSpeechStopped)
	expectType(t, h, realtime.EventTypeResponseCreated)
	expectType(t, h, realtime.EventTypeResponseTextDelta)

	evt := expectType(t, h, realtime.EventTypeError)
	if evt.Error.Type != realtime.ErrorSeverityFatal {
		t.Errorf("severity = %q, want fatal", evt.Error.Type)
	}
	expectDone(t, h)

	waitFor(t, "session to close", func() bool { return h.State() == StateClosed })
}

func TestRecorderWritesTrace(t *testing.T) {
	dir := t.TempDir()
	b := newFakeBackend()
	h := newTestHandler(t, b, WithRecordingsDir(dir))
	expectType(t, h, realtime.EventTypeSessionUpdated)

	update := updateJSON(t, map[string]any{"voice": "Gertrude", "allow_recording": true})
	if err := h.Receive(update); err != nil {
		t.Fatalf("Receive update: %v", err)
	}
	expectType(t, h, realtime.EventTypeSessionUpdated)

	if err := h.Receive(appendJSON(t, []byte{1})); err != nil {
		t.Fatalf("Receive append: %v", err)
	}
	waitFor(t, "pcm to reach stt", func() bool { return len(b.stt.received()) == 1 })
	h.Close()

	data, err := os.ReadFile(filepath.Join(dir, h.ID()+".jsonl"))
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 2 {
		t.Fatalf("trace has %d lines, want at least 2", len(lines))
	}
	dirs := map[string]bool{}
	for i, line := range lines {
		var entry recordEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("trace line %d is not JSON: %v", i, err)
		}
		dirs[entry.Dir] = true
	}
	if !dirs[recordIn] || !dirs[recordOut] {
		t.Errorf("trace directions = %v, want both in and out", dirs)
	}
}

func TestRecorderDisabledWithoutConsent(t *testing.T) {
	dir := t.TempDir()
	b := newFakeBackend()
	h := newTestHandler(t, b, WithRecordingsDir(dir))
	expectType(t, h, realtime.EventTypeSessionUpdated)

	if err := h.Receive(updateJSON(t, map[string]any{"voice": "Gertrude"})); err != nil {
		t.Fatalf("Receive update: %v", err)
	}
	expectType(t, h, realtime.EventTypeSessionUpdated)
	h.Close()

	if _, err := os.Stat(filepath.Join(dir, h.ID()+".jsonl")); !os.IsNotExist(err) {
		t.Fatalf("trace file exists without consent (stat err = %v)", err)
	}
}

func TestCloseEndsEmitStream(t *testing.T) {
	b := newFakeBackend()
	h := newTestHandler(t, b)
	expectType(t, h, realtime.EventTypeSessionUpdated)

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	expectDone(t, h)
	if got := h.State(); got != StateClosed {
		t.Errorf("state = %v, want %v", got, StateClosed)
	}
	// Receive after close is a no-op, not a panic.
	if err := h.Receive(appendJSON(t, []byte{1})); err != nil {
		t.Errorf("Receive after close: %v", err)
	}
}
