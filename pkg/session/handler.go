package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/voicewire/voicewire/pkg/audio/opusfx"
	"github.com/voicewire/voicewire/pkg/buffer"
	"github.com/voicewire/voicewire/pkg/realtime"
	"github.com/voicewire/voicewire/pkg/speech"
)

// smalltalkPrompt backs the "smalltalk" instruction kind.
const smalltalkPrompt = "You are a friendly voice assistant making casual conversation. " +
	"Keep replies short and natural, as they will be spoken aloud. " +
	"Ask light follow-up questions and never mention that you are a program."

const (
	// outboundCapacity bounds the emit queue feeding the client.
	outboundCapacity = 256

	// inputCapacity bounds the PCM frames buffered ahead of STT. At 80 ms
	// a frame this holds several seconds of speech before frames drop.
	inputCapacity = 64
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) { h.log = log }
}

// WithRecordingsDir enables conversation recording into the given
// directory for clients that set allow_recording.
func WithRecordingsDir(dir string) Option {
	return func(h *Handler) { h.recordingsDir = dir }
}

// WithConfig seeds the session configuration before the first
// session.update. Outbound device connections use it to apply the
// device's voice and instructions.
func WithConfig(cfg realtime.SessionConfig) Option {
	return func(h *Handler) { h.cfg = cfg }
}

// responseCycle tracks one in-flight response.
type responseCycle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Handler runs one conversation. Receive consumes raw inbound protocol
// messages; Emit yields outbound events in order and ends with
// iterator.Done. Both may be called from different goroutines; neither
// blocks the other.
type Handler struct {
	id            string
	created       time.Time
	log           *slog.Logger
	recordingsDir string

	backend backend
	dec     audioDecoder
	enc     audioEncoder
	stt     transcriber

	ctx    context.Context
	cancel context.CancelFunc

	out   *buffer.Queue[*realtime.ServerEvent]
	input *buffer.Ring[[]int16]

	mu       sync.Mutex
	state    State
	cfg      realtime.SessionConfig
	turns    []speech.Turn
	recorder *Recorder

	respMu sync.Mutex
	resp   *responseCycle

	closing atomic.Bool
	wg      sync.WaitGroup

	// lastDropped is touched only by the connection's read loop.
	lastDropped uint64
}

// New creates a Handler backed by the given services. Start must be
// called before Receive or Emit.
func New(services *speech.Services, opts ...Option) *Handler {
	return newHandler(&speechBackend{services: services}, opts...)
}

func newHandler(b backend, opts ...Option) *Handler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		id:      "sess_" + uuid.NewString()[:12],
		created: time.Now(),
		log:     slog.Default(),
		backend: b,
		ctx:     ctx,
		cancel:  cancel,
		out:     buffer.NewQueue[*realtime.ServerEvent](outboundCapacity),
		input:   buffer.NewRing[[]int16](inputCapacity),
		state:   StateConfiguring,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With("session", h.id)
	return h
}

// ID returns the session identifier.
func (h *Handler) ID() string { return h.id }

// State returns the current lifecycle phase.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Start probes the backing services, allocates the codec and the STT
// connection, and activates the session. If any service is unavailable
// the session never activates: a fatal error event is emitted for the
// client and the error returned.
func (h *Handler) Start(ctx context.Context) error {
	if err := h.backend.Probe(ctx); err != nil {
		h.abortStart(err)
		return err
	}

	if h.dec == nil {
		dec, err := opusfx.NewDecoder()
		if err != nil {
			h.abortStart(err)
			return err
		}
		h.dec = dec
	}
	if h.enc == nil {
		enc, err := opusfx.NewEncoder()
		if err != nil {
			h.abortStart(err)
			return err
		}
		h.enc = enc
	}

	stt, err := h.backend.DialSTT(ctx)
	if err != nil {
		h.abortStart(err)
		return err
	}
	h.stt = stt

	h.wg.Add(2)
	go h.feedLoop()
	go h.sttLoop()

	h.push(realtime.NewSessionUpdated(h.configSnapshot()))
	h.setState(StateActive)
	h.log.Info("session started")
	return nil
}

// abortStart reports a startup failure to the client and closes the
// session without ever activating it.
func (h *Handler) abortStart(err error) {
	h.log.Error("session start failed", "error", err)
	if h.closing.CompareAndSwap(false, true) {
		h.out.Push(realtime.NewFatal(err.Error()))
		h.out.CloseWrite()
	}
	h.cancel()
	h.setState(StateClosed)
}

// Receive processes one raw inbound protocol message. Malformed or
// unknown messages produce a single warning error event and are dropped;
// the session stays active. Never returns an error for bad input, only
// for a session that is no longer accepting work.
func (h *Handler) Receive(data []byte) error {
	if h.closing.Load() {
		return nil
	}

	evt, err := realtime.ParseClientEvent(data)
	if err != nil {
		var malformed *realtime.MalformedEventError
		if errors.As(err, &malformed) || errors.Is(err, realtime.ErrUnknownEventType) {
			h.log.Warn("dropped bad client event", "error", err)
			h.push(realtime.NewWarning(err.Error()))
			return nil
		}
		return err
	}
	h.record(recordIn, data)

	switch evt.Type {
	case realtime.EventTypeSessionUpdate:
		h.applyConfig(evt.Session)
	case realtime.EventTypeInputAudioBufferAppend:
		h.ingestAudio(evt.Audio)
	}
	return nil
}

// Emit returns the next outbound event, blocking until one is ready.
// Returns iterator.Done once the session has closed and all pending
// events have drained.
func (h *Handler) Emit() (*realtime.ServerEvent, error) {
	return h.out.Next()
}

// Close tears the session down: cancels any in-flight response, releases
// the STT connection and the codec, and ends the Emit stream. Safe to
// call from any goroutine and more than once.
func (h *Handler) Close() error {
	if !h.closing.CompareAndSwap(false, true) {
		return nil
	}
	h.setState(StateClosing)
	h.cancel()
	h.out.CloseWrite()
	h.finish()
	return nil
}

// fail terminates the session over a fault that broke the pipeline. The
// client sees exactly one fatal error event and then the end of the
// stream; no further response events follow.
func (h *Handler) fail(err error) {
	if !h.closing.CompareAndSwap(false, true) {
		return
	}
	h.log.Error("session failed", "error", err)
	h.setState(StateClosing)
	h.out.Push(realtime.NewFatal(err.Error()))
	h.out.CloseWrite()
	h.cancel()
	go h.finish()
}

// finish waits out the pipeline goroutines and releases everything.
func (h *Handler) finish() {
	h.input.CloseWrite()
	if h.stt != nil {
		h.stt.Close()
	}
	h.wg.Wait()

	h.mu.Lock()
	rec := h.recorder
	h.recorder = nil
	h.state = StateClosed
	h.mu.Unlock()
	if rec != nil {
		rec.Close()
	}
	h.log.Info("session closed")
}

func (h *Handler) configSnapshot() *realtime.SessionConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	cfg := h.cfg
	return &cfg
}

// applyConfig applies a session.update live, without disturbing an
// in-flight response, and echoes the resulting configuration.
func (h *Handler) applyConfig(update *realtime.SessionConfig) {
	h.mu.Lock()
	if update.Voice != "" {
		h.cfg.Voice = update.Voice
	}
	if update.Instructions != nil {
		h.cfg.Instructions = update.Instructions
	}
	h.cfg.AllowRecording = update.AllowRecording

	if update.AllowRecording && h.recorder == nil && h.recordingsDir != "" {
		rec, err := OpenRecorder(h.recordingsDir, h.id)
		if err != nil {
			h.log.Warn("recording disabled", "error", err)
		} else {
			h.recorder = rec
		}
	}
	if !update.AllowRecording && h.recorder != nil {
		h.recorder.Close()
		h.recorder = nil
	}
	cfg := h.cfg
	h.mu.Unlock()

	h.push(realtime.NewSessionUpdated(&cfg))
}

// ingestAudio decodes one compressed chunk and queues the PCM frames for
// STT. Undecodable chunks are dropped and the session continues.
func (h *Handler) ingestAudio(audio []byte) {
	frames, err := h.dec.Push(audio)
	if err != nil {
		var codecErr *opusfx.CodecError
		if errors.As(err, &codecErr) {
			h.log.Debug("dropped undecodable audio chunk", "error", err)
		} else {
			h.log.Warn("audio decode error", "error", err)
		}
	}
	for _, f := range frames {
		h.input.Push(f.PCM)
	}
	if d := h.input.Dropped(); d > h.lastDropped {
		h.log.Warn("input backlog full, dropped oldest audio",
			"dropped", d-h.lastDropped, "total", d)
		h.lastDropped = d
	}
}

// feedLoop drains the input ring into the STT connection.
func (h *Handler) feedLoop() {
	defer h.wg.Done()
	for {
		pcm, err := h.input.Next()
		if err != nil {
			return
		}
		if err := h.stt.SendPCM(h.ctx, pcm); err != nil {
			if h.ctx.Err() != nil {
				return
			}
			h.fail(err)
			return
		}
	}
}

// sttLoop consumes transcript events, maintains the speech-turn state,
// and starts a response cycle at each end of turn. A word arriving while
// a response is in flight interrupts it first.
func (h *Handler) sttLoop() {
	defer h.wg.Done()

	var speaking bool
	var turn strings.Builder

	for {
		ev, err := h.stt.Next()
		if err == iterator.Done {
			return
		}
		if err != nil {
			if h.ctx.Err() == nil {
				h.fail(err)
			}
			return
		}

		switch ev.Kind {
		case speech.TranscriptWord:
			h.interruptInFlight()
			if !speaking {
				speaking = true
				h.push(realtime.NewSpeechStarted())
			}
			if turn.Len() > 0 {
				turn.WriteByte(' ')
			}
			turn.WriteString(ev.Text)
			h.push(realtime.NewTranscriptionDelta(ev.Text, ev.StartTime))

		case speech.TranscriptEndTurn:
			if !speaking {
				continue
			}
			speaking = false
			h.push(realtime.NewSpeechStopped())
			text := turn.String()
			turn.Reset()
			if text != "" {
				h.startResponse(text)
			}
		}
	}
}

// interruptInFlight abandons the current response, if any, and waits for
// its terminal audio.done marker to be emitted so that no event of the
// interrupted response can trail events of its successor.
func (h *Handler) interruptInFlight() {
	h.respMu.Lock()
	r := h.resp
	h.respMu.Unlock()
	if r == nil {
		return
	}
	h.log.Info("response interrupted by new speech", "response", r.id)
	r.cancel()
	<-r.done
}

// startResponse records the user turn and launches the response cycle.
func (h *Handler) startResponse(userText string) {
	h.mu.Lock()
	h.turns = append(h.turns, speech.Turn{Role: speech.RoleUser, Content: userText})
	turns := make([]speech.Turn, 0, len(h.turns)+1)
	turns = append(turns, speech.Turn{Role: speech.RoleSystem, Content: systemPrompt(h.cfg.Instructions)})
	turns = append(turns, h.turns...)
	voice := h.cfg.Voice
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(h.ctx)
	r := &responseCycle{
		id:     "resp_" + uuid.NewString()[:12],
		cancel: cancel,
		done:   make(chan struct{}),
	}
	h.respMu.Lock()
	h.resp = r
	h.respMu.Unlock()

	h.wg.Add(1)
	go h.runResponse(ctx, r, turns, voice)
}

func systemPrompt(in *realtime.Instructions) string {
	if in != nil && in.Type == realtime.InstructionsConstant {
		return in.Text
	}
	return smalltalkPrompt
}

// appendAssistantTurn adds generated text to the conversation history so
// later turns see it, including text of an interrupted response.
func (h *Handler) appendAssistantTurn(text string) {
	h.mu.Lock()
	h.turns = append(h.turns, speech.Turn{Role: speech.RoleAssistant, Content: text})
	h.mu.Unlock()
}

// runResponse drives one response cycle: LLM text deltas stream to the
// client and into TTS, synthesized audio streams back out compressed.
// Every non-fatal exit emits exactly one audio.done for the cycle.
func (h *Handler) runResponse(ctx context.Context, r *responseCycle, turns []speech.Turn, voice string) {
	defer h.wg.Done()
	defer func() {
		h.respMu.Lock()
		if h.resp == r {
			h.resp = nil
		}
		h.respMu.Unlock()
		close(r.done)
	}()

	h.push(realtime.NewResponseCreated(r.id, voice))

	stream, err := h.backend.Complete(ctx, turns)
	if err != nil {
		if ctx.Err() == nil {
			h.fail(err)
			return
		}
		h.push(realtime.NewAudioDone(r.id))
		return
	}
	defer stream.Close()

	tts, err := h.backend.DialTTS(ctx, voice)
	if err != nil {
		if ctx.Err() == nil {
			h.fail(err)
			return
		}
		h.push(realtime.NewAudioDone(r.id))
		return
	}
	defer tts.Close()
	context.AfterFunc(ctx, func() { tts.Close() })

	feederDone := make(chan struct{})
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer close(feederDone)
		h.feedResponse(ctx, r, stream, tts)
	}()

	interrupted := false
	for {
		chunk, err := tts.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				interrupted = true
				break
			}
			h.fail(err)
			return
		}
		if ctx.Err() != nil {
			// Interrupted: remaining synthesized audio is dropped.
			interrupted = true
			break
		}
		packet, err := h.enc.Push(chunk.PCM)
		if err != nil {
			h.log.Warn("audio encode error", "error", err)
			continue
		}
		if len(packet) > 0 {
			h.push(realtime.NewAudioDelta(r.id, packet))
		}
	}

	<-feederDone

	tail, err := h.enc.Flush()
	if err == nil && len(tail) > 0 && !interrupted && ctx.Err() == nil {
		h.push(realtime.NewAudioDelta(r.id, tail))
	}
	h.push(realtime.NewAudioDone(r.id))
	h.log.Info("response finished", "response", r.id, "interrupted", interrupted)
}

// feedResponse pumps LLM text deltas to the client and into TTS.
func (h *Handler) feedResponse(ctx context.Context, r *responseCycle, stream textStream, tts synthesizer) {
	var text strings.Builder
	defer func() {
		if text.Len() > 0 {
			h.appendAssistantTurn(text.String())
		}
	}()

	for {
		delta, err := stream.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				h.fail(err)
				tts.Close()
			}
			return
		}
		text.WriteString(delta)
		h.push(realtime.NewTextDelta(r.id, delta))
		if err := tts.SendText(ctx, delta); err != nil {
			if ctx.Err() == nil {
				h.fail(err)
			}
			return
		}
	}
	if err := tts.CloseSend(ctx); err != nil && ctx.Err() == nil {
		h.fail(err)
	}
}

// push hands one event to the emit stream and the recorder. Events are
// silently discarded once the session is closing; the fatal error of a
// failing session goes through fail directly.
func (h *Handler) push(evt *realtime.ServerEvent) {
	if h.closing.Load() {
		return
	}
	if err := h.out.Push(evt); err != nil {
		return
	}
	if data, err := realtime.Encode(evt); err == nil {
		h.record(recordOut, data)
	}
}

func (h *Handler) record(dir string, data []byte) {
	h.mu.Lock()
	rec := h.recorder
	h.mu.Unlock()
	if rec == nil {
		return
	}
	if err := rec.Record(dir, data); err != nil {
		h.log.Warn("recording write failed", "error", err)
	}
}
