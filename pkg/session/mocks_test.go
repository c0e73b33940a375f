package session

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/api/iterator"

	"github.com/voicewire/voicewire/pkg/audio/opusfx"
	"github.com/voicewire/voicewire/pkg/buffer"
	"github.com/voicewire/voicewire/pkg/speech"
)

// fakeSTT is a scripted transcriber: tests feed transcript events in and
// observe the PCM the handler forwarded.
type fakeSTT struct {
	events *buffer.Queue[*speech.TranscriptEvent]

	mu  sync.Mutex
	pcm []int16
}

func newFakeSTT() *fakeSTT {
	return &fakeSTT{events: buffer.NewQueue[*speech.TranscriptEvent](64)}
}

func (s *fakeSTT) SendPCM(ctx context.Context, pcm []int16) error {
	s.mu.Lock()
	s.pcm = append(s.pcm, pcm...)
	s.mu.Unlock()
	return nil
}

func (s *fakeSTT) Next() (*speech.TranscriptEvent, error) { return s.events.Next() }

func (s *fakeSTT) Close() error {
	s.events.CloseWrite()
	return nil
}

func (s *fakeSTT) received() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.pcm...)
}

func (s *fakeSTT) word(text string, startTime float64) {
	s.events.Push(&speech.TranscriptEvent{Kind: speech.TranscriptWord, Text: text, StartTime: startTime})
}

func (s *fakeSTT) endTurn() {
	s.events.Push(&speech.TranscriptEvent{Kind: speech.TranscriptEndTurn})
}

// fakeTTS either synthesizes a fixed chunk per CloseSend (auto mode) or
// leaves chunk production to the test.
type fakeTTS struct {
	chunks *buffer.Queue[*speech.AudioChunk]
	auto   []int16

	mu        sync.Mutex
	text      string
	closeOnce sync.Once
}

func newFakeTTS(auto []int16) *fakeTTS {
	return &fakeTTS{chunks: buffer.NewQueue[*speech.AudioChunk](64), auto: auto}
}

func (t *fakeTTS) SendText(ctx context.Context, text string) error {
	t.mu.Lock()
	t.text += text
	t.mu.Unlock()
	return nil
}

func (t *fakeTTS) CloseSend(ctx context.Context) error {
	if t.auto != nil {
		t.chunks.Push(&speech.AudioChunk{PCM: t.auto})
		t.chunks.CloseWrite()
	}
	return nil
}

func (t *fakeTTS) Next() (*speech.AudioChunk, error) { return t.chunks.Next() }

func (t *fakeTTS) Close() error {
	t.closeOnce.Do(func() { t.chunks.CloseWrite() })
	return nil
}

func (t *fakeTTS) sent() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// fakeStream yields its deltas, then errs if set, then iterator.Done.
type fakeStream struct {
	deltas []string
	err    error

	mu sync.Mutex
	i  int
}

func (s *fakeStream) Next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i < len(s.deltas) {
		d := s.deltas[s.i]
		s.i++
		return d, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", iterator.Done
}

func (s *fakeStream) Close() error { return nil }

// fakeBackend wires the fakes together and records every dial.
type fakeBackend struct {
	probeErr error
	stt      *fakeSTT

	newTTS    func() *fakeTTS
	newStream func(turns []speech.Turn) *fakeStream

	mu      sync.Mutex
	tts     []*fakeTTS
	streams []*fakeStream
	turns   [][]speech.Turn
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		stt:       newFakeSTT(),
		newTTS:    func() *fakeTTS { return newFakeTTS([]int16{1, 2, 3}) },
		newStream: func([]speech.Turn) *fakeStream { return &fakeStream{deltas: []string{"Hi", " there"}} },
	}
}

func (b *fakeBackend) Probe(ctx context.Context) error { return b.probeErr }

func (b *fakeBackend) DialSTT(ctx context.Context) (transcriber, error) { return b.stt, nil }

func (b *fakeBackend) DialTTS(ctx context.Context, voice string) (synthesizer, error) {
	t := b.newTTS()
	b.mu.Lock()
	b.tts = append(b.tts, t)
	b.mu.Unlock()
	return t, nil
}

func (b *fakeBackend) Complete(ctx context.Context, turns []speech.Turn) (textStream, error) {
	s := b.newStream(turns)
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.turns = append(b.turns, turns)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) lastTurns() []speech.Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.turns) == 0 {
		return nil
	}
	return b.turns[len(b.turns)-1]
}

var errCorruptPacket = errors.New("corrupt packet")

// fakeDecoder maps each payload byte to one PCM sample. A payload whose
// first byte is 0xee fails like a corrupt packet.
type fakeDecoder struct{}

func (fakeDecoder) Push(data []byte) ([]opusfx.Frame, error) {
	if len(data) > 0 && data[0] == 0xee {
		return nil, &opusfx.CodecError{Op: "decode", Err: errCorruptPacket}
	}
	pcm := make([]int16, len(data))
	for i, b := range data {
		pcm[i] = int16(b)
	}
	return []opusfx.Frame{{PCM: pcm, SampleRate: opusfx.ServiceSampleRate}}, nil
}

// fakeEncoder maps each PCM sample to one output byte.
type fakeEncoder struct{}

func (fakeEncoder) Push(pcm []int16) ([]byte, error) {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = byte(s)
	}
	return out, nil
}

func (fakeEncoder) Flush() ([]byte, error) { return nil, nil }
