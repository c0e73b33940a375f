package session

import (
	"context"

	"github.com/voicewire/voicewire/pkg/audio/opusfx"
	"github.com/voicewire/voicewire/pkg/speech"
)

// transcriber is the slice of speech.STTClient the handler uses.
type transcriber interface {
	SendPCM(ctx context.Context, pcm []int16) error
	Next() (*speech.TranscriptEvent, error)
	Close() error
}

// synthesizer is the slice of speech.TTSClient the handler uses.
type synthesizer interface {
	SendText(ctx context.Context, text string) error
	CloseSend(ctx context.Context) error
	Next() (*speech.AudioChunk, error)
	Close() error
}

// textStream is the slice of speech.CompletionStream the handler uses.
type textStream interface {
	Next() (string, error)
	Close() error
}

// backend dials the per-session service clients. The production
// implementation wraps speech.Services; tests substitute fakes.
type backend interface {
	Probe(ctx context.Context) error
	DialSTT(ctx context.Context) (transcriber, error)
	DialTTS(ctx context.Context, voice string) (synthesizer, error)
	Complete(ctx context.Context, turns []speech.Turn) (textStream, error)
}

// audioDecoder turns compressed client audio into PCM frames.
type audioDecoder interface {
	Push(data []byte) ([]opusfx.Frame, error)
}

// audioEncoder turns synthesized PCM into compressed client audio.
type audioEncoder interface {
	Push(pcm []int16) ([]byte, error)
	Flush() ([]byte, error)
}

type speechBackend struct {
	services *speech.Services
}

var _ backend = (*speechBackend)(nil)

func (b *speechBackend) Probe(ctx context.Context) error {
	return b.services.Probe(ctx)
}

func (b *speechBackend) DialSTT(ctx context.Context) (transcriber, error) {
	c, err := speech.DialSTT(ctx, b.services.STTURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *speechBackend) DialTTS(ctx context.Context, voice string) (synthesizer, error) {
	c, err := speech.DialTTS(ctx, b.services.TTSURL, voice)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (b *speechBackend) Complete(ctx context.Context, turns []speech.Turn) (textStream, error) {
	s, err := b.services.LLM.Stream(ctx, turns)
	if err != nil {
		return nil, err
	}
	return s, nil
}
