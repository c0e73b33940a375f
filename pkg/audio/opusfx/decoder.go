package opusfx

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// opusDecoder is the slice of the Opus decoder API the adapter needs.
// Satisfied by *opus.Decoder; tests substitute a fake.
type opusDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}

// Decoder converts the wire's length-prefixed Opus packet stream into PCM
// frames at the service rate. One instance per session, single goroutine.
type Decoder struct {
	dec      opusDecoder
	split    packetSplitter
	resample *Resampler
	pcmBuf   []int16
}

// DecoderOption configures a Decoder.
type DecoderOption func(*decoderConfig)

type decoderConfig struct {
	wireRate int
}

// WithDecoderWireRate sets the sample rate the inbound Opus stream was
// encoded at. When it differs from ServiceSampleRate the decoder resamples
// its output. Defaults to ServiceSampleRate.
func WithDecoderWireRate(rate int) DecoderOption {
	return func(c *decoderConfig) {
		c.wireRate = rate
	}
}

// NewDecoder creates a Decoder for a mono Opus stream.
func NewDecoder(opts ...DecoderOption) (*Decoder, error) {
	cfg := decoderConfig{wireRate: ServiceSampleRate}
	for _, opt := range opts {
		opt(&cfg)
	}

	dec, err := opus.NewDecoder(cfg.wireRate, 1)
	if err != nil {
		return nil, fmt.Errorf("opusfx: create decoder: %w", err)
	}

	d := &Decoder{
		dec: dec,
		// 120 ms at the wire rate covers the largest legal Opus frame.
		pcmBuf: make([]int16, cfg.wireRate*120/1000),
	}
	if cfg.wireRate != ServiceSampleRate {
		rs, err := NewResampler(cfg.wireRate, ServiceSampleRate)
		if err != nil {
			return nil, err
		}
		d.resample = rs
	}
	return d, nil
}

// Push feeds wire bytes into the decoder and returns the PCM frames that
// became available, possibly none. A *CodecError means one packet was
// malformed and dropped; the decoder remains usable and any frames decoded
// before the bad packet are still returned.
func (d *Decoder) Push(data []byte) ([]Frame, error) {
	d.split.push(data)

	var frames []Frame
	for {
		packet, err := d.split.next()
		if err != nil {
			return frames, err
		}
		if packet == nil {
			return frames, nil
		}

		n, err := d.dec.Decode(packet, d.pcmBuf)
		if err != nil {
			return frames, &CodecError{Op: "decode", Err: err}
		}

		pcm := make([]int16, n)
		copy(pcm, d.pcmBuf[:n])

		if d.resample != nil {
			pcm, err = d.resample.Process(pcm)
			if err != nil {
				return frames, &CodecError{Op: "resample", Err: err}
			}
			if len(pcm) == 0 {
				continue
			}
		}

		frames = append(frames, Frame{PCM: pcm, SampleRate: ServiceSampleRate})
	}
}
