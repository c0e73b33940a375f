package opusfx

import (
	"fmt"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resampler converts mono 16-bit PCM between sample rates. It is stateful
// across calls, so one instance serves one continuous stream.
type Resampler struct {
	inner resampling.Resampler
}

// NewResampler creates a Resampler from inRate to outRate.
func NewResampler(inRate, outRate int) (*Resampler, error) {
	inner, err := resampling.New(&resampling.Config{
		InputRate:  float64(inRate),
		OutputRate: float64(outRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("opusfx: create resampler: %w", err)
	}
	return &Resampler{inner: inner}, nil
}

// Process resamples one chunk of PCM. The output length follows the rate
// ratio and may be zero while the resampler primes.
func (r *Resampler) Process(pcm []int16) ([]int16, error) {
	input := make([]float64, len(pcm))
	for i, s := range pcm {
		input[i] = float64(s) / 32768.0
	}

	output, err := r.inner.Process(input)
	if err != nil {
		return nil, fmt.Errorf("opusfx: resample: %w", err)
	}

	out := make([]int16, len(output))
	for i, s := range output {
		switch {
		case s > 1.0:
			out[i] = 32767
		case s < -1.0:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767.0)
		}
	}
	return out, nil
}
