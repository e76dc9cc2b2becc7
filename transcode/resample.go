package transcode

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono PCM between sample rates. The output length is
// ceil(len(pcm) * to / from) regardless of filter delay.
func Resample(pcm []float64, fromRate, toRate int) ([]float64, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(pcm) == 0 {
		out := make([]float64, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	resampler, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	out, err := resampler.Process(pcm)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}

	tail, err := resampler.Flush()
	if err != nil {
		return nil, fmt.Errorf("resample flush: %w", err)
	}
	out = append(out, tail...)

	want := int(math.Ceil(float64(len(pcm)) * float64(toRate) / float64(fromRate)))
	switch {
	case len(out) > want:
		out = out[:want]
	case len(out) < want:
		out = append(out, make([]float64, want-len(out))...)
	}
	return out, nil
}
