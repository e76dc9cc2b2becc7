package transcode

import (
	"time"
)

// AudioData represents decoded, mono, resampled audio
type AudioData struct {
	PCM        []float64      `json:"-"` // mono samples in [-1, 1]
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Duration   time.Duration  `json:"duration"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata describes the source before mixdown and resampling
type AudioMetadata struct {
	Path       string `json:"path,omitempty"`
	Format     Format `json:"format"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bit_depth,omitempty"`
	Frames     int    `json:"frames"`
}

// NewAudioData wraps mono samples that are already at sampleRate
func NewAudioData(pcm []float64, sampleRate int) *AudioData {
	return &AudioData{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   1,
		Duration:   samplesToDuration(len(pcm), sampleRate),
		Timestamp:  time.Now(),
	}
}

// IsEmpty reports whether there is nothing to analyze
func (a *AudioData) IsEmpty() bool {
	return a == nil || len(a.PCM) == 0
}

func samplesToDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(sampleRate) * float64(time.Second))
}
