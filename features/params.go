package features

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/RyanBlaney/sonido-emotion/algorithms/spectral"
	"github.com/RyanBlaney/sonido-emotion/algorithms/windowing"
)

// Params configures log-mel extraction. Zero FMax means SampleRate/2.
type Params struct {
	SampleRate int                   `json:"sample_rate" msgpack:"sample_rate" yaml:"sample_rate"`
	MelBands   int                   `json:"mel_bands" msgpack:"mel_bands" yaml:"mel_bands"`
	FFTWindow  int                   `json:"fft_window" msgpack:"fft_window" yaml:"fft_window"`
	HopLength  int                   `json:"hop_length" msgpack:"hop_length" yaml:"hop_length"`
	FMin       float64               `json:"fmin" msgpack:"fmin" yaml:"fmin"`
	FMax       float64               `json:"fmax" msgpack:"fmax" yaml:"fmax"`
	TopDB      float64               `json:"top_db" msgpack:"top_db" yaml:"top_db"` // 0 disables clipping
	Window     windowing.Type        `json:"window" msgpack:"window" yaml:"window"`
	MelScale   spectral.MelScaleType `json:"mel_scale" msgpack:"mel_scale" yaml:"mel_scale"`
}

// DefaultParams returns librosa-compatible defaults for 16 kHz speech.
// FMax is left at 0 so it follows the sample rate.
func DefaultParams() Params {
	return Params{
		SampleRate: 16000,
		MelBands:   128,
		FFTWindow:  1024,
		HopLength:  512,
		FMin:       0,
		FMax:       0,
		TopDB:      80,
		Window:     windowing.TypeHann,
		MelScale:   spectral.MelSlaney,
	}
}

// resolved fills in derived defaults
func (p Params) resolved() Params {
	if p.FMax == 0 {
		p.FMax = float64(p.SampleRate) / 2
	}
	if p.Window == "" {
		p.Window = windowing.TypeHann
	}
	if p.MelScale == "" {
		p.MelScale = spectral.MelSlaney
	}
	return p
}

// Validate returns an *InvalidParameterError for the first violated constraint
func (p Params) Validate() error {
	p = p.resolved()
	switch {
	case p.SampleRate <= 0:
		return invalidParam("sample_rate", p.SampleRate, "must be positive")
	case p.MelBands <= 0:
		return invalidParam("mel_bands", p.MelBands, "must be positive")
	case p.HopLength <= 0:
		return invalidParam("hop_length", p.HopLength, "must be positive")
	case p.FFTWindow < p.HopLength:
		return invalidParam("fft_window", p.FFTWindow, "must be >= hop_length (%d)", p.HopLength)
	case p.FMin < 0:
		return invalidParam("fmin", p.FMin, "must be non-negative")
	case p.FMax <= p.FMin:
		return invalidParam("fmax", p.FMax, "must be greater than fmin (%g)", p.FMin)
	case p.FMax > float64(p.SampleRate)/2:
		return invalidParam("fmax", p.FMax, "must not exceed Nyquist (%g)", float64(p.SampleRate)/2)
	case p.TopDB < 0:
		return invalidParam("top_db", p.TopDB, "must be non-negative")
	}
	if _, err := windowing.ParseType(string(p.Window)); err != nil {
		return invalidParam("window", p.Window, "%v", err)
	}
	if _, err := spectral.ParseMelScale(string(p.MelScale)); err != nil {
		return invalidParam("mel_scale", p.MelScale, "%v", err)
	}
	return nil
}

// Fingerprint is a short stable digest of the resolved parameters. Cached
// features are only valid for an identical fingerprint.
func (p Params) Fingerprint() string {
	p = p.resolved()
	canonical := fmt.Sprintf("sr=%d;mels=%d;nfft=%d;hop=%d;fmin=%g;fmax=%g;topdb=%g;win=%s;scale=%s",
		p.SampleRate, p.MelBands, p.FFTWindow, p.HopLength, p.FMin, p.FMax, p.TopDB, p.Window, p.MelScale)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:8])
}
