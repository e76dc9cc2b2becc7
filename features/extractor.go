package features

import (
	"context"
	"math"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
	"github.com/RyanBlaney/sonido-emotion/algorithms/spectral"
	"github.com/RyanBlaney/sonido-emotion/algorithms/windowing"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

// Spectrogram is a normalized log-mel matrix indexed [band][frame]
type Spectrogram struct {
	Data   [][]float64 `json:"data"`
	Bands  int         `json:"bands"`
	Frames int         `json:"frames"`
}

// Extractor turns waveforms into normalized log-mel spectrograms.
// It holds no mutable state and is safe for concurrent use.
type Extractor struct {
	params     Params
	window     windowing.Window
	filterBank [][]float64
	stft       *spectral.STFT
	mel        *spectral.MelScale
	power      *spectral.PowerSpectrum
	normalizer *common.Normalizer
	decoder    *transcode.Decoder
	logger     logging.Logger
}

// Option customizes an Extractor
type Option func(*Extractor)

// WithDecoder sets the decoder used by LoadFile. Its target sample rate is
// forced to the extractor's rate.
func WithDecoder(d *transcode.Decoder) Option {
	return func(e *Extractor) {
		e.decoder = d
	}
}

// WithLogger overrides the component logger
func WithLogger(l logging.Logger) Option {
	return func(e *Extractor) {
		e.logger = l
	}
}

// NewExtractor validates params and precomputes the window and mel filter bank
func NewExtractor(params Params, opts ...Option) (*Extractor, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params = params.resolved()

	windowType, _ := windowing.ParseType(string(params.Window))
	window, err := windowing.New(windowType, params.FFTWindow, false)
	if err != nil {
		return nil, invalidParam("window", params.Window, "%v", err)
	}
	params.Window = windowType

	mel := spectral.NewMelScaleWithType(params.MelScale, true)
	filterBank := mel.CreateMelFilterBank(params.MelBands, params.FFTWindow, params.SampleRate, params.FMin, params.FMax)
	if len(filterBank) != params.MelBands {
		return nil, invalidParam("mel_bands", params.MelBands, "could not build filter bank")
	}

	e := &Extractor{
		params:     params,
		window:     window,
		filterBank: filterBank,
		stft:       spectral.NewSTFT(),
		mel:        mel,
		power:      spectral.NewPowerSpectrum(),
		normalizer: common.NewNormalizer(common.ZScore),
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.decoder == nil {
		cfg := transcode.DefaultDecoderConfig()
		cfg.TargetSampleRate = params.SampleRate
		e.decoder = transcode.NewDecoder(cfg)
	} else if cfg := e.decoder.Config(); cfg.TargetSampleRate != params.SampleRate {
		cfg.TargetSampleRate = params.SampleRate
		e.decoder = transcode.NewDecoder(&cfg)
	}

	return e, nil
}

// Params returns the resolved parameters
func (e *Extractor) Params() Params {
	return e.params
}

// Fingerprint identifies the parameter set for caching
func (e *Extractor) Fingerprint() string {
	return e.params.Fingerprint()
}

// LoadFile decodes path into mono PCM at the extractor's sample rate.
// Every failure is reported as *UnreadableAudioError.
func (e *Extractor) LoadFile(ctx context.Context, path string) (*transcode.AudioData, error) {
	audio, err := e.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, &UnreadableAudioError{Path: path, Err: err}
	}
	return audio, nil
}

// Extract computes the normalized log-mel spectrogram of wave
func (e *Extractor) Extract(wave *transcode.AudioData) (*Spectrogram, error) {
	if wave == nil || wave.IsEmpty() {
		return nil, &InvalidShapeError{Rows: 0, Cols: 0}
	}
	if wave.SampleRate != e.params.SampleRate {
		return nil, invalidParam("sample_rate", wave.SampleRate, "waveform rate differs from extractor rate %d", e.params.SampleRate)
	}
	return e.ExtractSamples(wave.PCM)
}

// ExtractSamples runs the extraction on raw mono samples assumed to be at
// the extractor's sample rate:
//
//	centered STFT -> |X|^2 -> mel -> dB(ref=max, top_db) -> z-score
func (e *Extractor) ExtractSamples(pcm []float64) (*Spectrogram, error) {
	logger := e.logger.WithFields(logging.Fields{
		"function": "ExtractSamples",
		"samples":  len(pcm),
	})

	if len(pcm) == 0 {
		return nil, &InvalidShapeError{Rows: 0, Cols: 0}
	}
	for i, v := range pcm {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, invalidParam("samples", v, "non-finite sample at index %d", i)
		}
	}

	p := e.params
	stft, err := e.stft.ComputeCentered(pcm, p.FFTWindow, p.HopLength, p.SampleRate, e.window)
	if err != nil {
		return nil, invalidParam("fft_window", p.FFTWindow, "%v", err)
	}

	melPower := e.mel.ProjectFrames(stft.Power, e.filterBank)
	db := e.power.ToDBRefMax(melPower, spectral.DefaultAmin, p.TopDB)
	normalized := e.normalizer.NormalizeMatrix(db)

	logger.Debug("Extracted log-mel spectrogram", logging.Fields{
		"bands":  len(normalized),
		"frames": stft.TimeFrames,
	})

	return &Spectrogram{
		Data:   normalized,
		Bands:  len(normalized),
		Frames: stft.TimeFrames,
	}, nil
}
