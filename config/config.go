// Package config loads build settings from a YAML file with SONIDO_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-emotion/algorithms/spectral"
	"github.com/RyanBlaney/sonido-emotion/algorithms/windowing"
	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/dataset"
	"github.com/RyanBlaney/sonido-emotion/export"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

// EnvPrefix namespaces environment overrides, e.g. SONIDO_DATASET_ROOT
const EnvPrefix = "SONIDO"

type Config struct {
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	Tensor    TensorConfig    `mapstructure:"tensor" yaml:"tensor"`
	Dataset   DatasetConfig   `mapstructure:"dataset" yaml:"dataset"`
	Decoder   DecoderConfig   `mapstructure:"decoder" yaml:"decoder"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Export    ExportConfig    `mapstructure:"export" yaml:"export"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type ExtractorConfig struct {
	SampleRate int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	MelBands   int     `mapstructure:"mel_bands" yaml:"mel_bands"`
	FFTWindow  int     `mapstructure:"fft_window" yaml:"fft_window"`
	HopLength  int     `mapstructure:"hop_length" yaml:"hop_length"`
	FMin       float64 `mapstructure:"fmin" yaml:"fmin"`
	FMax       float64 `mapstructure:"fmax" yaml:"fmax"`
	TopDB      float64 `mapstructure:"top_db" yaml:"top_db"`
	Window     string  `mapstructure:"window" yaml:"window"`
	MelScale   string  `mapstructure:"mel_scale" yaml:"mel_scale"`
}

type TensorConfig struct {
	Height int `mapstructure:"height" yaml:"height"`
	Width  int `mapstructure:"width" yaml:"width"`
}

type DatasetConfig struct {
	Root        string            `mapstructure:"root" yaml:"root"`
	Classes     []string          `mapstructure:"classes" yaml:"classes"`
	LabelDirs   map[string]string `mapstructure:"label_dirs" yaml:"label_dirs"`
	Extensions  []string          `mapstructure:"extensions" yaml:"extensions"`
	Workers     int               `mapstructure:"workers" yaml:"workers"`
	FileTimeout time.Duration     `mapstructure:"file_timeout" yaml:"file_timeout"`
	SkipErrors  bool              `mapstructure:"skip_errors" yaml:"skip_errors"`
}

type DecoderConfig struct {
	FFmpegPath string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

type ExportConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	Precision string `mapstructure:"precision" yaml:"precision"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Default mirrors features.DefaultParams and contract.Default
func Default() *Config {
	p := features.DefaultParams()
	return &Config{
		Extractor: ExtractorConfig{
			SampleRate: p.SampleRate,
			MelBands:   p.MelBands,
			FFTWindow:  p.FFTWindow,
			HopLength:  p.HopLength,
			FMin:       p.FMin,
			FMax:       p.FMax,
			TopDB:      p.TopDB,
			Window:     string(p.Window),
			MelScale:   string(p.MelScale),
		},
		Tensor: TensorConfig{Height: 128, Width: 128},
		Dataset: DatasetConfig{
			Root:       "data",
			Classes:    slices.Clone(contract.DefaultClasses),
			LabelDirs:  map[string]string{},
			Extensions: slices.Clone(dataset.DefaultExtensions),
		},
		Decoder: DecoderConfig{Timeout: 30 * time.Second},
		Cache:   CacheConfig{Dir: ".sonido-cache"},
		Export:  ExportConfig{Dir: "out", Precision: string(export.Float32)},
		Log:     LogConfig{Level: "info"},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("extractor.sample_rate", d.Extractor.SampleRate)
	v.SetDefault("extractor.mel_bands", d.Extractor.MelBands)
	v.SetDefault("extractor.fft_window", d.Extractor.FFTWindow)
	v.SetDefault("extractor.hop_length", d.Extractor.HopLength)
	v.SetDefault("extractor.fmin", d.Extractor.FMin)
	v.SetDefault("extractor.fmax", d.Extractor.FMax)
	v.SetDefault("extractor.top_db", d.Extractor.TopDB)
	v.SetDefault("extractor.window", d.Extractor.Window)
	v.SetDefault("extractor.mel_scale", d.Extractor.MelScale)

	v.SetDefault("tensor.height", d.Tensor.Height)
	v.SetDefault("tensor.width", d.Tensor.Width)

	v.SetDefault("dataset.root", d.Dataset.Root)
	v.SetDefault("dataset.classes", d.Dataset.Classes)
	v.SetDefault("dataset.label_dirs", d.Dataset.LabelDirs)
	v.SetDefault("dataset.extensions", d.Dataset.Extensions)
	v.SetDefault("dataset.workers", d.Dataset.Workers)
	v.SetDefault("dataset.file_timeout", d.Dataset.FileTimeout)
	v.SetDefault("dataset.skip_errors", d.Dataset.SkipErrors)

	v.SetDefault("decoder.ffmpeg_path", d.Decoder.FFmpegPath)
	v.SetDefault("decoder.timeout", d.Decoder.Timeout)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)

	v.SetDefault("export.dir", d.Export.Dir)
	v.SetDefault("export.precision", d.Export.Precision)

	v.SetDefault("log.level", d.Log.Level)
}

// Load reads path (any format viper understands, normally YAML) over the
// defaults. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logging.Debug("Configuration loaded", logging.Fields{
		"component": "config",
		"file":      v.ConfigFileUsed(),
	})
	return cfg, nil
}

// Validate checks every section and joins all problems into one error
func (c *Config) Validate() error {
	var errs []error
	if err := c.ExtractorParams().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Contract(); err != nil {
		errs = append(errs, err)
	}
	for label := range c.Dataset.LabelDirs {
		if !slices.Contains(c.Dataset.Classes, label) {
			errs = append(errs, fmt.Errorf("dataset.label_dirs: %q is not a declared class", label))
		}
	}
	if c.Dataset.Workers < 0 {
		errs = append(errs, errors.New("dataset.workers must be non-negative"))
	}
	if c.Dataset.FileTimeout < 0 {
		errs = append(errs, errors.New("dataset.file_timeout must be non-negative"))
	}
	if c.Decoder.Timeout < 0 {
		errs = append(errs, errors.New("decoder.timeout must be non-negative"))
	}
	if c.Cache.Enabled && c.Cache.Dir == "" {
		errs = append(errs, errors.New("cache.dir is required when cache.enabled is set"))
	}
	if _, err := export.ParsePrecision(c.Export.Precision); err != nil {
		errs = append(errs, fmt.Errorf("export.precision: %w", err))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ExtractorParams converts the extractor section
func (c *Config) ExtractorParams() features.Params {
	e := c.Extractor
	return features.Params{
		SampleRate: e.SampleRate,
		MelBands:   e.MelBands,
		FFTWindow:  e.FFTWindow,
		HopLength:  e.HopLength,
		FMin:       e.FMin,
		FMax:       e.FMax,
		TopDB:      e.TopDB,
		Window:     windowing.Type(strings.ToLower(e.Window)),
		MelScale:   spectral.MelScaleType(strings.ToLower(e.MelScale)),
	}
}

// Contract builds the classifier contract from tensor and dataset.classes
func (c *Config) Contract() (contract.Contract, error) {
	return contract.New(c.Tensor.Height, c.Tensor.Width, c.Dataset.Classes)
}

// DecoderConfig targets the extractor's sample rate
func (c *Config) DecoderConfig() *transcode.DecoderConfig {
	return &transcode.DecoderConfig{
		TargetSampleRate: c.Extractor.SampleRate,
		FFmpegPath:       c.Decoder.FFmpegPath,
		Timeout:          c.Decoder.Timeout,
	}
}

// AssemblerOptions converts the dataset section; the cache is attached by the caller
func (c *Config) AssemblerOptions() dataset.Options {
	return dataset.Options{
		Workers:     c.Dataset.Workers,
		FileTimeout: c.Dataset.FileTimeout,
		SkipErrors:  c.Dataset.SkipErrors,
	}
}

// Source builds the directory walker over dataset.root
func (c *Config) Source(ct contract.Contract) *dataset.DirSource {
	src := dataset.NewDirSource(c.Dataset.Root, ct)
	if len(c.Dataset.LabelDirs) > 0 {
		src.LabelDirs = c.Dataset.LabelDirs
	}
	if len(c.Dataset.Extensions) > 0 {
		src.Extensions = c.Dataset.Extensions
	}
	return src
}

// LogLevel parses log.level; Validate has already rejected bad values
func (c *Config) LogLevel() logging.Level {
	lv, _ := logging.ParseLevel(c.Log.Level)
	return lv
}
