package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sonido.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultMatchesLibraryDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if got := cfg.ExtractorParams(); got != features.DefaultParams() {
		t.Errorf("ExtractorParams = %+v, want %+v", got, features.DefaultParams())
	}
	c, err := cfg.Contract()
	if err != nil {
		t.Fatal(err)
	}
	if c.String() != contract.Default().String() {
		t.Errorf("contract = %v, want %v", c, contract.Default())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
extractor:
  mel_bands: 64
  fmax: 7600
  window: HAMMING
tensor:
  height: 64
  width: 96
dataset:
  root: /srv/clips
  classes: [calm, angry]
  label_dirs:
    calm: Neutral
  workers: 3
  file_timeout: 2s
  skip_errors: true
export:
  precision: float16
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p := cfg.ExtractorParams()
	if p.MelBands != 64 || p.FMax != 7600 || p.Window != "hamming" {
		t.Errorf("extractor params = %+v", p)
	}
	if p.HopLength != 512 || p.SampleRate != 16000 {
		t.Errorf("unset extractor fields lost their defaults: %+v", p)
	}
	c, err := cfg.Contract()
	if err != nil {
		t.Fatal(err)
	}
	if c.InputShape() != [3]int{64, 96, 1} || c.NumClasses() != 2 {
		t.Errorf("contract = %v", c)
	}

	opts := cfg.AssemblerOptions()
	if opts.Workers != 3 || opts.FileTimeout != 2*time.Second || !opts.SkipErrors {
		t.Errorf("assembler options = %+v", opts)
	}
	src := cfg.Source(c)
	if src.Root != "/srv/clips" || src.LabelDirs["calm"] != "Neutral" {
		t.Errorf("source = %+v", src)
	}
	if dc := cfg.DecoderConfig(); dc.TargetSampleRate != 16000 || dc.Timeout != 30*time.Second {
		t.Errorf("decoder config = %+v", dc)
	}
}

func TestLoadSampleRateOnly(t *testing.T) {
	for _, sr := range []int{8000, 22050} {
		cfg, err := Load(writeConfig(t, fmt.Sprintf("extractor:\n  sample_rate: %d\n", sr)))
		if err != nil {
			t.Fatalf("sr %d: Load: %v", sr, err)
		}
		ex, err := features.NewExtractor(cfg.ExtractorParams())
		if err != nil {
			t.Fatalf("sr %d: NewExtractor: %v", sr, err)
		}
		if got := ex.Params().FMax; got != float64(sr)/2 {
			t.Errorf("sr %d: fmax = %v, want %v", sr, got, float64(sr)/2)
		}
		if dc := cfg.DecoderConfig(); dc.TargetSampleRate != sr {
			t.Errorf("sr %d: decoder target = %d", sr, dc.TargetSampleRate)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SONIDO_DATASET_ROOT", "/from/env")
	t.Setenv("SONIDO_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dataset.Root != "/from/env" {
		t.Errorf("dataset.root = %q", cfg.Dataset.Root)
	}
	if cfg.LogLevel() != logging.DebugLevel {
		t.Errorf("log level = %v", cfg.LogLevel())
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad hop", "extractor:\n  hop_length: 0\n", "hop_length"},
		{"duplicate class", "dataset:\n  classes: [a, a]\n", "duplicate"},
		{"unknown label dir", "dataset:\n  label_dirs:\n    bored: x\n", "bored"},
		{"bad precision", "export:\n  precision: int8\n", "precision"},
		{"cache without dir", "cache:\n  enabled: true\n  dir: \"\"\n", "cache.dir"},
		{"bad log level", "log:\n  level: loud\n", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
