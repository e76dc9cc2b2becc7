package features

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

func init() {
	logging.SetGlobalLogger(nil)
}

func sineWave(freq float64, sr int, seconds float64) *transcode.AudioData {
	n := int(float64(sr) * seconds)
	pcm := make([]float64, n)
	for i := range pcm {
		pcm[i] = 0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(sr))
	}
	return transcode.NewAudioData(pcm, sr)
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	ex, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	p, err := NewPipeline(ex, 128, 128)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestExtractSineShapeAndStats(t *testing.T) {
	ex, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	spec, err := ex.Extract(sineWave(440, 16000, 1))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	// 1 + 16000/512 frames with centered framing
	if spec.Bands != 128 || spec.Frames != 32 {
		t.Fatalf("shape = %dx%d, want 128x32", spec.Bands, spec.Frames)
	}

	flat, ok := common.Flatten(spec.Data)
	if !ok {
		t.Fatal("ragged spectrogram")
	}
	mean, std := common.PopMeanStdDev(flat)
	if math.Abs(mean) > 1e-9 {
		t.Errorf("mean = %v, want ~0", mean)
	}
	if math.Abs(std-1) > 1e-9 {
		t.Errorf("std = %v, want ~1", std)
	}
}

func TestExtractSilenceIsZero(t *testing.T) {
	ex, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	spec, err := ex.Extract(transcode.NewAudioData(make([]float64, 16000), 16000))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for b, row := range spec.Data {
		for f, v := range row {
			if v != 0 {
				t.Fatalf("[%d][%d] = %v, want 0", b, f, v)
			}
		}
	}
}

func TestProcessDeterministicFixedShape(t *testing.T) {
	p := newTestPipeline(t)
	wave := sineWave(300, 16000, 1)

	a, err := p.Process(wave)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Process(wave)
	if err != nil {
		t.Fatal(err)
	}
	if a.Shape() != [3]int{128, 128, 1} || len(a.Data) != 128*128 {
		t.Fatalf("shape = %v len=%d", a.Shape(), len(a.Data))
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			t.Fatalf("element %d differs: %v vs %v", i, a.Data[i], b.Data[i])
		}
	}
}

func TestProcessShapeIndependentOfDuration(t *testing.T) {
	p := newTestPipeline(t)
	for _, seconds := range []float64{0.01, 0.5, 3, 9} {
		tensor, err := p.Process(sineWave(220, 16000, seconds))
		if err != nil {
			t.Fatalf("%.2fs: %v", seconds, err)
		}
		if tensor.Shape() != [3]int{128, 128, 1} {
			t.Errorf("%.2fs: shape = %v", seconds, tensor.Shape())
		}
	}
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(*Params)
		param string
	}{
		{"zero sample rate", func(p *Params) { p.SampleRate = 0 }, "sample_rate"},
		{"zero mel bands", func(p *Params) { p.MelBands = 0 }, "mel_bands"},
		{"zero hop", func(p *Params) { p.HopLength = 0 }, "hop_length"},
		{"window smaller than hop", func(p *Params) { p.FFTWindow = 256 }, "fft_window"},
		{"fmax above nyquist", func(p *Params) { p.FMax = 9000 }, "fmax"},
		{"fmin above fmax", func(p *Params) { p.FMin = 8000 }, "fmax"},
		{"negative top db", func(p *Params) { p.TopDB = -1 }, "top_db"},
		{"unknown window", func(p *Params) { p.Window = "kaiser" }, "window"},
		{"unknown mel scale", func(p *Params) { p.MelScale = "bark" }, "mel_scale"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mod(&p)
			_, err := NewExtractor(p)
			if !errors.Is(err, ErrInvalidParameter) {
				t.Fatalf("err = %v, want ErrInvalidParameter", err)
			}
			var ipe *InvalidParameterError
			if !errors.As(err, &ipe) || ipe.Param != tt.param {
				t.Fatalf("err = %v, want param %s", err, tt.param)
			}
		})
	}

	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestFingerprintTracksParams(t *testing.T) {
	a := DefaultParams()
	b := DefaultParams()
	b.FMax = 8000 // Nyquist at 16 kHz, what zero resolves to
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("equivalent params produced different fingerprints")
	}
	b.HopLength = 256
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different params produced the same fingerprint")
	}
}

func TestExtractRejectsRateMismatchAndEmpty(t *testing.T) {
	ex, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ex.Extract(sineWave(440, 8000, 1)); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("rate mismatch err = %v", err)
	}
	if _, err := ex.Extract(transcode.NewAudioData(nil, 16000)); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("empty wave err = %v", err)
	}
	if _, err := ex.ExtractSamples([]float64{0, math.NaN()}); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("NaN err = %v", err)
	}
}

func TestResizeErrors(t *testing.T) {
	if _, err := Resize(nil, 128, 128); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("nil spec err = %v", err)
	}
	var ise *InvalidShapeError
	if _, err := Resize([][]float64{{}, {}}, 128, 128); !errors.As(err, &ise) || ise.Rows != 2 || ise.Cols != 0 {
		t.Errorf("zero cols err = %v", err)
	}
	if _, err := Resize([][]float64{{1}}, 0, 128); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("zero height err = %v", err)
	}
}

func TestResizeUpAndDown(t *testing.T) {
	small := [][]float64{{1, 2}, {3, 4}}
	up, err := Resize(small, 4, 6)
	if err != nil {
		t.Fatal(err)
	}
	if up.Shape() != [3]int{4, 6, 1} {
		t.Errorf("up shape = %v", up.Shape())
	}
	if up.At(0, 0) != 1 || up.At(3, 5) != 4 {
		t.Errorf("corners = %v, %v", up.At(0, 0), up.At(3, 5))
	}

	big := make([][]float64, 300)
	for i := range big {
		big[i] = make([]float64, 7)
	}
	down, err := Resize(big, 128, 128)
	if err != nil {
		t.Fatal(err)
	}
	if len(down.Data) != 128*128 {
		t.Errorf("down len = %d", len(down.Data))
	}
}

func TestLoadFileErrors(t *testing.T) {
	ex, err := NewExtractor(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	missing := filepath.Join(t.TempDir(), "missing.wav")
	_, err = ex.LoadFile(context.Background(), missing)
	var uae *UnreadableAudioError
	if !errors.As(err, &uae) || uae.Path != missing {
		t.Fatalf("missing file err = %v", err)
	}

	corrupt := filepath.Join(t.TempDir(), "corrupt.wav")
	if err := os.WriteFile(corrupt, []byte{0, 1, 2, 3, 4, 5}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ex.LoadFile(context.Background(), corrupt); !errors.Is(err, ErrUnreadableAudio) {
		t.Fatalf("corrupt file err = %v", err)
	}
}

func TestProcessFileFromWAV(t *testing.T) {
	wave := sineWave(500, 16000, 2)
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := transcode.WriteWAVFile(path, wave.PCM, 16000); err != nil {
		t.Fatal(err)
	}
	tensor, err := newTestPipeline(t).ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if tensor.Shape() != [3]int{128, 128, 1} {
		t.Errorf("shape = %v", tensor.Shape())
	}
}

func TestExtractFollowsSampleRate(t *testing.T) {
	for _, sr := range []int{8000, 22050} {
		p := DefaultParams()
		p.SampleRate = sr
		ex, err := NewExtractor(p)
		if err != nil {
			t.Fatalf("sr %d: NewExtractor: %v", sr, err)
		}
		if got := ex.Params().FMax; got != float64(sr)/2 {
			t.Errorf("sr %d: fmax = %v, want Nyquist %v", sr, got, float64(sr)/2)
		}

		spec, err := ex.Extract(sineWave(440, sr, 1))
		if err != nil {
			t.Fatalf("sr %d: Extract: %v", sr, err)
		}
		if want := 1 + sr/512; spec.Bands != 128 || spec.Frames != want {
			t.Errorf("sr %d: shape = %dx%d, want 128x%d", sr, spec.Bands, spec.Frames, want)
		}
	}
}
