package export

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/dataset"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

func init() {
	logging.SetGlobalLogger(nil)
}

func buildDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ex, err := features.NewExtractor(features.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	p, err := features.NewPipeline(ex, 128, 128)
	if err != nil {
		t.Fatal(err)
	}
	a, err := dataset.NewAssembler(p, contract.Default(), dataset.Options{Workers: 2})
	if err != nil {
		t.Fatal(err)
	}

	src := &dataset.MemorySource{}
	for i, label := range []string{"happy", "angry", "angry"} {
		pcm := make([]float64, 8000)
		for j := range pcm {
			pcm[j] = 0.2 * math.Sin(2*math.Pi*float64(200+100*i)*float64(j)/16000)
		}
		src.Add(label, label+"-clip", transcode.NewAudioData(pcm, 16000))
	}
	ds, err := a.Assemble(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestSaveLoadFloat32(t *testing.T) {
	ds := buildDataset(t)
	dir := filepath.Join(t.TempDir(), "out")

	m, err := Save(dir, ds, Options{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := uuid.Parse(m.ID); err != nil {
		t.Errorf("manifest id %q: %v", m.ID, err)
	}
	if m.ClassCounts["angry"] != 2 || m.ClassCounts["sad"] != 0 {
		t.Errorf("class counts = %v", m.ClassCounts)
	}
	for _, name := range []string{DataFile, ManifestFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	got, gotManifest, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if gotManifest.ID != m.ID || gotManifest.Params != ds.Params {
		t.Errorf("manifest mismatch: %+v", gotManifest)
	}
	if got.FeatureShape() != ds.FeatureShape() || got.LabelShape() != ds.LabelShape() {
		t.Fatalf("shapes = %v %v", got.FeatureShape(), got.LabelShape())
	}
	want, have := ds.FeatureBatch(), got.FeatureBatch()
	for i := range want {
		if want[i] != have[i] {
			t.Fatalf("feature %d = %v, want %v", i, have[i], want[i])
		}
	}
	wantL, haveL := ds.LabelBatch(), got.LabelBatch()
	for i := range wantL {
		if wantL[i] != haveL[i] {
			t.Fatalf("label %d = %v, want %v", i, haveL[i], wantL[i])
		}
	}
	if got.Sources[2].ID != "angry-clip" {
		t.Errorf("sources = %+v", got.Sources)
	}
}

func TestSaveLoadFloat16(t *testing.T) {
	ds := buildDataset(t)
	dir := t.TempDir()

	if _, err := Save(dir, ds, Options{Precision: Float16}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Precision != Float16 {
		t.Errorf("precision = %q", m.Precision)
	}
	want, have := ds.FeatureBatch(), got.FeatureBatch()
	for i := range want {
		// z-scored values stay within a few units, so half precision keeps ~3 decimals
		if diff := math.Abs(float64(want[i] - have[i])); diff > 1e-2 {
			t.Fatalf("feature %d = %v, want %v", i, have[i], want[i])
		}
	}
}

func TestSaveRejectsBadPrecision(t *testing.T) {
	if _, err := Save(t.TempDir(), buildDataset(t), Options{Precision: "int8"}); err == nil {
		t.Error("expected error for unsupported precision")
	}
	if _, err := Save(t.TempDir(), nil, Options{}); err == nil {
		t.Error("expected error for nil dataset")
	}
}

func TestLoadMissing(t *testing.T) {
	if _, _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for empty directory")
	}
}
