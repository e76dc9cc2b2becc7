package dataset

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

func init() {
	logging.SetGlobalLogger(nil)
}

func tone(freq float64, seconds float64) []float64 {
	n := int(16000 * seconds)
	pcm := make([]float64, n)
	for i := range pcm {
		pcm[i] = 0.4 * math.Sin(2*math.Pi*freq*float64(i)/16000)
	}
	return pcm
}

func writeTone(t *testing.T, path string, freq, seconds float64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := transcode.WriteWAVFile(path, tone(freq, seconds), 16000); err != nil {
		t.Fatal(err)
	}
}

func writeGarbage(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("definitely not a RIFF file"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newAssembler(t *testing.T, opts Options) *Assembler {
	t.Helper()
	ex, err := features.NewExtractor(features.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	p, err := features.NewPipeline(ex, 128, 128)
	if err != nil {
		t.Fatal(err)
	}
	a, err := NewAssembler(p, contract.Default(), opts)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestAssembleEndToEnd(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "happy", "a.wav"), 440, 2)
	writeTone(t, filepath.Join(root, "sad", "b.wav"), 220, 2)

	ds, err := newAssembler(t, Options{}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	if ds.Len() != 2 {
		t.Fatalf("N = %d, want 2", ds.Len())
	}
	if got := ds.FeatureShape(); got != [4]int{2, 128, 128, 1} {
		t.Errorf("feature shape = %v", got)
	}
	if got := ds.LabelShape(); got != [2]int{2, 4} {
		t.Errorf("label shape = %v", got)
	}
	if len(ds.FeatureBatch()) != 2*128*128 || len(ds.LabelBatch()) != 8 {
		t.Errorf("batch sizes = %d, %d", len(ds.FeatureBatch()), len(ds.LabelBatch()))
	}

	want := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	for i := range want {
		for j := range want[i] {
			if ds.Labels[i][j] != want[i][j] {
				t.Errorf("label[%d] = %v, want %v", i, ds.Labels[i], want[i])
				break
			}
		}
	}
	if filepath.Base(ds.Sources[0].Path) != "a.wav" || ds.Sources[1].Label != "sad" {
		t.Errorf("sources = %+v", ds.Sources)
	}

	counts := ds.ClassCounts()
	if counts["happy"] != 1 || counts["sad"] != 1 || counts["angry"] != 0 || len(counts) != 4 {
		t.Errorf("class counts = %v", counts)
	}
}

func TestAssembleCorruptFileFails(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "happy", "a.wav"), 440, 1)
	bad := filepath.Join(root, "happy", "b.wav")
	writeGarbage(t, bad)
	writeTone(t, filepath.Join(root, "sad", "c.wav"), 220, 1)

	ds, err := newAssembler(t, Options{Workers: 3}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
	if ds != nil {
		t.Fatal("partial dataset returned")
	}
	var uae *features.UnreadableAudioError
	if !errors.As(err, &uae) {
		t.Fatalf("err = %v, want UnreadableAudioError", err)
	}
	if uae.Path != bad || uae.Label != "happy" {
		t.Errorf("error context = %q %q", uae.Path, uae.Label)
	}
	if !errors.Is(err, features.ErrUnreadableAudio) {
		t.Error("errors.Is(ErrUnreadableAudio) = false")
	}
}

func TestAssembleReportsFirstFailureInOrder(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "angry", "x.wav")
	writeGarbage(t, first)
	writeGarbage(t, filepath.Join(root, "neutral", "y.wav"))
	for _, name := range []string{"1.wav", "2.wav", "3.wav"} {
		writeTone(t, filepath.Join(root, "happy", name), 300, 0.5)
	}

	for range 3 {
		_, err := newAssembler(t, Options{Workers: 4}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
		var uae *features.UnreadableAudioError
		if !errors.As(err, &uae) || uae.Path != first {
			t.Fatalf("err = %v, want failure on %s", err, first)
		}
	}
}

func TestAssembleTruncatedFileFails(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "happy", "a.wav"), 440, 1)
	cut := filepath.Join(root, "sad", "cut.wav")
	writeTone(t, cut, 220, 1)
	if err := os.Truncate(cut, 44+8000); err != nil {
		t.Fatal(err)
	}

	ds, err := newAssembler(t, Options{Workers: 2}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
	if ds != nil {
		t.Fatal("partial dataset returned")
	}
	var uae *features.UnreadableAudioError
	if !errors.As(err, &uae) || uae.Path != cut || uae.Label != "sad" {
		t.Fatalf("err = %v, want UnreadableAudioError for %s", err, cut)
	}
	if !errors.Is(err, transcode.ErrTruncated) {
		t.Errorf("err = %v, want ErrTruncated in chain", err)
	}
}

func TestAssembleFileTimeoutIsUnreadable(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "happy", "slow.wav")
	writeTone(t, path, 440, 1)

	_, err := newAssembler(t, Options{FileTimeout: time.Nanosecond}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
	var uae *features.UnreadableAudioError
	if !errors.As(err, &uae) || uae.Path != path || uae.Label != "happy" {
		t.Fatalf("err = %v, want UnreadableAudioError for %s", err, path)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded in chain", err)
	}

	// in-memory waves hit the same deadline after extraction
	src := &MemorySource{}
	src.Add("sad", "mem", transcode.NewAudioData(tone(220, 1), 16000))
	_, err = newAssembler(t, Options{FileTimeout: time.Nanosecond}).Assemble(context.Background(), src)
	if !errors.Is(err, features.ErrUnreadableAudio) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("memory sample err = %v", err)
	}
}

func TestAssembleSkipErrors(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "happy", "a.wav"), 440, 1)
	writeGarbage(t, filepath.Join(root, "sad", "broken.wav"))

	ds, err := newAssembler(t, Options{SkipErrors: true}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if ds.Len() != 1 || len(ds.Failures) != 1 {
		t.Fatalf("N=%d failures=%d, want 1 and 1", ds.Len(), len(ds.Failures))
	}
	if ds.Failures[0].Sample.Label != "sad" || !errors.Is(ds.Failures[0].Err, features.ErrUnreadableAudio) {
		t.Errorf("failure = %+v", ds.Failures[0])
	}
}

func TestAssembleDeterministicOrder(t *testing.T) {
	root := t.TempDir()
	names := []string{"c.wav", "a.wav", "b.flac.wav", "d.wav"}
	for i, name := range names {
		writeTone(t, filepath.Join(root, "neutral", name), 200+float64(i)*50, 0.3)
		writeTone(t, filepath.Join(root, "happy", name), 600+float64(i)*50, 0.3)
	}

	run := func() *Dataset {
		ds, err := newAssembler(t, Options{Workers: 4}).Assemble(context.Background(), NewDirSource(root, contract.Default()))
		if err != nil {
			t.Fatal(err)
		}
		return ds
	}
	a, b := run(), run()

	if a.Len() != 8 {
		t.Fatalf("N = %d, want 8", a.Len())
	}
	wantOrder := []string{"a.wav", "b.flac.wav", "c.wav", "d.wav"}
	for i, s := range a.Sources {
		wantLabel := "happy"
		if i >= 4 {
			wantLabel = "neutral"
		}
		if s.Label != wantLabel || filepath.Base(s.Path) != wantOrder[i%4] {
			t.Errorf("source %d = %s %s", i, s.Label, filepath.Base(s.Path))
		}
		if s != b.Sources[i] {
			t.Errorf("source %d differs between runs", i)
		}
	}
	fa, fb := a.FeatureBatch(), b.FeatureBatch()
	for i := range fa {
		if fa[i] != fb[i] {
			t.Fatalf("feature element %d differs between runs", i)
		}
	}
}

func TestDirSourceFiltering(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "happy", "keep.WAV"), 440, 0.1)
	writeGarbage(t, filepath.Join(root, "happy", "notes.txt"))
	writeTone(t, filepath.Join(root, "happy", "nested", "skip.wav"), 440, 0.1)
	writeTone(t, filepath.Join(root, "custom", "z.wav"), 440, 0.1)

	src := NewDirSource(root, contract.Default())
	src.LabelDirs = map[string]string{"angry": "custom"}

	var got []Sample
	for s, err := range src.Samples(context.Background()) {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, s)
	}
	if len(got) != 2 {
		t.Fatalf("got %d samples: %+v", len(got), got)
	}
	if filepath.Base(got[0].Path) != "keep.WAV" || got[1].Label != "angry" {
		t.Errorf("samples = %+v", got)
	}

	src.LabelDirs = map[string]string{"bored": "custom"}
	for _, err := range src.Samples(context.Background()) {
		if !errors.Is(err, features.ErrInvalidParameter) {
			t.Fatalf("err = %v, want ErrInvalidParameter", err)
		}
	}
}

func TestAssembleMemorySource(t *testing.T) {
	src := &MemorySource{}
	labels := []string{"neutral", "happy", "angry", "sad", "happy", "neutral"}
	for i, label := range labels {
		src.Add(label, label+"-"+string(rune('a'+i)), transcode.NewAudioData(tone(150+float64(i)*100, 0.25), 16000))
	}

	ds, err := newAssembler(t, Options{Workers: 3}).Assemble(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != len(labels) {
		t.Fatalf("N = %d", ds.Len())
	}
	c := contract.Default()
	for i, label := range labels {
		idx, _ := c.Index(label)
		if ds.Labels[i][idx] != 1 || ds.Sources[i].Label != label {
			t.Errorf("row %d: label %v, source %+v", i, ds.Labels[i], ds.Sources[i])
		}
		if ds.Sources[i].Wave != nil {
			t.Errorf("row %d keeps its waveform", i)
		}
	}
}

func TestAssembleUnknownLabel(t *testing.T) {
	src := &MemorySource{}
	src.Add("bored", "x", transcode.NewAudioData(tone(100, 0.1), 16000))
	_, err := newAssembler(t, Options{}).Assemble(context.Background(), src)
	if !errors.Is(err, features.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
}

func TestAssembleEmptyTree(t *testing.T) {
	ds, err := newAssembler(t, Options{}).Assemble(context.Background(), NewDirSource(t.TempDir(), contract.Default()))
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 0 || ds.FeatureShape() != [4]int{0, 128, 128, 1} {
		t.Errorf("empty dataset shape = %v", ds.FeatureShape())
	}
}

func TestAssembleCancelled(t *testing.T) {
	src := &MemorySource{}
	src.Add("happy", "x", transcode.NewAudioData(tone(100, 0.1), 16000))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newAssembler(t, Options{}).Assemble(ctx, src); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type mapCache struct {
	mu   sync.Mutex
	m    map[string]*features.Tensor
	hits int
}

func (c *mapCache) Get(key string) (*features.Tensor, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.m[key]
	if ok {
		c.hits++
	}
	return t, ok, nil
}

func (c *mapCache) Put(key string, t *features.Tensor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = t
	return nil
}

func TestAssembleUsesCache(t *testing.T) {
	root := t.TempDir()
	writeTone(t, filepath.Join(root, "happy", "a.wav"), 440, 0.5)
	writeTone(t, filepath.Join(root, "sad", "b.wav"), 220, 0.5)

	cache := &mapCache{m: map[string]*features.Tensor{}}
	a := newAssembler(t, Options{Cache: cache})
	src := NewDirSource(root, contract.Default())

	first, err := a.Assemble(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if len(cache.m) != 2 || cache.hits != 0 {
		t.Fatalf("after first run: entries=%d hits=%d", len(cache.m), cache.hits)
	}
	second, err := a.Assemble(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if cache.hits != 2 {
		t.Errorf("hits = %d, want 2", cache.hits)
	}
	if second.Features[0] != first.Features[0] {
		t.Error("cached tensor not reused")
	}
}

func TestNewAssemblerRejectsGridMismatch(t *testing.T) {
	ex, err := features.NewExtractor(features.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	p, err := features.NewPipeline(ex, 64, 64)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewAssembler(p, contract.Default(), Options{}); !errors.Is(err, features.ErrInvalidParameter) {
		t.Fatalf("err = %v, want ErrInvalidParameter", err)
	}
}
