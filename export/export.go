// Package export writes assembled datasets to disk for external trainers:
// a msgpack bundle with the stacked batches plus a YAML manifest.
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/x448/float16"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/dataset"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

const (
	DataFile     = "dataset.msgpack"
	ManifestFile = "manifest.yaml"

	bundleVersion = 1
)

// Precision selects how feature values are stored
type Precision string

const (
	Float32 Precision = "float32"
	Float16 Precision = "float16"
)

// ParsePrecision accepts "float32" (default) or "float16"
func ParsePrecision(s string) (Precision, error) {
	switch Precision(s) {
	case "", Float32:
		return Float32, nil
	case Float16:
		return Float16, nil
	default:
		return "", fmt.Errorf("unsupported precision %q", s)
	}
}

// Options control Save
type Options struct {
	Precision Precision
}

// Manifest describes a saved dataset
type Manifest struct {
	ID           string          `yaml:"id"`
	CreatedAt    time.Time       `yaml:"created_at"`
	DataFile     string          `yaml:"data_file"`
	Precision    Precision       `yaml:"precision"`
	Classes      []string        `yaml:"classes,flow"`
	FeatureShape [4]int          `yaml:"feature_shape,flow"`
	LabelShape   [2]int          `yaml:"label_shape,flow"`
	ClassCounts  map[string]int  `yaml:"class_counts"`
	Params       features.Params `yaml:"params"`
	Sources      []ManifestEntry `yaml:"sources"`
	Skipped      []ManifestEntry `yaml:"skipped,omitempty"`
}

// ManifestEntry records where a row came from
type ManifestEntry struct {
	Label string `yaml:"label"`
	Path  string `yaml:"path,omitempty"`
	ID    string `yaml:"id,omitempty"`
	Error string `yaml:"error,omitempty"`
}

type bundle struct {
	Version   int       `msgpack:"version"`
	Precision Precision `msgpack:"precision"`
	Shape     [4]int    `msgpack:"shape"`
	Classes   int       `msgpack:"classes"`
	F32       []float32 `msgpack:"f32,omitempty"`
	F16       []uint16  `msgpack:"f16,omitempty"`
	Labels    []float32 `msgpack:"labels"`
}

// Save writes DataFile and ManifestFile into dir, creating it if needed
func Save(dir string, ds *dataset.Dataset, opts Options) (*Manifest, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "dataset_export",
		"function":  "Save",
		"dir":       dir,
	})

	if ds == nil {
		return nil, errors.New("export: nil dataset")
	}
	precision, err := ParsePrecision(string(opts.Precision))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	b := bundle{
		Version:   bundleVersion,
		Precision: precision,
		Shape:     ds.FeatureShape(),
		Classes:   ds.Contract.NumClasses(),
		Labels:    ds.LabelBatch(),
	}
	batch := ds.FeatureBatch()
	if precision == Float16 {
		b.F16 = make([]uint16, len(batch))
		for i, v := range batch {
			b.F16[i] = float16.Fromfloat32(v).Bits()
		}
	} else {
		b.F32 = batch
	}

	if err := writeMsgpack(filepath.Join(dir, DataFile), b); err != nil {
		return nil, err
	}

	m := &Manifest{
		ID:           uuid.NewString(),
		CreatedAt:    time.Now().UTC(),
		DataFile:     DataFile,
		Precision:    precision,
		Classes:      ds.Contract.Classes(),
		FeatureShape: ds.FeatureShape(),
		LabelShape:   ds.LabelShape(),
		ClassCounts:  ds.ClassCounts(),
		Params:       ds.Params,
	}
	for _, s := range ds.Sources {
		m.Sources = append(m.Sources, ManifestEntry{Label: s.Label, Path: s.Path, ID: s.ID})
	}
	for _, f := range ds.Failures {
		entry := ManifestEntry{Label: f.Sample.Label, Path: f.Sample.Path, ID: f.Sample.ID}
		if f.Err != nil {
			entry.Error = f.Err.Error()
		}
		m.Skipped = append(m.Skipped, entry)
	}

	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("export: manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), out, 0o644); err != nil {
		return nil, fmt.Errorf("export: manifest: %w", err)
	}

	logger.Info("Dataset exported", logging.Fields{
		"id":        m.ID,
		"samples":   ds.Len(),
		"precision": string(precision),
	})
	return m, nil
}

// Load reads a directory written by Save back into a Dataset. Float16
// features are widened to float32.
func Load(dir string) (*dataset.Dataset, *Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, nil, fmt.Errorf("export: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("export: manifest: %w", err)
	}

	dataName := m.DataFile
	if dataName == "" {
		dataName = DataFile
	}
	f, err := os.Open(filepath.Join(dir, dataName))
	if err != nil {
		return nil, nil, fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	var b bundle
	if err := msgpack.NewDecoder(f).Decode(&b); err != nil {
		return nil, nil, fmt.Errorf("export: decode bundle: %w", err)
	}
	if b.Version != bundleVersion {
		return nil, nil, fmt.Errorf("export: unsupported bundle version %d", b.Version)
	}

	n, h, w, ch := b.Shape[0], b.Shape[1], b.Shape[2], b.Shape[3]
	c, err := contract.New(h, w, m.Classes)
	if err != nil {
		return nil, nil, fmt.Errorf("export: manifest contract: %w", err)
	}
	if b.Classes != c.NumClasses() || len(b.Labels) != n*b.Classes {
		return nil, nil, fmt.Errorf("export: label batch does not match %d x %d", n, b.Classes)
	}

	values := b.F32
	if b.Precision == Float16 {
		values = make([]float32, len(b.F16))
		for i, bits := range b.F16 {
			values[i] = float16.Frombits(bits).Float32()
		}
	}
	per := h * w * ch
	if len(values) != n*per {
		return nil, nil, fmt.Errorf("export: feature batch has %d values, want %d", len(values), n*per)
	}

	ds := &dataset.Dataset{Contract: c, Params: m.Params}
	for i := range n {
		ds.Features = append(ds.Features, &features.Tensor{
			Height: h, Width: w, Channels: ch,
			Data: values[i*per : (i+1)*per : (i+1)*per],
		})
		ds.Labels = append(ds.Labels, b.Labels[i*b.Classes:(i+1)*b.Classes:(i+1)*b.Classes])
		if i < len(m.Sources) {
			src := m.Sources[i]
			ds.Sources = append(ds.Sources, dataset.Sample{Label: src.Label, Path: src.Path, ID: src.ID})
		}
	}
	return ds, &m, nil
}

func writeMsgpack(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if err := msgpack.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("export: encode bundle: %w", err)
	}
	return f.Close()
}
