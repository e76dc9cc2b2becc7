package dataset

import (
	"context"
	"errors"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

// DefaultExtensions are the file types DirSource picks up
var DefaultExtensions = []string{".wav", ".flac", ".mp3"}

// Sample is one labeled input. File-backed samples set Path; in-memory
// samples set Wave and usually ID.
type Sample struct {
	Label string               `json:"label" yaml:"label" msgpack:"label"`
	Path  string               `json:"path,omitempty" yaml:"path,omitempty" msgpack:"path,omitempty"`
	ID    string               `json:"id,omitempty" yaml:"id,omitempty" msgpack:"id,omitempty"`
	Wave  *transcode.AudioData `json:"-" yaml:"-" msgpack:"-"`
}

// Name identifies the sample in logs and errors
func (s Sample) Name() string {
	if s.Path != "" {
		return s.Path
	}
	return s.ID
}

// Source is an iterable of labeled samples in a deterministic order
type Source interface {
	Samples(ctx context.Context) iter.Seq2[Sample, error]
}

// DirSource walks Root/<label>/ for each class of the contract, in contract
// order, listing files in lexical order
type DirSource struct {
	Root       string
	Contract   contract.Contract
	LabelDirs  map[string]string // optional label -> directory, relative to Root unless absolute
	Extensions []string
}

// NewDirSource creates a source over root using the default extensions
func NewDirSource(root string, c contract.Contract) *DirSource {
	return &DirSource{
		Root:       root,
		Contract:   c,
		Extensions: slices.Clone(DefaultExtensions),
	}
}

func (d *DirSource) dirFor(label string) string {
	dir, ok := d.LabelDirs[label]
	if !ok || dir == "" {
		return filepath.Join(d.Root, label)
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(d.Root, dir)
}

func (d *DirSource) accepts(name string) bool {
	exts := d.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Samples implements Source. A missing class directory yields nothing for
// that class; any other listing error is yielded and ends the sequence.
func (d *DirSource) Samples(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		logger := logging.WithContext(ctx).WithFields(logging.Fields{
			"component": "dataset_source",
			"function":  "Samples",
			"root":      d.Root,
		})

		for label := range d.LabelDirs {
			if _, ok := d.Contract.Index(label); !ok {
				yield(Sample{}, &features.InvalidParameterError{
					Param:  "label_dirs",
					Value:  label,
					Reason: "label is not part of the class list",
				})
				return
			}
		}

		for _, label := range d.Contract.Classes() {
			if err := ctx.Err(); err != nil {
				yield(Sample{}, err)
				return
			}

			dir := d.dirFor(label)
			entries, err := os.ReadDir(dir)
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Class directory missing, contributing no samples", logging.Fields{
					"label": label,
					"dir":   dir,
				})
				continue
			}
			if err != nil {
				yield(Sample{}, err)
				return
			}

			// os.ReadDir sorts by file name
			count := 0
			for _, entry := range entries {
				if entry.IsDir() || !d.accepts(entry.Name()) {
					continue
				}
				count++
				if !yield(Sample{Label: label, Path: filepath.Join(dir, entry.Name())}, nil) {
					return
				}
			}

			logger.Debug("Listed class directory", logging.Fields{
				"label": label,
				"files": count,
			})
		}
	}
}

// MemorySource serves pre-decoded waveforms, mostly for tests and
// synthetic data
type MemorySource struct {
	Items []Sample
}

// Add appends a labeled waveform
func (m *MemorySource) Add(label, id string, wave *transcode.AudioData) {
	m.Items = append(m.Items, Sample{Label: label, ID: id, Wave: wave})
}

// Samples implements Source
func (m *MemorySource) Samples(ctx context.Context) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		for _, s := range m.Items {
			if err := ctx.Err(); err != nil {
				yield(Sample{}, err)
				return
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}
