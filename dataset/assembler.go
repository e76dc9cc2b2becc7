package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

// FeatureCache stores finished tensors between runs
type FeatureCache interface {
	Get(key string) (*features.Tensor, bool, error)
	Put(key string, t *features.Tensor) error
}

// Options tune assembly
type Options struct {
	Workers     int           // 0 means runtime.NumCPU()
	FileTimeout time.Duration // per-file decode+extract limit, 0 means none
	SkipErrors  bool          // drop failing samples instead of aborting
	Cache       FeatureCache  // optional
}

// Failure records a sample dropped in SkipErrors mode
type Failure struct {
	Sample Sample `json:"sample" yaml:"sample"`
	Err    error  `json:"-" yaml:"-"`
}

// Assembler builds a Dataset from a Source
type Assembler struct {
	pipeline *features.Pipeline
	contract contract.Contract
	opts     Options
	logger   logging.Logger
}

// NewAssembler checks that the pipeline's grid matches the contract
func NewAssembler(pipeline *features.Pipeline, c contract.Contract, opts Options) (*Assembler, error) {
	if pipeline == nil {
		return nil, &features.InvalidParameterError{Param: "pipeline", Value: nil, Reason: "must not be nil"}
	}
	if c.IsZero() {
		return nil, &features.InvalidParameterError{Param: "contract", Value: c, Reason: "must declare at least one class"}
	}
	if got := [3]int{pipeline.Height, pipeline.Width, 1}; got != c.InputShape() {
		return nil, &features.InvalidParameterError{
			Param:  "tensor",
			Value:  got,
			Reason: fmt.Sprintf("pipeline grid does not match contract input %v", c.InputShape()),
		}
	}
	if opts.Workers < 0 {
		return nil, &features.InvalidParameterError{Param: "workers", Value: opts.Workers, Reason: "must be non-negative"}
	}
	if opts.FileTimeout < 0 {
		return nil, &features.InvalidParameterError{Param: "file_timeout", Value: opts.FileTimeout, Reason: "must be non-negative"}
	}

	return &Assembler{
		pipeline: pipeline,
		contract: c,
		opts:     opts,
		logger: logging.WithFields(logging.Fields{
			"component": "dataset_assembler",
		}),
	}, nil
}

type itemResult struct {
	tensor *features.Tensor
	err    error
	done   bool
}

// Assemble processes every sample of src. Items run on a worker pool but
// results are slotted by source position, so the output order equals the
// source order. Unless SkipErrors is set, the first failure in source order
// is returned and no dataset is produced.
func (a *Assembler) Assemble(ctx context.Context, src Source) (*Dataset, error) {
	logger := a.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "Assemble",
	})
	start := time.Now()

	var samples []Sample
	for s, err := range src.Samples(ctx) {
		if err != nil {
			return nil, fmt.Errorf("listing samples: %w", err)
		}
		if _, ok := a.contract.Index(s.Label); !ok {
			return nil, &features.InvalidParameterError{
				Param:  "label",
				Value:  s.Label,
				Reason: fmt.Sprintf("sample %q has a label outside %v", s.Name(), a.contract.Classes()),
			}
		}
		samples = append(samples, s)
	}

	logger.Info("Assembling dataset", logging.Fields{
		"samples": len(samples),
		"workers": a.workerCount(len(samples)),
	})

	results := a.run(ctx, samples)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds := &Dataset{
		Contract: a.contract,
		Params:   a.pipeline.Extractor.Params(),
	}
	for i, s := range samples {
		r := results[i]
		if r.err != nil {
			if !a.opts.SkipErrors {
				logger.Error(r.err, "Dataset assembly aborted", logging.Fields{
					"path":  s.Path,
					"label": s.Label,
				})
				return nil, r.err
			}
			ds.Failures = append(ds.Failures, Failure{Sample: stripWave(s), Err: r.err})
			continue
		}
		if !r.done {
			// never dispatched because an earlier item already failed
			continue
		}
		onehot, _ := a.contract.OneHot(s.Label)
		ds.Features = append(ds.Features, r.tensor)
		ds.Labels = append(ds.Labels, onehot)
		ds.Sources = append(ds.Sources, stripWave(s))
	}

	if len(ds.Failures) > 0 {
		logger.Warn("Skipped unreadable samples", logging.Fields{
			"failures": len(ds.Failures),
			"kept":     ds.Len(),
		})
	}

	logger.Info("Dataset assembled", logging.Fields{
		"samples":  ds.Len(),
		"duration": time.Since(start).Seconds(),
	})

	return ds, nil
}

// run processes samples on a bounded pool. In fail-fast mode, items after
// the lowest failed index are not started, while items before it always
// complete so the reported error is the first one in source order.
func (a *Assembler) run(ctx context.Context, samples []Sample) []itemResult {
	results := make([]itemResult, len(samples))
	if len(samples) == 0 {
		return results
	}

	var (
		mu       sync.Mutex
		failedAt = len(samples)
	)
	shouldSkip := func(idx int) bool {
		if a.opts.SkipErrors {
			return false
		}
		mu.Lock()
		defer mu.Unlock()
		return idx > failedAt
	}
	markFailed := func(idx int) {
		mu.Lock()
		failedAt = min(failedAt, idx)
		mu.Unlock()
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	for range a.workerCount(len(samples)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if shouldSkip(idx) {
					continue
				}
				tensor, err := a.processOne(ctx, samples[idx])
				results[idx] = itemResult{tensor: tensor, err: err, done: err == nil}
				if err != nil {
					markFailed(idx)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for idx := range samples {
			if ctx.Err() != nil || shouldSkip(idx) {
				return
			}
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return results
}

func (a *Assembler) workerCount(n int) int {
	workers := a.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return max(1, min(workers, n))
}

// processOne loads, extracts and resizes a single sample, consulting the
// cache for file-backed samples. Errors carry the sample's path and label.
func (a *Assembler) processOne(ctx context.Context, s Sample) (*features.Tensor, error) {
	if a.opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.FileTimeout)
		defer cancel()
	}
	ctx = logging.ContextWithFields(ctx, logging.Fields{"label": s.Label, "sample": s.Name()})
	logger := a.logger.WithContext(ctx)

	key := ""
	if a.opts.Cache != nil && s.Path != "" {
		if k, err := a.cacheKey(s.Path); err == nil {
			key = k
			cached, ok, err := a.opts.Cache.Get(key)
			if err != nil {
				logger.Warn("Feature cache read failed", logging.Fields{"error": err.Error()})
			} else if ok {
				logger.Debug("Feature cache hit")
				return cached, nil
			}
		}
	}

	wave := s.Wave
	if wave == nil {
		if s.Path == "" {
			return nil, &features.UnreadableAudioError{Path: s.Name(), Label: s.Label, Err: errors.New("sample has neither a path nor a waveform")}
		}
		loaded, err := a.pipeline.Extractor.LoadFile(ctx, s.Path)
		if err != nil {
			return nil, annotate(err, s)
		}
		wave = loaded
	}

	tensor, err := a.pipeline.Process(wave)
	if err != nil {
		return nil, annotate(err, s)
	}
	if err := ctx.Err(); err != nil {
		// the deadline passed during extraction
		return nil, &features.UnreadableAudioError{Path: s.Name(), Label: s.Label, Err: err}
	}

	if key != "" {
		if err := a.opts.Cache.Put(key, tensor); err != nil {
			logger.Warn("Feature cache write failed", logging.Fields{"error": err.Error()})
		}
	}
	return tensor, nil
}

func (a *Assembler) cacheKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return fmt.Sprintf("%s|%d|%d|%s|%dx%d", abs, info.Size(), info.ModTime().UnixNano(),
		a.pipeline.Extractor.Fingerprint(), a.pipeline.Height, a.pipeline.Width), nil
}

// annotate attaches path and label to err
func annotate(err error, s Sample) error {
	var uae *features.UnreadableAudioError
	if errors.As(err, &uae) {
		if uae.Label == "" {
			uae.Label = s.Label
		}
		if uae.Path == "" {
			uae.Path = s.Name()
		}
		return err
	}
	return fmt.Errorf("%s (label %s): %w", s.Name(), s.Label, err)
}

func stripWave(s Sample) Sample {
	s.Wave = nil
	return s
}
