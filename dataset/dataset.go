package dataset

import (
	"github.com/RyanBlaney/sonido-emotion/contract"
	"github.com/RyanBlaney/sonido-emotion/features"
)

// Dataset is an ordered set of (tensor, one-hot label) pairs. It is not
// modified after Assemble returns.
type Dataset struct {
	Features []*features.Tensor
	Labels   [][]float32
	Sources  []Sample
	Contract contract.Contract
	Params   features.Params
	Failures []Failure
}

// Len is the number of samples N
func (d *Dataset) Len() int {
	return len(d.Features)
}

// FeatureShape is (N, H, W, C)
func (d *Dataset) FeatureShape() [4]int {
	in := d.Contract.InputShape()
	return [4]int{d.Len(), in[0], in[1], in[2]}
}

// LabelShape is (N, numClasses)
func (d *Dataset) LabelShape() [2]int {
	return [2]int{len(d.Labels), d.Contract.NumClasses()}
}

// FeatureBatch returns all tensors stacked row-major into one slice
func (d *Dataset) FeatureBatch() []float32 {
	shape := d.FeatureShape()
	per := shape[1] * shape[2] * shape[3]
	batch := make([]float32, 0, d.Len()*per)
	for _, t := range d.Features {
		batch = append(batch, t.Data...)
	}
	return batch
}

// LabelBatch returns all label vectors stacked into one slice
func (d *Dataset) LabelBatch() []float32 {
	batch := make([]float32, 0, len(d.Labels)*d.Contract.NumClasses())
	for _, l := range d.Labels {
		batch = append(batch, l...)
	}
	return batch
}

// ClassCounts returns the number of samples per class, including zeros
func (d *Dataset) ClassCounts() map[string]int {
	counts := make(map[string]int, d.Contract.NumClasses())
	for _, name := range d.Contract.Classes() {
		counts[name] = 0
	}
	for _, s := range d.Sources {
		counts[s.Label]++
	}
	return counts
}
