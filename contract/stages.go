package contract

import (
	"fmt"
	"strings"
)

// StageKind names a layer family in the reference architecture
type StageKind string

const (
	StageConv    StageKind = "conv2d"
	StagePool    StageKind = "maxpool2d"
	StageFlatten StageKind = "flatten"
	StageDense   StageKind = "dense"
	StageDropout StageKind = "dropout"
)

// Stage describes one layer by its effect on tensor shape
type Stage struct {
	Kind       StageKind `json:"kind" yaml:"kind"`
	Filters    int       `json:"filters,omitempty" yaml:"filters,omitempty"`
	Kernel     int       `json:"kernel,omitempty" yaml:"kernel,omitempty"` // square, valid padding, stride 1
	Pool       int       `json:"pool,omitempty" yaml:"pool,omitempty"`
	Units      int       `json:"units,omitempty" yaml:"units,omitempty"`
	Rate       float64   `json:"rate,omitempty" yaml:"rate,omitempty"` // dropout, training only
	Activation string    `json:"activation,omitempty" yaml:"activation,omitempty"`
}

// Shape is a tensor shape without the batch axis
type Shape []int

func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = fmt.Sprint(d)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ReferenceStages returns three conv(3x3, valid)+maxpool(2) blocks with
// 32, 64 and 128 filters, then flatten, dense 128 relu, dropout 0.5 and a
// softmax head sized to the contract
func ReferenceStages(c Contract) []Stage {
	return []Stage{
		{Kind: StageConv, Filters: 32, Kernel: 3, Activation: "relu"},
		{Kind: StagePool, Pool: 2},
		{Kind: StageConv, Filters: 64, Kernel: 3, Activation: "relu"},
		{Kind: StagePool, Pool: 2},
		{Kind: StageConv, Filters: 128, Kernel: 3, Activation: "relu"},
		{Kind: StagePool, Pool: 2},
		{Kind: StageFlatten},
		{Kind: StageDense, Units: 128, Activation: "relu"},
		{Kind: StageDropout, Rate: 0.5},
		{Kind: StageDense, Units: c.NumClasses(), Activation: "softmax"},
	}
}

// Propagate returns the output shape after each stage. It fails when a
// stage receives a shape it cannot consume or collapses a dimension to zero.
func Propagate(input Shape, stages []Stage) ([]Shape, error) {
	shape := append(Shape(nil), input...)
	out := make([]Shape, 0, len(stages))

	for i, st := range stages {
		next, err := st.apply(shape)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s) on %s: %w", i, st.Kind, shape, err)
		}
		shape = next
		out = append(out, shape)
	}
	return out, nil
}

func (st Stage) apply(in Shape) (Shape, error) {
	switch st.Kind {
	case StageConv:
		if len(in) != 3 {
			return nil, fmt.Errorf("expects rank 3 input")
		}
		if st.Kernel <= 0 || st.Filters <= 0 {
			return nil, fmt.Errorf("kernel and filters must be positive")
		}
		h, w := in[0]-st.Kernel+1, in[1]-st.Kernel+1
		if h <= 0 || w <= 0 {
			return nil, fmt.Errorf("kernel %d larger than input", st.Kernel)
		}
		return Shape{h, w, st.Filters}, nil

	case StagePool:
		if len(in) != 3 {
			return nil, fmt.Errorf("expects rank 3 input")
		}
		if st.Pool <= 0 {
			return nil, fmt.Errorf("pool size must be positive")
		}
		h, w := in[0]/st.Pool, in[1]/st.Pool
		if h <= 0 || w <= 0 {
			return nil, fmt.Errorf("pool %d collapses spatial dims", st.Pool)
		}
		return Shape{h, w, in[2]}, nil

	case StageFlatten:
		n := 1
		for _, d := range in {
			n *= d
		}
		return Shape{n}, nil

	case StageDense:
		if len(in) != 1 {
			return nil, fmt.Errorf("expects flattened input")
		}
		if st.Units <= 0 {
			return nil, fmt.Errorf("units must be positive")
		}
		return Shape{st.Units}, nil

	case StageDropout:
		if st.Rate < 0 || st.Rate >= 1 {
			return nil, fmt.Errorf("dropout rate %g outside [0, 1)", st.Rate)
		}
		return append(Shape(nil), in...), nil

	default:
		return nil, fmt.Errorf("unknown stage kind")
	}
}

// ReferenceModel is a Classifier described only by its stage list
type ReferenceModel struct {
	Input  [3]int
	Stages []Stage
}

// NewReferenceModel builds the reference architecture for c
func NewReferenceModel(c Contract) *ReferenceModel {
	return &ReferenceModel{Input: c.InputShape(), Stages: ReferenceStages(c)}
}

func (m *ReferenceModel) InputShape() [3]int { return m.Input }

// OutputClasses is the width of the last stage, or 0 if propagation fails
func (m *ReferenceModel) OutputClasses() int {
	shapes, err := Propagate(Shape(m.Input[:]), m.Stages)
	if err != nil || len(shapes) == 0 {
		return 0
	}
	last := shapes[len(shapes)-1]
	if len(last) != 1 {
		return 0
	}
	return last[0]
}
