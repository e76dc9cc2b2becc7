// Package contract declares the tensor shapes and class order that any
// classifier consuming the feature pipeline must honor.
package contract

import (
	"fmt"
	"slices"
)

// DefaultClasses is the reference label order
var DefaultClasses = []string{"happy", "sad", "angry", "neutral"}

// Contract is an immutable shape and label-order agreement
type Contract struct {
	height   int
	width    int
	channels int
	classes  []string
	index    map[string]int
}

// Default returns the (128, 128, 1) contract over DefaultClasses
func Default() Contract {
	c, _ := New(128, 128, DefaultClasses)
	return c
}

// New builds a single-channel contract. Classes must be non-empty and unique.
func New(height, width int, classes []string) (Contract, error) {
	if height <= 0 || width <= 0 {
		return Contract{}, fmt.Errorf("input dimensions must be positive, got %dx%d", height, width)
	}
	if len(classes) == 0 {
		return Contract{}, fmt.Errorf("at least one class is required")
	}

	index := make(map[string]int, len(classes))
	for i, name := range classes {
		if name == "" {
			return Contract{}, fmt.Errorf("class %d has an empty name", i)
		}
		if _, dup := index[name]; dup {
			return Contract{}, fmt.Errorf("duplicate class %q", name)
		}
		index[name] = i
	}

	return Contract{
		height:   height,
		width:    width,
		channels: 1,
		classes:  slices.Clone(classes),
		index:    index,
	}, nil
}

// InputShape returns (height, width, channels)
func (c Contract) InputShape() [3]int {
	return [3]int{c.height, c.width, c.channels}
}

// NumClasses is the length of every label and probability vector
func (c Contract) NumClasses() int {
	return len(c.classes)
}

// Classes returns a copy of the ordered class list
func (c Contract) Classes() []string {
	return slices.Clone(c.classes)
}

// Index returns the position of label in the class list
func (c Contract) Index(label string) (int, bool) {
	i, ok := c.index[label]
	return i, ok
}

// Label returns the class name at index i
func (c Contract) Label(i int) (string, error) {
	if i < 0 || i >= len(c.classes) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", i, len(c.classes))
	}
	return c.classes[i], nil
}

// OneHot encodes label as a vector with a single 1 at its index
func (c Contract) OneHot(label string) ([]float32, error) {
	i, ok := c.index[label]
	if !ok {
		return nil, fmt.Errorf("unknown label %q", label)
	}
	v := make([]float32, len(c.classes))
	v[i] = 1
	return v, nil
}

// IsZero reports whether c is the zero value
func (c Contract) IsZero() bool {
	return len(c.classes) == 0
}

func (c Contract) String() string {
	return fmt.Sprintf("input=%dx%dx%d classes=%v", c.height, c.width, c.channels, c.classes)
}

// Classifier is the minimal surface a model exposes for compatibility checks
type Classifier interface {
	InputShape() [3]int
	OutputClasses() int
}

// Check returns an error if m would not accept the pipeline's tensors or
// would produce a probability vector of the wrong length
func (c Contract) Check(m Classifier) error {
	if m == nil {
		return fmt.Errorf("nil classifier")
	}
	if got := m.InputShape(); got != c.InputShape() {
		return fmt.Errorf("classifier input shape %v does not match contract %v", got, c.InputShape())
	}
	if got := m.OutputClasses(); got != c.NumClasses() {
		return fmt.Errorf("classifier produces %d classes, contract declares %d", got, c.NumClasses())
	}
	return nil
}
