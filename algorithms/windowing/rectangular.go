package windowing

import "fmt"

// Rectangular leaves frames untouched
type Rectangular struct {
	size         int
	coefficients []float64
}

// NewRectangular creates a new rectangular window
func NewRectangular(size int) *Rectangular {
	r := &Rectangular{size: size, coefficients: make([]float64, size)}
	for i := range r.coefficients {
		r.coefficients[i] = 1.0
	}
	return r
}

func (r *Rectangular) Apply(signal []float64) []float64 { return applyCopy(r.coefficients, signal) }

func (r *Rectangular) ApplyInPlace(signal []float64) error {
	if len(signal) != r.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), r.size)
	}
	return nil
}

func (r *Rectangular) GetCoefficients() []float64 { return copyCoefficients(r.coefficients) }

func (r *Rectangular) GetSize() int { return r.size }

func (r *Rectangular) GetType() string { return string(TypeRectangular) }
