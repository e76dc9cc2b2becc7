package windowing

import (
	"math"
)

// Hann represents a Hann window function
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)
	d := denominator(h.size, h.symmetric)
	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/d))
	}
}

// Apply applies the window to a signal (creates new array)
func (h *Hann) Apply(signal []float64) []float64 { return applyCopy(h.coefficients, signal) }

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error { return applyInPlace(h.coefficients, signal) }

// GetCoefficients returns a copy of the window coefficients
func (h *Hann) GetCoefficients() []float64 { return copyCoefficients(h.coefficients) }

func (h *Hann) GetSize() int { return h.size }

func (h *Hann) GetType() string { return string(TypeHann) }
