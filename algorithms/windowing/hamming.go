package windowing

import (
	"math"
)

// Hamming represents a Hamming window function
type Hamming struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHamming creates a new Hamming window
func NewHamming(size int, symmetric bool) *Hamming {
	h := &Hamming{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hamming) generate() {
	h.coefficients = make([]float64, h.size)
	d := denominator(h.size, h.symmetric)
	for i := range h.size {
		h.coefficients[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/d)
	}
}

func (h *Hamming) Apply(signal []float64) []float64 { return applyCopy(h.coefficients, signal) }

func (h *Hamming) ApplyInPlace(signal []float64) error { return applyInPlace(h.coefficients, signal) }

func (h *Hamming) GetCoefficients() []float64 { return copyCoefficients(h.coefficients) }

func (h *Hamming) GetSize() int { return h.size }

func (h *Hamming) GetType() string { return string(TypeHamming) }
