package windowing

import (
	"math"
)

// Blackman represents a classic three-term Blackman window
type Blackman struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewBlackman creates a new Blackman window
func NewBlackman(size int, symmetric bool) *Blackman {
	b := &Blackman{
		size:      size,
		symmetric: symmetric,
	}
	b.generate()
	return b
}

func (b *Blackman) generate() {
	const (
		a0 = 0.42
		a1 = 0.5
		a2 = 0.08
	)
	b.coefficients = make([]float64, b.size)
	d := denominator(b.size, b.symmetric)
	for i := range b.size {
		x := 2 * math.Pi * float64(i) / d
		// clamp tiny negative values at the edges
		b.coefficients[i] = math.Max(0, a0-a1*math.Cos(x)+a2*math.Cos(2*x))
	}
}

func (b *Blackman) Apply(signal []float64) []float64 { return applyCopy(b.coefficients, signal) }

func (b *Blackman) ApplyInPlace(signal []float64) error { return applyInPlace(b.coefficients, signal) }

func (b *Blackman) GetCoefficients() []float64 { return copyCoefficients(b.coefficients) }

func (b *Blackman) GetSize() int { return b.size }

func (b *Blackman) GetType() string { return string(TypeBlackman) }
