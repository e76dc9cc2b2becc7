package windowing

import (
	"fmt"
	"strings"
)

// Type names a window function
type Type string

const (
	TypeHann        Type = "hann"
	TypeHamming     Type = "hamming"
	TypeBlackman    Type = "blackman"
	TypeRectangular Type = "rectangular"
)

// Window is a precomputed tapering function applied to each STFT frame
type Window interface {
	Apply(signal []float64) []float64
	ApplyInPlace(signal []float64) error
	GetCoefficients() []float64
	GetSize() int
	GetType() string
}

// ParseType accepts the names used in configuration files
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TypeHann, "hanning":
		return TypeHann, nil
	case TypeHamming, TypeBlackman, TypeRectangular:
		return t, nil
	case "boxcar", "none":
		return TypeRectangular, nil
	default:
		return "", fmt.Errorf("unsupported window type %q", s)
	}
}

// New builds a window of the given type. Spectral analysis wants periodic
// windows (symmetric=false), filter design wants symmetric ones.
func New(t Type, size int, symmetric bool) (Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	switch t {
	case TypeHann, "":
		return NewHann(size, symmetric), nil
	case TypeHamming:
		return NewHamming(size, symmetric), nil
	case TypeBlackman:
		return NewBlackman(size, symmetric), nil
	case TypeRectangular:
		return NewRectangular(size), nil
	default:
		return nil, fmt.Errorf("unsupported window type %q", t)
	}
}

// denominator returns N for periodic windows and N-1 for symmetric ones
func denominator(size int, symmetric bool) float64 {
	if symmetric && size > 1 {
		return float64(size - 1)
	}
	return float64(size)
}

func applyCopy(coefficients, signal []float64) []float64 {
	if len(signal) != len(coefficients) {
		return nil
	}
	windowed := make([]float64, len(signal))
	for i, c := range coefficients {
		windowed[i] = signal[i] * c
	}
	return windowed
}

func applyInPlace(coefficients, signal []float64) error {
	if len(signal) != len(coefficients) {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), len(coefficients))
	}
	for i, c := range coefficients {
		signal[i] *= c
	}
	return nil
}

func copyCoefficients(coefficients []float64) []float64 {
	coeffs := make([]float64, len(coefficients))
	copy(coeffs, coefficients)
	return coeffs
}
