package spectral

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultAmin is the power floor applied before taking logarithms
const DefaultAmin = 1e-10

// PowerSpectrum provides power and decibel conversions
type PowerSpectrum struct{}

// NewPowerSpectrum creates a new power spectrum calculator
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{}
}

// Compute computes power spectral density from magnitude spectrum
func (ps *PowerSpectrum) Compute(magnitudeSpectrum []float64) []float64 {
	if len(magnitudeSpectrum) == 0 {
		return []float64{}
	}

	power := make([]float64, len(magnitudeSpectrum))
	for i, mag := range magnitudeSpectrum {
		power[i] = mag * mag
	}

	return power
}

// ToDBRefMax converts a power matrix to decibels relative to its own maximum:
//
//	10*log10(max(amin, S)) - 10*log10(max(amin, max(S)))
//
// then clips everything below -topDB. topDB <= 0 disables clipping.
// The largest output value is always exactly 0.
func (ps *PowerSpectrum) ToDBRefMax(power [][]float64, amin, topDB float64) [][]float64 {
	if len(power) == 0 {
		return [][]float64{}
	}
	if amin <= 0 {
		amin = DefaultAmin
	}

	ref := math.Inf(-1)
	for _, row := range power {
		if len(row) > 0 {
			ref = math.Max(ref, floats.Max(row))
		}
	}
	refDB := 10 * math.Log10(math.Max(amin, ref))

	out := make([][]float64, len(power))
	peak := math.Inf(-1)
	for i, row := range power {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			db := 10*math.Log10(math.Max(amin, v)) - refDB
			out[i][j] = db
			peak = math.Max(peak, db)
		}
	}

	if topDB > 0 {
		floor := peak - topDB
		for _, row := range out {
			for j, v := range row {
				if v < floor {
					row[j] = floor
				}
			}
		}
	}

	return out
}
