package spectral

import (
	"fmt"
	"math"
)

// MelScaleType selects the Hz <-> mel mapping
type MelScaleType string

const (
	// MelHTK is 2595*log10(1+f/700)
	MelHTK MelScaleType = "htk"
	// MelSlaney is linear below 1 kHz and logarithmic above (Auditory Toolbox)
	MelSlaney MelScaleType = "slaney"
)

// Slaney scale constants
const (
	slaneyFSp       = 200.0 / 3
	slaneyMinLogHz  = 1000.0
	slaneyMinLogMel = slaneyMinLogHz / slaneyFSp
)

var slaneyLogStep = math.Log(6.4) / 27.0

// ParseMelScale accepts "slaney" (default) or "htk"
func ParseMelScale(s string) (MelScaleType, error) {
	switch MelScaleType(s) {
	case "", MelSlaney:
		return MelSlaney, nil
	case MelHTK:
		return MelHTK, nil
	default:
		return "", fmt.Errorf("unsupported mel scale %q", s)
	}
}

// MelScale provides mel frequency conversion and filter bank construction
type MelScale struct {
	scale MelScaleType
	// areaNorm scales each triangle by 2/(f_right-f_left) so every band has
	// roughly constant energy per Hz
	areaNorm bool
}

// NewMelScale creates a Slaney-scale, area-normalized mel converter
func NewMelScale() *MelScale {
	return &MelScale{scale: MelSlaney, areaNorm: true}
}

// NewMelScaleWithType creates a mel converter for the given scale
func NewMelScaleWithType(scale MelScaleType, areaNorm bool) *MelScale {
	return &MelScale{scale: scale, areaNorm: areaNorm}
}

// Type returns the configured scale
func (ms *MelScale) Type() MelScaleType { return ms.scale }

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if ms.scale == MelHTK {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}
	if hz >= slaneyMinLogHz {
		return slaneyMinLogMel + math.Log(hz/slaneyMinLogHz)/slaneyLogStep
	}
	return hz / slaneyFSp
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if ms.scale == MelHTK {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}
	if mel >= slaneyMinLogMel {
		return slaneyMinLogHz * math.Exp(slaneyLogStep*(mel-slaneyMinLogMel))
	}
	return slaneyFSp * mel
}

// CreateMelFilterBank creates a [numFilters][fftSize/2+1] filter bank.
// Triangles are evaluated at the exact bin center frequencies k*sr/fftSize
// rather than snapped to integer bins.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 || sampleRate <= 0 || highFreq <= lowFreq {
		return nil
	}

	numBins := fftSize/2 + 1
	binFreqs := make([]float64, numBins)
	for k := range binFreqs {
		binFreqs[k] = float64(k) * float64(sampleRate) / float64(fftSize)
	}

	// numFilters+2 points equally spaced in mel
	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)
	hzPoints := make([]float64, numFilters+2)
	melStep := (highMel - lowMel) / float64(numFilters+1)
	for i := range hzPoints {
		hzPoints[i] = ms.MelToHz(lowMel + float64(i)*melStep)
	}

	filterBank := make([][]float64, numFilters)
	for m := range numFilters {
		left, center, right := hzPoints[m], hzPoints[m+1], hzPoints[m+2]
		lowerWidth := center - left
		upperWidth := right - center

		norm := 1.0
		if ms.areaNorm {
			norm = 2.0 / (right - left)
		}

		filter := make([]float64, numBins)
		for k, f := range binFreqs {
			rising := (f - left) / lowerWidth
			falling := (right - f) / upperWidth
			w := math.Max(0, math.Min(rising, falling))
			filter[k] = w * norm
		}
		filterBank[m] = filter
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to one power spectrum frame
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}

// ProjectFrames maps a [frame][bin] power matrix onto the filter bank and
// returns it transposed as [band][frame]
func (ms *MelScale) ProjectFrames(power [][]float64, filterBank [][]float64) [][]float64 {
	bands := make([][]float64, len(filterBank))
	for b := range bands {
		bands[b] = make([]float64, len(power))
	}
	for t, frame := range power {
		for b, v := range ms.ApplyFilterBank(frame, filterBank) {
			bands[b][t] = v
		}
	}
	return bands
}
