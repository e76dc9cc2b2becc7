package common

// NormalizationType defines normalization method
type NormalizationType int

const (
	ZScore NormalizationType = iota
	MinMaxScale
)

// degenerateStd is the spread below which input is treated as constant
const degenerateStd = 1e-10

// Normalizer provides signal normalization methods
type Normalizer struct {
	method NormalizationType
}

// NewNormalizer creates a new normalizer
func NewNormalizer(method NormalizationType) *Normalizer {
	return &Normalizer{
		method: method,
	}
}

// Normalize normalizes signal using the specified method
func (n *Normalizer) Normalize(signal []float64) []float64 {
	switch n.method {
	case MinMaxScale:
		return n.minMaxNormalize(signal)
	default:
		return n.zScoreNormalize(signal)
	}
}

// NormalizeMatrix normalizes every element of m against statistics computed
// over the whole matrix, not per row
func (n *Normalizer) NormalizeMatrix(m [][]float64) [][]float64 {
	flat, ok := Flatten(m)
	if !ok || len(flat) == 0 {
		return m
	}
	flat = n.Normalize(flat)

	out := make([][]float64, len(m))
	cols := len(m[0])
	for i := range m {
		out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}

// zScoreNormalize normalizes to zero mean and unit population variance.
// Constant input maps to all zeros.
func (n *Normalizer) zScoreNormalize(signal []float64) []float64 {
	if len(signal) == 0 {
		return signal
	}

	mean, std := PopMeanStdDev(signal)
	normalized := make([]float64, len(signal))
	if std < degenerateStd {
		return normalized
	}

	for i, val := range signal {
		normalized[i] = (val - mean) / std
	}
	return normalized
}

// minMaxNormalize scales into [0, 1]
func (n *Normalizer) minMaxNormalize(signal []float64) []float64 {
	if len(signal) == 0 {
		return signal
	}

	lo, hi := MinMax(signal)
	normalized := make([]float64, len(signal))
	if hi-lo < degenerateStd {
		return normalized
	}

	for i, val := range signal {
		normalized[i] = (val - lo) / (hi - lo)
	}
	return normalized
}
