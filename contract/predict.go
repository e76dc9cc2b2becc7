package contract

import (
	"fmt"
	"math"
)

// Softmax converts logits into a probability distribution
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := math.Inf(-1)
	for _, v := range logits {
		peak = math.Max(peak, v)
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		switch {
		case math.IsInf(peak, 1):
			// +Inf logits share the mass
			if math.IsInf(v, 1) {
				out[i] = 1
			}
		case math.IsInf(peak, -1):
			out[i] = 1
		default:
			out[i] = math.Exp(v - peak)
		}
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Scores labels a probability vector by class name
func (c Contract) Scores(probs []float64) (map[string]float64, error) {
	if len(probs) != c.NumClasses() {
		return nil, fmt.Errorf("got %d probabilities, contract declares %d classes", len(probs), c.NumClasses())
	}
	scores := make(map[string]float64, len(probs))
	for i, p := range probs {
		scores[c.classes[i]] = p
	}
	return scores, nil
}

// Top returns the most probable class. Ties go to the lower index.
func (c Contract) Top(probs []float64) (string, float64, error) {
	if len(probs) != c.NumClasses() {
		return "", 0, fmt.Errorf("got %d probabilities, contract declares %d classes", len(probs), c.NumClasses())
	}
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return c.classes[best], probs[best], nil
}
