package common

import (
	"fmt"
	"math"
)

// axisWeights holds, for one output index, the two source indices and the
// blend factor toward upper
type axisWeights struct {
	lower, upper int
	lerp         float64
}

// halfPixelWeights maps outSize sample centers onto inSize source samples
// using half-pixel centers: src = (dst+0.5)*in/out - 0.5.
func halfPixelWeights(inSize, outSize int) []axisWeights {
	scale := float64(inSize) / float64(outSize)
	weights := make([]axisWeights, outSize)
	for i := range weights {
		in := (float64(i)+0.5)*scale - 0.5
		inFloor := math.Floor(in)
		weights[i] = axisWeights{
			lower: max(int(inFloor), 0),
			upper: min(int(math.Ceil(in)), inSize-1),
			lerp:  in - inFloor,
		}
	}
	return weights
}

// Resize2D resamples a rows x cols matrix to height x width with bilinear
// interpolation. Edges are clamped; identical sizes return an exact copy.
func Resize2D(data [][]float64, height, width int) ([][]float64, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("target size must be positive, got %dx%d", height, width)
	}
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, fmt.Errorf("cannot resize empty matrix")
	}
	rows, cols := len(data), len(data[0])
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), cols)
		}
	}

	ys := halfPixelWeights(rows, height)
	xs := halfPixelWeights(cols, width)

	out := make([][]float64, height)
	for i, y := range ys {
		top, bottom := data[y.lower], data[y.upper]
		row := make([]float64, width)
		for j, x := range xs {
			t := Lerp(top[x.lower], top[x.upper], x.lerp)
			b := Lerp(bottom[x.lower], bottom[x.upper], x.lerp)
			row[j] = Lerp(t, b, y.lerp)
		}
		out[i] = row
	}
	return out, nil
}
