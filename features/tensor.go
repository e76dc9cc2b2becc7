package features

import (
	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
)

// Tensor is a single-channel feature map stored row-major as (h, w, c)
type Tensor struct {
	Height   int       `json:"height" msgpack:"h"`
	Width    int       `json:"width" msgpack:"w"`
	Channels int       `json:"channels" msgpack:"c"`
	Data     []float32 `json:"data" msgpack:"d"`
}

// Shape returns (height, width, channels)
func (t *Tensor) Shape() [3]int {
	return [3]int{t.Height, t.Width, t.Channels}
}

// At returns the value at row h, column w of channel 0
func (t *Tensor) At(h, w int) float32 {
	return t.Data[(h*t.Width+w)*t.Channels]
}

// Resize maps a [rows][cols] matrix onto a height x width grid with
// half-pixel bilinear interpolation and appends a singleton channel axis.
func Resize(spec [][]float64, height, width int) (*Tensor, error) {
	if height <= 0 {
		return nil, invalidParam("height", height, "must be positive")
	}
	if width <= 0 {
		return nil, invalidParam("width", width, "must be positive")
	}
	if len(spec) == 0 || len(spec[0]) == 0 {
		cols := 0
		if len(spec) > 0 {
			cols = len(spec[0])
		}
		return nil, &InvalidShapeError{Rows: len(spec), Cols: cols}
	}
	for _, row := range spec {
		if len(row) != len(spec[0]) {
			return nil, &InvalidShapeError{Rows: len(spec), Cols: len(row)}
		}
	}

	grid, err := common.Resize2D(spec, height, width)
	if err != nil {
		return nil, &InvalidShapeError{Rows: len(spec), Cols: len(spec[0])}
	}

	data := make([]float32, 0, height*width)
	for _, row := range grid {
		for _, v := range row {
			data = append(data, float32(v))
		}
	}

	return &Tensor{Height: height, Width: width, Channels: 1, Data: data}, nil
}

// Resize is a convenience wrapper around the package-level Resize
func (s *Spectrogram) Resize(height, width int) (*Tensor, error) {
	if s == nil {
		return nil, &InvalidShapeError{}
	}
	return Resize(s.Data, height, width)
}
