package features

import (
	"context"

	"github.com/RyanBlaney/sonido-emotion/transcode"
)

// Pipeline runs extraction followed by resizing to a fixed grid
type Pipeline struct {
	Extractor *Extractor
	Height    int
	Width     int
}

// NewPipeline checks the target grid and binds it to an extractor
func NewPipeline(extractor *Extractor, height, width int) (*Pipeline, error) {
	if extractor == nil {
		return nil, invalidParam("extractor", nil, "must not be nil")
	}
	if height <= 0 {
		return nil, invalidParam("height", height, "must be positive")
	}
	if width <= 0 {
		return nil, invalidParam("width", width, "must be positive")
	}
	return &Pipeline{Extractor: extractor, Height: height, Width: width}, nil
}

// Process converts one waveform into a (Height, Width, 1) tensor
func (p *Pipeline) Process(wave *transcode.AudioData) (*Tensor, error) {
	spec, err := p.Extractor.Extract(wave)
	if err != nil {
		return nil, err
	}
	return spec.Resize(p.Height, p.Width)
}

// ProcessFile loads path and processes it
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Tensor, error) {
	wave, err := p.Extractor.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return p.Process(wave)
}
