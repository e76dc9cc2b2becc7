package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/algorithms/common"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

var extractCmd = &cobra.Command{
	Use:   "extract FILE",
	Short: "Run the feature pipeline on one recording",
	Long: `Decode FILE, compute its normalized log-mel spectrogram, resize it to the
configured tensor grid and print shapes and value statistics.

Examples:
  sonido-emotion extract clip.wav
  sonido-emotion --config sonido.yaml extract clip.flac`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

type matrixStats struct {
	Mean float64 `yaml:"mean"`
	Std  float64 `yaml:"std"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

func statsOf(values []float64) matrixStats {
	mean, std := common.PopMeanStdDev(values)
	lo, hi := common.MinMax(values)
	return matrixStats{Mean: mean, Std: std, Min: lo, Max: hi}
}

func runExtract(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}

	extractor, err := features.NewExtractor(cfg.ExtractorParams(),
		features.WithDecoder(transcode.NewDecoder(cfg.DecoderConfig())))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	wave, err := extractor.LoadFile(ctx, args[0])
	if err != nil {
		return err
	}
	spec, err := extractor.Extract(wave)
	if err != nil {
		return err
	}
	tensor, err := spec.Resize(cfg.Tensor.Height, cfg.Tensor.Width)
	if err != nil {
		return err
	}

	flat, _ := common.Flatten(spec.Data)
	values := make([]float64, len(tensor.Data))
	for i, v := range tensor.Data {
		values[i] = float64(v)
	}

	return printYAML(cmd.OutOrStdout(), map[string]any{
		"file":        args[0],
		"sample_rate": wave.SampleRate,
		"duration":    wave.Duration.String(),
		"rms":         common.RMS(wave.PCM),
		"spectrogram": map[string]any{
			"shape": []int{spec.Bands, spec.Frames},
			"stats": statsOf(flat),
		},
		"tensor": map[string]any{
			"shape": tensor.Shape(),
			"stats": statsOf(values),
		},
		"fingerprint": extractor.Fingerprint(),
	})
}
