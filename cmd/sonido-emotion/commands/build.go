package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-emotion/cache"
	"github.com/RyanBlaney/sonido-emotion/dataset"
	"github.com/RyanBlaney/sonido-emotion/export"
	"github.com/RyanBlaney/sonido-emotion/features"
	"github.com/RyanBlaney/sonido-emotion/logging"
	"github.com/RyanBlaney/sonido-emotion/transcode"
)

var (
	buildRoot       string
	buildOut        string
	buildPrecision  string
	buildWorkers    int
	buildSkipErrors bool
	buildCache      bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Assemble and export a labeled feature dataset",
	Long: `Walk <root>/<class>/ for every configured class, convert each recording
into a log-mel tensor and write dataset.msgpack plus manifest.yaml to <out>.

Flags override the matching config keys.

Examples:
  sonido-emotion build --config sonido.yaml
  sonido-emotion build --root data --out out --precision float16 --skip-errors`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildRoot, "root", "", "dataset root directory (dataset.root)")
	buildCmd.Flags().StringVar(&buildOut, "out", "", "output directory (export.dir)")
	buildCmd.Flags().StringVar(&buildPrecision, "precision", "", "feature precision: float32 or float16 (export.precision)")
	buildCmd.Flags().IntVar(&buildWorkers, "workers", 0, "parallel workers, 0 for one per CPU (dataset.workers)")
	buildCmd.Flags().BoolVar(&buildSkipErrors, "skip-errors", false, "drop unreadable files instead of aborting (dataset.skip_errors)")
	buildCmd.Flags().BoolVar(&buildCache, "cache", false, "reuse features cached under cache.dir (cache.enabled)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Dataset.Root = buildRoot
	}
	if flags.Changed("out") {
		cfg.Export.Dir = buildOut
	}
	if flags.Changed("precision") {
		cfg.Export.Precision = buildPrecision
	}
	if flags.Changed("workers") {
		cfg.Dataset.Workers = buildWorkers
	}
	if flags.Changed("skip-errors") {
		cfg.Dataset.SkipErrors = buildSkipErrors
	}
	if flags.Changed("cache") {
		cfg.Cache.Enabled = buildCache
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	precision, err := export.ParsePrecision(cfg.Export.Precision)
	if err != nil {
		return err
	}

	logger := logging.WithFields(logging.Fields{
		"component": "cli",
		"function":  "build",
	})

	ct, err := cfg.Contract()
	if err != nil {
		return err
	}
	extractor, err := features.NewExtractor(cfg.ExtractorParams(),
		features.WithDecoder(transcode.NewDecoder(cfg.DecoderConfig())))
	if err != nil {
		return err
	}
	pipeline, err := features.NewPipeline(extractor, cfg.Tensor.Height, cfg.Tensor.Width)
	if err != nil {
		return err
	}

	opts := cfg.AssemblerOptions()
	if cfg.Cache.Enabled {
		fc, err := cache.Open(cache.Options{Dir: cfg.Cache.Dir})
		if err != nil {
			return err
		}
		defer fc.Close()
		opts.Cache = fc
	}

	assembler, err := dataset.NewAssembler(pipeline, ct, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	logger.Info("Building dataset", logging.Fields{
		"root":        cfg.Dataset.Root,
		"classes":     ct.Classes(),
		"fingerprint": extractor.Fingerprint(),
	})

	ds, err := assembler.Assemble(ctx, cfg.Source(ct))
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}

	manifest, err := export.Save(cfg.Export.Dir, ds, export.Options{Precision: precision})
	if err != nil {
		return err
	}

	return printYAML(cmd.OutOrStdout(), map[string]any{
		"id":            manifest.ID,
		"out":           cfg.Export.Dir,
		"samples":       ds.Len(),
		"skipped":       len(ds.Failures),
		"feature_shape": manifest.FeatureShape,
		"label_shape":   manifest.LabelShape,
		"class_counts":  manifest.ClassCounts,
		"elapsed":       time.Since(start).Round(time.Millisecond).String(),
	})
}
