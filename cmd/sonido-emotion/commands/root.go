package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-emotion/config"
	"github.com/RyanBlaney/sonido-emotion/logging"
)

var (
	// Global flags
	cfgFile  string
	logLevel string
	noColor  bool

	// Global configuration, loaded before any subcommand runs
	globalConfig *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sonido-emotion",
	Short: "Log-mel feature pipeline for speech emotion datasets",
	Long: `sonido-emotion turns labeled speech recordings into fixed-size log-mel
tensors with one-hot labels, ready for a convolutional classifier.

Configuration is read from a YAML file (--config) and SONIDO_* environment
variables, e.g. SONIDO_DATASET_ROOT or SONIDO_EXPORT_PRECISION.

Examples:
  # Build a dataset from data/<class>/*.wav into out/
  sonido-emotion build --config sonido.yaml --root data --out out

  # Inspect the features of a single recording
  sonido-emotion extract clip.wav

  # Show the classifier contract
  sonido-emotion contract
`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// Command returns the root cobra command for mounting into a parent CLI.
func Command() *cobra.Command {
	return rootCmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(contractCmd)
}

func initConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	lv, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logging.SetLevel(lv)
	if noColor {
		logging.DisableColors()
	}

	globalConfig = cfg
	return nil
}

// getConfig returns the global configuration
func getConfig() (*config.Config, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	return globalConfig, nil
}

// printYAML writes v to w as a YAML document
func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
