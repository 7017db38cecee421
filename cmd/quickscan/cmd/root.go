package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/internal/logging"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/config"
)

var (
	// Global flags
	verbose    bool
	configPath string
	sampleName string
	dataDir    string
)

var rootCmd = &cobra.Command{
	Use:   "quickscan",
	Short: "Device quick scan: route, bias, measure and classify device arrays",
	Long: `quickscan walks every device of a sample through a multiplexer, applies a
test voltage with a source-meter and records the current of each device.
Readings are stored per sample, shown as a heat map and classified as
working or not working against a current threshold. Manual verdicts always
outrank the automatic classification.

Examples:
  quickscan init --sample demo --count 16     # Write a starter config
  quickscan scan --sample demo --voltage 0.2  # Scan with the live terminal view
  quickscan show --sample demo                # Heat map of the newest session
  quickscan mark --sample demo d3 broken      # Record a manual verdict
  quickscan view --sample demo                # Desktop heat map viewer`,
	Version:      "0.3.0",
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")
	rootCmd.PersistentFlags().StringVarP(&sampleName, "sample", "s", "", "sample to work on (overrides the config)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (overrides the config)")
}

// loadConfig reads the configuration file and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if sampleName != "" {
		cfg.Sample = sampleName
	}
	if cfg.Sample == "" {
		names := cfg.SampleNames()
		if len(names) == 1 {
			cfg.Sample = names[0]
		}
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, quiet bool) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:   cfg.Logging.Level,
		JSON:    cfg.Logging.JSON,
		File:    cfg.Logging.File,
		Verbose: verbose,
		Quiet:   quiet,
	})
}

// openBench connects the configured hardware and selects the sample.
func openBench(cfg *config.Config, log *zap.Logger, opts ...bench.Option) (*bench.Bench, error) {
	if cfg.Sample == "" {
		names := cfg.SampleNames()
		if len(names) == 0 {
			return nil, fmt.Errorf("no sample selected: pass --sample or run 'quickscan init'")
		}
		return nil, fmt.Errorf("no sample selected: pass --sample (configured: %s)", strings.Join(names, ", "))
	}
	b, err := bench.Open(cfg, log, opts...)
	if err != nil {
		return nil, err
	}
	if err := b.SelectSample(cfg.Sample); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

// setup is the common prologue of the commands working on one sample.
func setup(quiet bool, opts ...bench.Option) (*config.Config, *zap.Logger, *bench.Bench, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := newLogger(cfg, quiet)
	if err != nil {
		return nil, nil, nil, err
	}
	b, err := openBench(cfg, log, opts...)
	if err != nil {
		log.Sync()
		return nil, nil, nil, err
	}
	return cfg, log, b, nil
}
