package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/config"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
)

var (
	initCount   int
	initPrefix  string
	initPinMap  string
	initMuxType string
	initForce   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Write a configuration file with one sample. Without --pin-map the sample is
a numbered device array (d1, d2, ...) routed through a simulated channel
switch and measured by the deterministic simulator, which is enough to try
every command without hardware.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().IntVar(&initCount, "count", 16, "number of devices in the sample")
	initCmd.Flags().StringVar(&initPrefix, "prefix", "d", "device key prefix")
	initCmd.Flags().StringVar(&initPinMap, "pin-map", "", "pin map file for a pin-relay sample")
	initCmd.Flags().StringVar(&initMuxType, "mux", string(mux.KindChannelSwitch), "multiplexer type (pin-relay, channel-switch, manual)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration")
}

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	name := sampleName
	if name == "" {
		name = "demo"
	}

	cfg := config.Default()
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Sample = name
	cfg.Mux.Type = initMuxType
	sample := config.SampleConfig{Count: initCount, Prefix: initPrefix}
	if initPinMap != "" {
		sample = config.SampleConfig{PinMap: initPinMap}
		cfg.Mux.Type = string(mux.KindPinRelay)
	}
	cfg.Samples[name] = sample
	if cfg.Mux.Type == string(mux.KindChannelSwitch) && cfg.Mux.Channels < initCount {
		cfg.Mux.Channels = initCount
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(configPath); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Wrote %s\n", configPath)
	fmt.Fprintf(out, "  Sample:     %s\n", name)
	fmt.Fprintf(out, "  Mux:        %s\n", cfg.Mux.Type)
	fmt.Fprintf(out, "  Instrument: %s\n", cfg.Instrument.Type)
	fmt.Fprintf(out, "  Data:       %s\n", cfg.DataDir)
	return nil
}
