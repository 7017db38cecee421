package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
)

var classifyThreshold string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Reclassify the newest session against a threshold",
	Long: `Apply a current threshold to the readings of the sample's newest session.
Devices at or above the threshold are working, devices below it are not.
Devices with a manual verdict and devices without a reading are left as
they are.

Examples:
  quickscan classify --threshold 1e-7
  quickscan classify --threshold 5e-8 --sample wafer3`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVarP(&classifyThreshold, "threshold", "t", "", "threshold in amps (default from config)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, log, b, err := setup(false, bench.Offline(), bench.WithoutCatalog())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer b.Close()

	threshold := cfg.Scan.Threshold
	if classifyThreshold != "" {
		threshold, err = classify.ParseThreshold(classifyThreshold)
		if err != nil {
			return err
		}
	}

	report, err := b.Reclassify(threshold)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Threshold: %.3e A\n\n", threshold)

	keys := make([]string, 0, len(report.Classified))
	for k := range report.Classified {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-12s %s\n", k, report.Classified[k])
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Classified:        %d\n", len(report.Classified))
	fmt.Fprintf(out, "Manual (kept):     %d\n", len(report.Manual))
	fmt.Fprintf(out, "No reading:        %d\n", len(report.NoReading))
	return nil
}
