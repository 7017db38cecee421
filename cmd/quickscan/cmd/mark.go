package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
)

var markNotes string

var markCmd = &cobra.Command{
	Use:   "mark <device> <working|broken|undefined>",
	Short: "Record a manual verdict for a device",
	Long: `Record the operator's verdict for one device. A working or broken verdict
always wins over the automatic classification and is never changed by later
scans or reclassification. Marking a device undefined hands it back to the
automatic classification.`,
	Args: cobra.ExactArgs(2),
	RunE: runMark,
}

func init() {
	rootCmd.AddCommand(markCmd)

	markCmd.Flags().StringVarP(&markNotes, "notes", "n", "", "free-text notes for the device")
}

func runMark(cmd *cobra.Command, args []string) error {
	status, err := classify.ParseManualStatus(args[1])
	if err != nil {
		return err
	}

	_, log, b, err := setup(false, bench.Offline(), bench.WithoutCatalog())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer b.Close()

	if err := b.Mark(args[0], status, markNotes); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s marked %s (effective: %s)\n", args[0], status, b.Book().Effective(args[0]))
	return nil
}
