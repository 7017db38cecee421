package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/ui/viewer"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
)

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Open the desktop heat map viewer",
	Long: `Open a window with the heat map of the sample's newest session. Click a
device to see its readings and classification. The window follows the
sample directory and redraws when a scan finishes or a verdict changes, so
it can be left open next to a running 'quickscan scan'.`,
	RunE: runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Sample == "" {
		return fmt.Errorf("no sample selected: pass --sample")
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	dir := cfg.SampleDir(cfg.Sample)
	return viewer.Show(cmd.Context(), viewer.Params{
		Sample:   cfg.Sample,
		Dir:      dir,
		BookPath: filepath.Join(dir, classify.BookFile),
		Range:    cfg.HeatmapRange(),
		Columns:  cfg.Heatmap.Columns,
		Log:      log,
	})
}
