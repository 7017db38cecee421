package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/store"
)

var (
	sessionsReindex bool
	sessionsAll     bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Long: `List the sessions recorded in the catalog, newest first. The catalog is
rebuilt from the session files on disk with --reindex, e.g. after copying
data between machines.`,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)

	sessionsCmd.Flags().BoolVar(&sessionsReindex, "reindex", false, "rebuild the catalog from session files")
	sessionsCmd.Flags().BoolVar(&sessionsAll, "all", false, "list every sample")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer log.Sync()

	cat, err := store.OpenCatalog(cfg.CatalogPath())
	if err != nil {
		return err
	}
	defer cat.Close()

	out := cmd.OutOrStdout()
	if sessionsReindex {
		dirs, err := sampleDirs(cfg.DataDir)
		if err != nil {
			return err
		}
		n, err := cat.Reindex(dirs...)
		if err != nil {
			return fmt.Errorf("reindex: %w", err)
		}
		fmt.Fprintf(out, "✓ Indexed %d session(s) from %d sample(s)\n\n", n, len(dirs))
	}

	sample := cfg.Sample
	if sessionsAll {
		sample = ""
	}
	entries, err := cat.Sessions(sample)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-20s %-12s %-10s %-10s %s\n", "TIMESTAMP", "SAMPLE", "VOLTAGE", "MEASURED", "FILE")
	for _, e := range entries {
		fmt.Fprintf(out, "%-20s %-12s %-10s %-10s %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Sample,
			fmt.Sprintf("%gV", e.VoltageV),
			fmt.Sprintf("%d/%d", e.Measured, e.Devices),
			filepath.Base(e.Path))
	}
	return nil
}

// sampleDirs lists the sample directories below the data directory.
func sampleDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read data directory: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}
