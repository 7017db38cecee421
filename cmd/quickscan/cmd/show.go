package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/heatmap"
)

var showTable bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the newest session of the sample as a heat map",
	Long: `Draw the heat map of the sample's newest stored session and list the
classification of each device. Devices carrying a manual verdict are marked
with W (working) or B (broken) in the map.`,
	RunE: runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)

	showCmd.Flags().BoolVar(&showTable, "table", true, "list every device below the map")
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, log, b, err := setup(false, bench.Offline(), bench.WithoutCatalog())
	if err != nil {
		return err
	}
	defer log.Sync()
	defer b.Close()

	out := cmd.OutOrStdout()
	s := b.LastSession()
	if s == nil {
		fmt.Fprintf(out, "No sessions stored for sample %q.\n", b.Sample())
		return nil
	}

	book := b.Book()
	marks := make(map[string]string)
	for _, d := range s.Devices {
		st, ok := book.Status(d.Key)
		if !ok {
			continue
		}
		switch st.ManualStatus {
		case classify.ManualWorking:
			marks[d.Key] = "W "
		case classify.ManualBroken:
			marks[d.Key] = "B "
		}
	}

	fmt.Fprintf(out, "Sample:      %s\n", s.Sample)
	fmt.Fprintf(out, "Session:     %s @ %gV\n", s.Timestamp.Format("2006-01-02 15:04:05"), s.VoltageV)
	fmt.Fprintf(out, "Measured:    %d/%d\n", s.Result.Measured(), len(s.Devices))
	fmt.Fprintf(out, "Threshold:   %.3e A\n", b.Threshold().Value())
	fmt.Fprintln(out)
	fmt.Fprintln(out, heatmap.RenderTerminal(s.Devices, s.Result, heatmap.TermOptions{
		Columns: cfg.Heatmap.Columns,
		Range:   cfg.HeatmapRange(),
		Marks:   marks,
	}))
	fmt.Fprintln(out, heatmap.RenderLegend(heatmap.Legend(24, cfg.HeatmapRange())))
	fmt.Fprintln(out)

	counts := book.Counts()
	fmt.Fprintf(out, "Working: %d  Not working: %d  Unknown: %d\n",
		counts[classify.Working], counts[classify.NotWorking], counts[classify.Unknown])

	if showTable {
		fmt.Fprintln(out)
		printDeviceTable(out, b)
	}
	return nil
}

func printDeviceTable(w io.Writer, b *bench.Bench) {
	s := b.LastSession()
	book := b.Book()
	fmt.Fprintf(w, "%-12s %-14s %-12s %-10s %s\n", "DEVICE", "CURRENT", "STATUS", "MANUAL", "NOTES")
	for _, d := range s.Devices {
		reading := "-"
		if v, ok := s.Result.Value(d.Key); ok {
			reading = fmt.Sprintf("%.3e A", v)
		}
		status := classify.Unknown
		manual := classify.ManualUndefined
		notes := ""
		if st, ok := book.Status(d.Key); ok {
			status = st.Effective()
			manual = st.ManualStatus
			notes = st.Notes
		}
		fmt.Fprintf(w, "%-12s %-14s %-12s %-10s %s\n", d.Name(), reading, status, manual, notes)
	}
}
