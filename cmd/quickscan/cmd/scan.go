package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/internal/bench"
	"github.com/OpenTraceLab/OpenTraceScan/internal/ui/tui"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/config"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/heatmap"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/scan"
)

var (
	scanVoltage float64
	scanSettle  time.Duration
	scanNoTUI   bool
	scanTimeout time.Duration
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Measure every device of the sample once",
	Long: `Route each device of the sample in turn, bias it at the test voltage and
record its current. The instrument output is enabled for the duration of the
scan only and the voltage is returned to zero afterwards, also when the scan
is stopped or fails.

The session is saved as JSON and CSV under the sample's data directory, and
devices without a manual verdict are classified against the threshold.

In a terminal the scan runs in a live heat map view (press s to stop, q to
quit). With --no-tui, or when output is not a terminal, progress is printed
line by line and Ctrl+C stops the scan.`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Float64Var(&scanVoltage, "voltage", 0, "test voltage in volts (default from config)")
	scanCmd.Flags().DurationVar(&scanSettle, "settle", 0, "settle time after routing (default from config)")
	scanCmd.Flags().BoolVar(&scanNoTUI, "no-tui", false, "print progress instead of the live view")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "abort the scan after this long (0 = no timeout)")
}

func runScan(cmd *cobra.Command, args []string) error {
	useTUI := !scanNoTUI && isatty.IsTerminal(os.Stdout.Fd())

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("settle") {
		cfg.Scan.SettleTime = scanSettle.String()
	}
	voltage := cfg.Scan.VoltageV
	if cmd.Flags().Changed("voltage") {
		voltage = scanVoltage
	}

	log, err := newLogger(cfg, useTUI)
	if err != nil {
		return err
	}
	defer log.Sync()

	b, err := openBench(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if scanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scanTimeout)
		defer cancel()
	}

	opts := b.ScanOptions(voltage)
	events, err := b.StartScan(ctx, opts)
	if err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	log.Info("scan started",
		zap.String("sample", b.Sample()),
		zap.Float64("voltage_v", voltage),
		zap.Duration("settle", opts.SettleTime),
		zap.Int("devices", len(b.Devices())),
		zap.Bool("baseline", opts.Baseline != nil))

	out := cmd.OutOrStdout()
	if useTUI {
		m, err := tui.Run(tui.Params{
			Sample:   b.Sample(),
			VoltageV: voltage,
			Devices:  b.Devices(),
			Baseline: opts.Baseline,
			Range:    cfg.HeatmapRange(),
			Columns:  cfg.Heatmap.Columns,
			Events:   events,
			Scanner:  b.Scanner(),
			Complete: func(t *bench.Tally) (*bench.Outcome, error) {
				return b.Complete(t, voltage)
			},
		})
		if err != nil {
			// The view is gone; stop the run and drain it so the
			// instrument is left safe.
			b.Scanner().Stop()
			for range events {
			}
			return fmt.Errorf("terminal view: %w", err)
		}
		outcome, err := m.Outcome()
		if err != nil {
			return err
		}
		if outcome != nil {
			printOutcome(out, cfg, outcome, nil)
		}
		return nil
	}

	total := len(b.Devices())
	fmt.Fprintln(out, "╔════════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║ Quick scan %-52s║\n", fmt.Sprintf("%s @ %gV (%d devices)", b.Sample(), voltage, total))
	fmt.Fprintln(out, "╚════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	tally := bench.NewTally()
	tally.Drain(events, func(ev scan.Event) {
		printProgress(out, ev)
	})

	outcome, err := b.Complete(tally, voltage)
	if err != nil {
		return fmt.Errorf("save scan: %w", err)
	}
	printOutcome(out, cfg, outcome, tally.Skipped())
	return nil
}

// printProgress writes one line per visited device.
func printProgress(w io.Writer, ev scan.Event) {
	width := len(fmt.Sprint(ev.Total))
	switch ev.Kind {
	case scan.EventReading:
		reading := "no reading"
		if v, ok := ev.Current(); ok {
			reading = fmt.Sprintf("%.3e A", v)
		}
		fmt.Fprintf(w, "  [%*d/%d] %-12s %s\n", width, ev.Index+1, ev.Total, ev.Device.Name(), reading)
	case scan.EventSkipped:
		fmt.Fprintf(w, "  [%*d/%d] %-12s skipped: %v\n", width, ev.Index+1, ev.Total, ev.Device.Name(), ev.Err)
	case scan.EventFinished:
		fmt.Fprintf(w, "\nScan %s\n", ev.State)
	}
}

// printOutcome summarizes a saved scan and draws its heat map.
func printOutcome(w io.Writer, cfg *config.Config, o *bench.Outcome, skipped []string) {
	s := o.Session
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Devices measured:      %d/%d\n", s.Result.Measured(), len(s.Devices))
	if len(skipped) > 0 {
		fmt.Fprintf(w, "Devices skipped:       %d (%s)\n", len(skipped), strings.Join(skipped, ", "))
	}
	fmt.Fprintf(w, "Newly classified:      %d\n", len(o.Report.Classified))
	if len(o.Report.Manual) > 0 {
		fmt.Fprintf(w, "Manual verdicts kept:  %d\n", len(o.Report.Manual))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, heatmap.RenderTerminal(s.Devices, s.Result, heatmap.TermOptions{
		Columns: cfg.Heatmap.Columns,
		Range:   cfg.HeatmapRange(),
	}))
	fmt.Fprintln(w, heatmap.RenderLegend(heatmap.Legend(24, cfg.HeatmapRange())))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "✓ Session saved to: %s\n", o.Paths.JSON)
	fmt.Fprintf(w, "✓ CSV saved to:     %s\n", o.Paths.CSV)
}
