package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List serial ports and USB line controllers",
	Long: `Scan the host for serial ports (relay boards, source-meters) and USB line
controllers (channel switches) and print what was found. Use this to fill in
the relay_port, instrument port and vendor/product settings of the
configuration.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found.")
	} else {
		fmt.Fprintln(out, "Serial ports:")
		for _, p := range ports {
			fmt.Fprintf(out, "  - %s\n", p)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lines, err := mux.DiscoverUSBLines(ctx, cfg.Mux.VendorID, cfg.Mux.ProductID)
	if err != nil {
		return fmt.Errorf("discover USB line controllers: %w", err)
	}
	if len(lines) == 0 {
		fmt.Fprintf(out, "No USB line controllers found (VID:PID %04X:%04X).\n", cfg.Mux.VendorID, cfg.Mux.ProductID)
		return nil
	}
	fmt.Fprintln(out, "USB line controllers:")
	for _, l := range lines {
		fmt.Fprintf(out, "  - bus %d address %d (VID:PID %04X:%04X)\n", l.Bus, l.Address, l.VendorID, l.ProductID)
	}
	return nil
}
