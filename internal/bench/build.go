package bench

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/config"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/instrument"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/mux"
)

// BuildGateway creates the configured instrument. The returned closer is
// nil for the simulator.
func BuildGateway(cfg *config.Config, log *zap.Logger) (instrument.Gateway, io.Closer, error) {
	switch cfg.Instrument.Type {
	case config.InstrumentSCPI:
		meter, err := instrument.OpenSCPI(cfg.Instrument.Port, instrument.SCPIOptions{
			Baud:       cfg.Instrument.Baud,
			Compliance: cfg.Instrument.ComplianceA,
			Reset:      cfg.Instrument.Reset,
			Logger:     log,
		})
		if err != nil {
			return nil, nil, err
		}
		if idn, err := meter.Identify(); err == nil {
			log.Info("instrument connected", zap.String("port", cfg.Instrument.Port), zap.String("idn", idn))
		} else {
			log.Warn("instrument did not identify", zap.String("port", cfg.Instrument.Port), zap.Error(err))
		}
		return meter, meter, nil
	case config.InstrumentSimulator, "":
		log.Info("using simulated instrument")
		return instrument.NewSimulator(cfg.SimParams()), nil, nil
	default:
		return nil, nil, fmt.Errorf("bench: unknown instrument type %q", cfg.Instrument.Type)
	}
}

// BuildAdapter creates the configured multiplexer for sample. Hardware
// handles it opens are returned for closing.
func BuildAdapter(cfg *config.Config, sample string, log *zap.Logger) (mux.Adapter, []io.Closer, error) {
	kind, err := cfg.MuxKind()
	if err != nil {
		return nil, nil, err
	}
	mc := mux.Config{Kind: kind, Logger: log}
	var closers []io.Closer

	switch kind {
	case mux.KindPinRelay:
		path := cfg.Mux.PinMap
		if s, ok := cfg.Samples[sample]; ok && s.PinMap != "" {
			path = s.PinMap
		}
		if path == "" {
			return nil, nil, fmt.Errorf("bench: pin-relay multiplexer needs a pin map for sample %q", sample)
		}
		pins, err := mux.LoadPinMap(path)
		if err != nil {
			return nil, nil, err
		}
		mc.PinMap = pins
		if cfg.Mux.RelayPort != "" {
			relay, err := mux.OpenSerialRelay(cfg.Mux.RelayPort, cfg.Mux.RelayBaud)
			if err != nil {
				return nil, nil, err
			}
			mc.Relay = relay
			closers = append(closers, relay)
		} else {
			log.Info("no relay port configured, simulating relay")
		}

	case mux.KindChannelSwitch:
		table, err := mux.BinaryTruthTable(cfg.Mux.Channels)
		if err != nil {
			return nil, nil, err
		}
		mc.Table = table
		if cfg.Mux.USBLines {
			lines, err := mux.OpenUSBLines(cfg.Mux.VendorID, cfg.Mux.ProductID)
			if err != nil {
				return nil, nil, err
			}
			mc.Lines = lines
			closers = append(closers, lines)
		} else {
			log.Info("no USB line controller configured, simulating lines")
		}
	}

	adapter, err := mux.New(mc)
	if err != nil {
		for _, c := range closers {
			c.Close()
		}
		return nil, nil, err
	}
	return adapter, closers, nil
}
