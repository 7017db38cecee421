package mux

import (
	"fmt"

	"go.uber.org/zap"
)

// LineWriter drives a set of parallel digital lines in one write.
type LineWriter interface {
	WriteLines(levels LinePattern) error
}

// ChannelSwitchAdapter routes by selecting a numbered channel on a
// line-addressed switch. Device index i maps to channel i+1.
type ChannelSwitchAdapter struct {
	table *TruthTable
	lines LineWriter
	log   *zap.Logger

	last Channel // 0 when nothing is known to be selected
}

// NewChannelSwitchAdapter builds a channel switch adapter. A nil writer
// selects a SimLines writer.
func NewChannelSwitchAdapter(table *TruthTable, lines LineWriter, log *zap.Logger) *ChannelSwitchAdapter {
	if log == nil {
		log = zap.NewNop()
	}
	if lines == nil {
		lines = NewSimLines(log)
	}
	return &ChannelSwitchAdapter{table: table, lines: lines, log: log}
}

func (a *ChannelSwitchAdapter) Kind() Kind { return KindChannelSwitch }

// Channels returns the number of supported channels.
func (a *ChannelSwitchAdapter) Channels() int { return a.table.Channels() }

// RouteToDevice selects channel index+1. Selecting the channel already
// written is a no-op.
func (a *ChannelSwitchAdapter) RouteToDevice(key string, index int) error {
	ch := Channel(index + 1)
	pattern, err := a.table.Pattern(ch)
	if err != nil {
		return err
	}
	if ch == a.last {
		return nil
	}
	if err := a.lines.WriteLines(pattern); err != nil {
		a.last = 0
		return fmt.Errorf("mux: select channel %d for %q: %w", ch, key, err)
	}
	a.log.Debug("channel selected", zap.String("device", key), zap.Int("channel", int(ch)), zap.Stringer("lines", pattern))
	a.last = ch
	return nil
}

// DisconnectAll writes the off pattern unconditionally.
func (a *ChannelSwitchAdapter) DisconnectAll() error {
	a.last = 0
	if err := a.lines.WriteLines(a.table.Off()); err != nil {
		return fmt.Errorf("mux: disconnect: %w", err)
	}
	return nil
}
