// Package logging builds the process logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the logger shape.
type Options struct {
	Level   string // debug, info, warn, error
	JSON    bool
	File    string // extra output path
	Verbose bool   // forces debug

	// Quiet drops stderr output, for full-screen terminal UIs. Logs still go
	// to File when set.
	Quiet bool
}

// ParseLevel maps a level name to a zap level; empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return lvl, fmt.Errorf("logging: unknown level %q", s)
	}
	return lvl, nil
}

// New builds a logger from opts.
func New(opts Options) (*zap.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		lvl = zapcore.DebugLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.Sampling = nil
	if !opts.JSON {
		config.Encoding = "console"
		config.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}
	config.OutputPaths = nil
	if !opts.Quiet {
		config.OutputPaths = append(config.OutputPaths, "stderr")
	}
	if opts.File != "" {
		config.OutputPaths = append(config.OutputPaths, opts.File)
	}
	if len(config.OutputPaths) == 0 {
		return zap.NewNop(), nil
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}
