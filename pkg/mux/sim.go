package mux

import (
	"sync"

	"go.uber.org/zap"
)

// SimLines records line writes instead of driving hardware.
type SimLines struct {
	mu     sync.Mutex
	log    *zap.Logger
	writes []LinePattern

	// Fail, when set, is returned by the next writes.
	Fail error
}

// NewSimLines returns a recording line writer.
func NewSimLines(log *zap.Logger) *SimLines {
	if log == nil {
		log = zap.NewNop()
	}
	return &SimLines{log: log}
}

func (s *SimLines) WriteLines(levels LinePattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.writes = append(s.writes, append(LinePattern(nil), levels...))
	s.log.Debug("simulated line write", zap.Stringer("lines", levels))
	return nil
}

// Writes returns a copy of all recorded writes.
func (s *SimLines) Writes() []LinePattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LinePattern, len(s.writes))
	for i, w := range s.writes {
		out[i] = append(LinePattern(nil), w...)
	}
	return out
}

// RelayWrite is one recorded SetPins call.
type RelayWrite struct {
	Active []int
	All    []int
}

// SimRelay records relay writes instead of driving hardware.
type SimRelay struct {
	mu     sync.Mutex
	writes []RelayWrite

	// Fail, when set, is returned by the next writes.
	Fail error
}

func (s *SimRelay) SetPins(active, all []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.writes = append(s.writes, RelayWrite{
		Active: append([]int(nil), active...),
		All:    append([]int(nil), all...),
	})
	return nil
}

// Writes returns a copy of all recorded writes.
func (s *SimRelay) Writes() []RelayWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RelayWrite(nil), s.writes...)
}
