package instrument

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sync"
)

// SimParams shapes the simulated current distribution.
type SimParams struct {
	Floor       float64 // lowest failure-floor reading (A)
	Min         float64 // lower bound of a working reading (A)
	Max         float64 // upper bound of a working reading (A)
	FailureRate float64 // probability of a failure-floor reading
}

// DefaultSimParams returns the stock distribution.
func DefaultSimParams() SimParams {
	return SimParams{
		Floor:       1e-12,
		Min:         1e-10,
		Max:         1e-5,
		FailureRate: 0.25,
	}
}

// Validate checks that the bounds are ordered and positive.
func (p SimParams) Validate() error {
	if !(p.Floor > 0) || !(p.Min > 0) || !(p.Max > 0) {
		return fmt.Errorf("instrument: simulator bounds must be positive")
	}
	if p.Floor > p.Min*0.25 {
		return fmt.Errorf("instrument: floor %g above failure ceiling %g", p.Floor, p.Min*0.25)
	}
	if p.Min >= p.Max {
		return fmt.Errorf("instrument: min %g not below max %g", p.Min, p.Max)
	}
	if p.FailureRate < 0 || p.FailureRate > 1 {
		return fmt.Errorf("instrument: failure rate %g outside [0, 1]", p.FailureRate)
	}
	return nil
}

// Simulator stands in for a real source-meter. The reading depends only on
// the focused device key and the programmed voltage, so the same device at
// the same voltage always reads the same current.
type Simulator struct {
	mu      sync.Mutex
	params  SimParams
	voltage float64
	output  bool
	key     string

	// OnMeasure, when set, replaces the computed reading. Tests use it to
	// inject failures for specific devices.
	OnMeasure func(key string, volts float64) (float64, error)
}

// NewSimulator returns a simulator with params. Invalid params fall back to
// DefaultSimParams.
func NewSimulator(params SimParams) *Simulator {
	if params.Validate() != nil {
		params = DefaultSimParams()
	}
	return &Simulator{params: params}
}

// Params returns the distribution in use.
func (s *Simulator) Params() SimParams { return s.params }

func (s *Simulator) SetVoltage(volts float64) error {
	if math.IsNaN(volts) || math.IsInf(volts, 0) {
		return fmt.Errorf("instrument: invalid voltage %v", volts)
	}
	s.mu.Lock()
	s.voltage = volts
	s.mu.Unlock()
	return nil
}

func (s *Simulator) EnableOutput(on bool) error {
	s.mu.Lock()
	s.output = on
	s.mu.Unlock()
	return nil
}

func (s *Simulator) Focus(key string) {
	s.mu.Lock()
	s.key = key
	s.mu.Unlock()
}

// Voltage returns the programmed voltage and output state.
func (s *Simulator) Voltage() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.voltage, s.output
}

// MeasureCurrent returns the simulated reading for the focused device. With
// the output disabled no current flows.
func (s *Simulator) MeasureCurrent() (float64, error) {
	s.mu.Lock()
	key, volts, on := s.key, s.voltage, s.output
	s.mu.Unlock()

	if s.OnMeasure != nil {
		return s.OnMeasure(key, volts)
	}
	if !on {
		return 0, nil
	}
	return SimulatedCurrent(s.params, key, volts), nil
}

// SimulatedCurrent draws the reading for (key, volts). With probability
// FailureRate it is uniform in [Floor, Min/4]; otherwise it is log-uniform in
// [Min, Max] with an exponent biased toward Min.
func SimulatedCurrent(p SimParams, key string, volts float64) float64 {
	rng := rand.New(rand.NewPCG(simSeed(key, volts)))
	if rng.Float64() < p.FailureRate {
		ceil := p.Min * 0.25
		return p.Floor + rng.Float64()*(ceil-p.Floor)
	}
	u := 1 - math.Sqrt(1-rng.Float64())
	lo, hi := math.Log10(p.Min), math.Log10(p.Max)
	return math.Pow(10, lo+u*(hi-lo))
}

func simSeed(key string, volts float64) (uint64, uint64) {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64(), math.Float64bits(volts)
}
