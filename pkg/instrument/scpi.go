package instrument

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

const (
	DefaultSCPIBaud       = 9600
	DefaultSCPITimeout    = 3 * time.Second
	DefaultComplianceAmps = 1e-3

	// overflowReading is the SCPI "no valid measurement" value (9.91e37).
	overflowReading = 9.9e37
)

// SCPIOptions configures an SCPI source-meter session.
type SCPIOptions struct {
	Baud       int
	Compliance float64 // current compliance in amps
	Timeout    time.Duration
	Reset      bool // send *RST before configuring
	Logger     *zap.Logger
}

// SCPI drives a source-meter that speaks SCPI over a text stream. It sources
// voltage and measures current.
type SCPI struct {
	mu      sync.Mutex
	port    io.ReadWriter
	closer  io.Closer
	timeout time.Duration
	log     *zap.Logger
	buf     bytes.Buffer
}

// OpenSCPI opens portName and configures the instrument.
func OpenSCPI(portName string, opts SCPIOptions) (*SCPI, error) {
	if opts.Baud <= 0 {
		opts.Baud = DefaultSCPIBaud
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: opts.Baud})
	if err != nil {
		return nil, fmt.Errorf("instrument: open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("instrument: %s: %w", portName, err)
	}
	s, err := NewSCPI(port, opts)
	if err != nil {
		port.Close()
		return nil, err
	}
	s.closer = port
	return s, nil
}

// NewSCPI configures an instrument reachable over rw: voltage source,
// current sense with compliance, output off.
func NewSCPI(rw io.ReadWriter, opts SCPIOptions) (*SCPI, error) {
	if opts.Compliance <= 0 {
		opts.Compliance = DefaultComplianceAmps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultSCPITimeout
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &SCPI{port: rw, timeout: opts.Timeout, log: log}

	setup := []string{
		":SOUR:FUNC VOLT",
		`:SENS:FUNC "CURR"`,
		fmt.Sprintf(":SENS:CURR:PROT %g", opts.Compliance),
		":FORM:ELEM CURR",
		":OUTP OFF",
	}
	if opts.Reset {
		setup = append([]string{"*RST"}, setup...)
	}
	for _, cmd := range setup {
		if err := s.send(cmd); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Identify returns the *IDN? reply.
func (s *SCPI) Identify() (string, error) {
	return s.query("*IDN?")
}

func (s *SCPI) SetVoltage(volts float64) error {
	return s.send(fmt.Sprintf(":SOUR:VOLT %g", volts))
}

func (s *SCPI) EnableOutput(on bool) error {
	if on {
		return s.send(":OUTP ON")
	}
	return s.send(":OUTP OFF")
}

// MeasureCurrent triggers one reading. Instruments returning several
// elements have the current as the first field.
func (s *SCPI) MeasureCurrent() (float64, error) {
	reply, err := s.query(":MEAS:CURR?")
	if err != nil {
		return 0, err
	}
	field := strings.TrimSpace(strings.SplitN(reply, ",", 2)[0])
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, fmt.Errorf("instrument: bad current reading %q: %w", reply, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) >= overflowReading {
		return 0, fmt.Errorf("instrument: no valid current reading %q", reply)
	}
	return v, nil
}

// Close releases the port, if this gateway opened it.
func (s *SCPI) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *SCPI) send(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cmd)
}

func (s *SCPI) write(cmd string) error {
	s.log.Debug("scpi", zap.String("cmd", cmd))
	if _, err := io.WriteString(s.port, cmd+"\n"); err != nil {
		return fmt.Errorf("instrument: write %q: %w", cmd, err)
	}
	return nil
}

func (s *SCPI) query(cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(cmd); err != nil {
		return "", err
	}
	deadline := time.Now().Add(s.timeout)
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(s.buf.Bytes(), '\n'); i >= 0 {
			return strings.TrimSpace(string(s.buf.Next(i + 1))), nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("instrument: %q: timed out waiting for reply", cmd)
		}
		n, err := s.port.Read(chunk)
		s.buf.Write(chunk[:n])
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("instrument: %q: %w", cmd, err)
		}
		if err == io.EOF && n == 0 {
			return "", fmt.Errorf("instrument: %q: %w", cmd, io.ErrUnexpectedEOF)
		}
	}
}
