package mux

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultRelayBaud    = 115200
	DefaultRelayTimeout = 2 * time.Second
)

// SerialRelay drives a relay controller over a serial line. Commands are
// newline terminated:
//
//	SET 1,9   close pins 1 and 9, open every other pin
//	CLR       open every pin
//
// The controller answers each command with "OK" or "ERR <reason>".
type SerialRelay struct {
	port    io.ReadWriter
	closer  io.Closer
	timeout time.Duration
	buf     bytes.Buffer
}

// OpenSerialRelay opens the relay controller on portName.
func OpenSerialRelay(portName string, baud int) (*SerialRelay, error) {
	if baud <= 0 {
		baud = DefaultRelayBaud
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("mux: open relay port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("mux: relay port %s: %w", portName, err)
	}
	r := NewSerialRelay(port)
	r.closer = port
	return r, nil
}

// NewSerialRelay speaks the relay protocol over an already open stream.
func NewSerialRelay(rw io.ReadWriter) *SerialRelay {
	return &SerialRelay{port: rw, timeout: DefaultRelayTimeout}
}

// SetPins implements RelayBackend. all is implied by the controller, which
// opens every pin not listed.
func (r *SerialRelay) SetPins(active, all []int) error {
	cmd := "CLR"
	if len(active) > 0 {
		parts := make([]string, len(active))
		for i, p := range active {
			parts[i] = strconv.Itoa(p)
		}
		cmd = "SET " + strings.Join(parts, ",")
	}
	return r.command(cmd)
}

// Close releases the serial port, if this relay opened it.
func (r *SerialRelay) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

func (r *SerialRelay) command(cmd string) error {
	if _, err := io.WriteString(r.port, cmd+"\n"); err != nil {
		return fmt.Errorf("relay write %q: %w", cmd, err)
	}
	line, err := r.readLine()
	if err != nil {
		return fmt.Errorf("relay %q: %w", cmd, err)
	}
	switch {
	case line == "OK":
		return nil
	case strings.HasPrefix(line, "ERR"):
		return fmt.Errorf("relay %q rejected: %s", cmd, strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	default:
		return fmt.Errorf("relay %q: unexpected reply %q", cmd, line)
	}
}

// readLine reads up to the next newline. A zero-length read is a port read
// timeout; the overall wait is bounded by r.timeout.
func (r *SerialRelay) readLine() (string, error) {
	deadline := time.Now().Add(r.timeout)
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(r.buf.Bytes(), '\n'); i >= 0 {
			line := string(r.buf.Next(i + 1))
			return strings.TrimSpace(line), nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("timed out waiting for reply")
		}
		n, err := r.port.Read(chunk)
		r.buf.Write(chunk[:n])
		if err != nil && err != io.EOF {
			return "", err
		}
		if err == io.EOF && n == 0 {
			return "", io.ErrUnexpectedEOF
		}
	}
}
