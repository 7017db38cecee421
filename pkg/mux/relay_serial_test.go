package mux

import (
	"bytes"
	"strings"
	"testing"
)

// fakePort answers each command with the next canned reply.
type fakePort struct {
	written bytes.Buffer
	replies []string
	pending bytes.Buffer
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written.Write(b)
	if bytes.HasSuffix(b, []byte("\n")) && len(p.replies) > 0 {
		p.pending.WriteString(p.replies[0])
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.pending.Len() == 0 {
		return 0, nil
	}
	return p.pending.Read(b)
}

func TestSerialRelayProtocol(t *testing.T) {
	port := &fakePort{replies: []string{"OK\r\n", "OK\n"}}
	relay := NewSerialRelay(port)

	if err := relay.SetPins([]int{1, 9}, []int{1, 2, 9}); err != nil {
		t.Fatalf("SetPins: %v", err)
	}
	if err := relay.SetPins(nil, []int{1, 2, 9}); err != nil {
		t.Fatalf("SetPins clear: %v", err)
	}
	if got := port.written.String(); got != "SET 1,9\nCLR\n" {
		t.Fatalf("written = %q", got)
	}
}

func TestSerialRelayRejected(t *testing.T) {
	port := &fakePort{replies: []string{"ERR pin 42 out of range\n"}}
	relay := NewSerialRelay(port)
	err := relay.SetPins([]int{42}, nil)
	if err == nil || !strings.Contains(err.Error(), "pin 42 out of range") {
		t.Fatalf("error = %v, want rejection", err)
	}
}
