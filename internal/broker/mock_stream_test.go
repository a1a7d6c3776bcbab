package broker

import (
	"sync"
	"time"
)

// mockSocket is the test-only stand-in for a net.Conn: mockControl
// plays the role of "the other side of the wire" the way
// MockHandler/MockStream do in the Rust test suite this package's
// tests are modeled on.
type mockSocket struct {
	mu      sync.Mutex
	inbound []byte // bytes queued by the test, consumed by Connection.Read
	outbox  []byte // bytes written by Connection, consumed by the test
}

type mockControl struct {
	sock *mockSocket
}

func newMockSocket() (*mockControl, *mockSocket) {
	s := &mockSocket{}
	return &mockControl{sock: s}, s
}

func (c *mockControl) Write(b []byte) {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	c.sock.inbound = append(c.sock.inbound, b...)
}

// TakeWritten drains and returns everything Connection has written so
// far, or nil if nothing has been written yet.
func (c *mockControl) TakeWritten() []byte {
	c.sock.mu.Lock()
	defer c.sock.mu.Unlock()
	if len(c.sock.outbox) == 0 {
		return nil
	}
	out := c.sock.outbox
	c.sock.outbox = nil
	return out
}

func (s *mockSocket) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inbound) == 0 {
		return 0, ErrWouldBlock
	}
	n := copy(p, s.inbound)
	s.inbound = s.inbound[n:]
	return n, nil
}

func (s *mockSocket) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outbox = append(s.outbox, p...)
	return len(p), nil
}

func (s *mockSocket) SetReadDeadline(time.Time) error { return nil }
