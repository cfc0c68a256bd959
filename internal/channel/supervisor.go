package channel

import (
	"context"
	"sync"
	"time"
)

// Handle is a publishing capability bound to one connection generation.
// Once the manager reconnects, older handles refuse to publish instead of
// writing into a dead or replaced connection.
type Handle struct {
	generation uint64
	conn       Conn
	supervisor *Supervisor
	timeout    time.Duration
}

// Generation identifies the connection this handle was minted for.
func (h *Handle) Generation() uint64 {
	return h.generation
}

// Publish sends a payload through the handle's connection. It fails fast
// with ErrStaleHandle when a newer connection has superseded this one;
// it never blocks past the configured send timeout.
func (h *Handle) Publish(ctx context.Context, payload []byte) error {
	if h == nil || h.conn == nil {
		return ErrChannelNotInitialized
	}
	if !h.supervisor.isActive(h.generation) {
		return ErrStaleHandle
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	return h.conn.Publish(ctx, payload)
}

// Supervisor tracks the newest connection handle. Consumers fetch the
// active handle per send rather than caching one across reconnects.
type Supervisor struct {
	mu         sync.Mutex
	generation uint64
	active     *Handle
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// ActiveHandle returns the newest handle, or ErrChannelNotInitialized
// when no connection has been established yet (or the channel is down).
func (s *Supervisor) ActiveHandle() (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, ErrChannelNotInitialized
	}
	return s.active, nil
}

// adopt mints a handle for a freshly established connection, superseding
// any previous one.
func (s *Supervisor) adopt(conn Conn, timeout time.Duration) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.active = &Handle{
		generation: s.generation,
		conn:       conn,
		supervisor: s,
		timeout:    timeout,
	}
	return s.active
}

// retire clears the active handle if it is still the given one. A handle
// already superseded by a newer connection is left alone.
func (s *Supervisor) retire(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == h {
		s.active = nil
	}
}

func (s *Supervisor) isActive(generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.generation == generation
}
