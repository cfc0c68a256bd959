// Package channel maintains the persistent event connection to the chat
// platform. One manager owns the connection lifecycle: it dials, reads,
// heartbeats, and reconnects; inbound events flow through a bounded queue
// to the local webhook.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/metrics"
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// EventForwarder delivers one inbound event to the local webhook.
type EventForwarder interface {
	Forward(ctx context.Context, env events.Envelope) error
}

// Manager drives the connection state machine.
type Manager struct {
	cfg        Config
	transport  Transport
	forwarder  EventForwarder
	supervisor *Supervisor
	metrics    *metrics.ChannelMetrics
	log        *zap.Logger

	state       atomic.Int32
	reconnectCh chan struct{}
	queue       chan events.Envelope

	activeMu sync.Mutex
	active   Conn
}

func NewManager(cfg Config, transport Transport, forwarder EventForwarder, supervisor *Supervisor, m *metrics.ChannelMetrics, log *zap.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:         cfg,
		transport:   transport,
		forwarder:   forwarder,
		supervisor:  supervisor,
		metrics:     m,
		log:         log.Named("channel"),
		reconnectCh: make(chan struct{}, 1),
		queue:       make(chan events.Envelope, cfg.QueueSize),
	}
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// RequestReconnect asks the run loop to retry immediately. Requests are
// single-flight: while one is pending, further requests coalesce into it
// and return false.
func (m *Manager) RequestReconnect() bool {
	select {
	case m.reconnectCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run owns the connection until ctx is cancelled. Dial failures are
// logged and retried; they never propagate.
func (m *Manager) Run(ctx context.Context) {
	go m.consumeLoop(ctx)
	go m.heartbeatLoop(ctx)

	failures := 0
	for {
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}

		m.setState(StateConnecting)
		conn, err := m.transport.Dial(ctx)
		if err != nil {
			failures++
			m.metrics.IncConnectAttempt("failure")
			m.log.Warn("connect failed", zap.Int("attempt", failures), zap.Error(err))
			m.setState(StateReconnecting)
			delay := m.cfg.ReconnectDelay
			if failures > 1 {
				delay = m.cfg.RetryDelay
			}
			if !m.wait(ctx, delay) {
				m.setState(StateDisconnected)
				return
			}
			continue
		}

		failures = 0
		m.metrics.IncConnectAttempt("success")
		m.metrics.SetConnected(true)
		m.setActive(conn)
		handle := m.supervisor.adopt(conn, m.cfg.SendTimeout)
		m.setState(StateConnected)
		m.drainReconnectRequests()
		m.log.Info("connected", zap.Uint64("generation", handle.Generation()))

		m.readLoop(ctx, conn)

		m.supervisor.retire(handle)
		m.setActive(nil)
		_ = conn.Close()
		m.metrics.SetConnected(false)

		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		m.metrics.IncReconnect()
		m.setState(StateReconnecting)
		if !m.wait(ctx, m.cfg.ReconnectDelay) {
			m.setState(StateDisconnected)
			return
		}
	}
}

func (m *Manager) readLoop(ctx context.Context, conn Conn) {
	for {
		env, err := conn.ReadEvent(ctx)
		if err != nil {
			if errors.Is(err, ErrInvalidEvent) {
				m.metrics.IncEvent("invalid")
				m.log.Warn("discarding malformed event", zap.Error(err))
				continue
			}
			if ctx.Err() == nil {
				m.log.Warn("read failed, reconnecting", zap.Error(err))
			}
			return
		}
		m.metrics.IncEvent("received")
		m.enqueue(env)
	}
}

// enqueue pushes onto the bounded queue, dropping the oldest entry on
// overflow so fresh events are never the ones lost.
func (m *Manager) enqueue(env events.Envelope) {
	for {
		select {
		case m.queue <- env:
			return
		default:
		}
		select {
		case <-m.queue:
			m.metrics.IncEvent("dropped_queue")
			m.log.Warn("dispatch queue full, dropped oldest event", zap.Error(ErrQueueFull))
		default:
		}
	}
}

func (m *Manager) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-m.queue:
			sendCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
			err := m.forwarder.Forward(sendCtx, env)
			cancel()
			if err != nil {
				// Upstream redelivers; dropping here is tolerated.
				m.metrics.IncEvent("dropped_forward")
				m.log.Warn("forward failed, event dropped",
					zap.String("type", env.Type),
					zap.String("operator_id", env.OperatorID),
					zap.Error(err),
				)
				continue
			}
			m.metrics.IncEvent("forwarded")
		}
	}
}

// heartbeatLoop pings the live connection on the configured interval. A
// failed ping closes the connection so the read loop triggers reconnect;
// when not connected it nudges the run loop instead.
func (m *Manager) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if m.State() != StateConnected {
			m.RequestReconnect()
			continue
		}
		conn := m.activeConn()
		if conn == nil {
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, m.cfg.SendTimeout)
		err := conn.Ping(pingCtx)
		cancel()
		if err != nil {
			m.log.Warn("heartbeat ping failed, closing connection", zap.Error(err))
			_ = conn.Close()
		}
	}
}

// wait sleeps for the delay but wakes early on a reconnect request or
// cancellation. Returns false when ctx is done.
func (m *Manager) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-m.reconnectCh:
		return true
	}
}

func (m *Manager) drainReconnectRequests() {
	select {
	case <-m.reconnectCh:
	default:
	}
}

func (m *Manager) setState(s State) {
	prev := State(m.state.Swap(int32(s)))
	if prev != s {
		m.log.Debug("state changed",
			zap.String("from", prev.String()),
			zap.String("to", s.String()),
		)
	}
}

// Shutdown closes the live connection so a blocked read returns. Call
// after cancelling the run context.
func (m *Manager) Shutdown() {
	if conn := m.activeConn(); conn != nil {
		_ = conn.Close()
	}
}

func (m *Manager) setActive(conn Conn) {
	m.activeMu.Lock()
	m.active = conn
	m.activeMu.Unlock()
}

func (m *Manager) activeConn() Conn {
	m.activeMu.Lock()
	defer m.activeMu.Unlock()
	return m.active
}
