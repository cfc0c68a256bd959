package channel

import (
	"context"
	"errors"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
)

var (
	ErrHandshake             = errors.New("channel_handshake_failed")
	ErrChannelNotInitialized = errors.New("channel_not_initialized")
	ErrStaleHandle           = errors.New("stale_channel_handle")
	ErrQueueFull             = errors.New("dispatch_queue_full")

	// ErrInvalidEvent marks a payload the connection received but could
	// not normalize. The connection itself is still healthy.
	ErrInvalidEvent = errors.New("invalid_event_payload")
)

// Transport dials the platform's event endpoint.
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// Conn is one live connection to the platform.
type Conn interface {
	// ReadEvent blocks until the next inbound event. A payload that fails
	// normalization returns an error wrapping ErrInvalidEvent; any other
	// error means the connection is dead.
	ReadEvent(ctx context.Context) (events.Envelope, error)
	Publish(ctx context.Context, payload []byte) error
	Ping(ctx context.Context) error
	Close() error
}
