package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
)

const websocketWriteWait = 10 * time.Second

// WebsocketTransport dials the platform over websocket, authenticating
// with the app credentials during the handshake.
type WebsocketTransport struct {
	endpoint  string
	appID     string
	appSecret string
}

func NewWebsocketTransport(cfg Config) *WebsocketTransport {
	return &WebsocketTransport{
		endpoint:  cfg.Endpoint,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
	}
}

func (t *WebsocketTransport) Dial(ctx context.Context) (Conn, error) {
	if t.endpoint == "" {
		return nil, fmt.Errorf("%w: missing endpoint", ErrHandshake)
	}
	header := http.Header{}
	if t.appID != "" {
		header.Set("X-App-Id", t.appID)
	}
	if t.appSecret != "" {
		header.Set("Authorization", "Bearer "+t.appSecret)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, t.endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: status %d: %v", ErrHandshake, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	return &websocketConn{conn: conn}, nil
}

type websocketConn struct {
	conn *websocket.Conn

	// gorilla allows one concurrent writer; Publish and Ping share one.
	writeMu sync.Mutex
}

func (c *websocketConn) ReadEvent(ctx context.Context) (events.Envelope, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return events.Envelope{}, err
	}
	env, err := events.Normalize(payload)
	if err != nil {
		return events.Envelope{}, errors.Join(ErrInvalidEvent, err)
	}
	return env, nil
}

func (c *websocketConn) Publish(ctx context.Context, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(writeDeadline(ctx))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *websocketConn) Ping(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, writeDeadline(ctx))
}

func (c *websocketConn) Close() error {
	return c.conn.Close()
}

func writeDeadline(ctx context.Context) time.Time {
	if deadline, ok := ctx.Deadline(); ok {
		return deadline
	}
	return time.Now().Add(websocketWriteWait)
}
