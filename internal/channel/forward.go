package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/tracing"
)

// Forwarder delivers channel events to the local webhook endpoint over
// HTTP, the same path external callers use.
type Forwarder struct {
	client *http.Client
	url    string
}

func NewForwarder(cfg Config) *Forwarder {
	cfg = cfg.withDefaults()
	return &Forwarder{
		client: tracing.WrapHTTPClient(&http.Client{Timeout: cfg.SendTimeout}),
		url:    fmt.Sprintf("http://127.0.0.1:%d/webhook/event", cfg.ForwardPort),
	}
}

func (f *Forwarder) Forward(ctx context.Context, env events.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
