package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ChannelMetrics tracks the event-channel connection and dispatch queue.
type ChannelMetrics struct {
	connectAttempts *prometheus.CounterVec
	reconnects      prometheus.Counter
	connected       prometheus.Gauge
	events          *prometheus.CounterVec
}

var (
	channelMetricsOnce sync.Once
	channelMetrics     *ChannelMetrics
)

func Channel() *ChannelMetrics {
	return ChannelWithConfig(Config{})
}

func ChannelWithConfig(cfg Config) *ChannelMetrics {
	channelMetricsOnce.Do(func() {
		channelMetrics = newChannelMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return channelMetrics
}

func ResetChannelMetricsForTest() {
	channelMetricsOnce = sync.Once{}
	channelMetrics = nil
}

func newChannelMetrics(registerer prometheus.Registerer, cfg Config) *ChannelMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	connectAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "order_robot_channel_connect_attempts_total",
			Help:        "Channel handshake attempts.",
			ConstLabels: labels,
		},
		[]string{"result"}, // success | failure
	)
	reconnects := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "order_robot_channel_reconnects_total",
			Help:        "Reconnect sequences started.",
			ConstLabels: labels,
		},
	)
	connected := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "order_robot_channel_connected",
			Help:        "1 when the channel connection is established.",
			ConstLabels: labels,
		},
	)
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "order_robot_channel_events_total",
			Help:        "Inbound channel events by outcome.",
			ConstLabels: labels,
		},
		[]string{"outcome"}, // received | forwarded | dropped_queue | dropped_forward
	)

	registerer.MustRegister(connectAttempts, reconnects, connected, events)

	return &ChannelMetrics{
		connectAttempts: connectAttempts,
		reconnects:      reconnects,
		connected:       connected,
		events:          events,
	}
}

func (m *ChannelMetrics) IncConnectAttempt(result string) {
	if m == nil {
		return
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *ChannelMetrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *ChannelMetrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
		return
	}
	m.connected.Set(0)
}

func (m *ChannelMetrics) IncEvent(outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(outcome).Inc()
}
