package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics tracks the ledger/index reconciliation loop.
type SyncMetrics struct {
	syncRuns      *prometheus.CounterVec
	recordsFixed  prometheus.Counter
	syncRatio     prometheus.Gauge
	lastSyncEpoch prometheus.Gauge
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

func ResetSyncMetricsForTest() {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
}

func constLabels(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "order_robot"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	syncRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "order_robot_sync_runs_total",
			Help:        "Total reconciliation passes over the ledger and opt-out index.",
			ConstLabels: labels,
		},
		[]string{"result"}, // consistent | fixed | failed
	)
	recordsFixed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:        "order_robot_sync_records_fixed_total",
			Help:        "Opt-out index entries added by reconciliation.",
			ConstLabels: labels,
		},
	)
	syncRatio := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "order_robot_sync_ratio",
			Help:        "Fraction of ledger no-eat records mirrored in the opt-out index.",
			ConstLabels: labels,
		},
	)
	lastSyncEpoch := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:        "order_robot_sync_last_run_timestamp_seconds",
			Help:        "Unix time of the last completed reconciliation pass.",
			ConstLabels: labels,
		},
	)

	registerer.MustRegister(syncRuns, recordsFixed, syncRatio, lastSyncEpoch)

	return &SyncMetrics{
		syncRuns:      syncRuns,
		recordsFixed:  recordsFixed,
		syncRatio:     syncRatio,
		lastSyncEpoch: lastSyncEpoch,
	}
}

func (m *SyncMetrics) IncRun(result string) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(result).Inc()
}

func (m *SyncMetrics) AddFixed(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsFixed.Add(float64(count))
}

func (m *SyncMetrics) SetRatio(ratio float64) {
	if m == nil {
		return
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	m.syncRatio.Set(ratio)
}

func (m *SyncMetrics) SetLastRunUnix(seconds int64) {
	if m == nil {
		return
	}
	m.lastSyncEpoch.Set(float64(seconds))
}
