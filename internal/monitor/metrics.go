package monitor

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Unplaced reasons for runs that did not get a bar.
const (
	ReasonNoTimestamp = "no_timestamp"
	ReasonOverflow    = "overflow"
)

// Metrics collects Prometheus metrics for the service.
type Metrics struct {
	runsIngested *prometheus.CounterVec
	barsRequests *prometheus.CounterVec
	barsDuration prometheus.Histogram
	slotsFilled  prometheus.Histogram
	runsUnplaced *prometheus.CounterVec
	storeHealthy prometheus.Gauge
	storedRuns   prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			runsIngested: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "flow_activity_runs_ingested_total",
					Help: "Total number of runs ingested",
				},
				[]string{"state_type"},
			),
			barsRequests: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "flow_activity_bars_requests_total",
					Help: "Total number of bar layouts computed",
				},
				[]string{"orientation"},
			),
			barsDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "flow_activity_bars_duration_seconds",
					Help:    "Time spent listing and laying out runs",
					Buckets: prometheus.DefBuckets,
				},
			),
			slotsFilled: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "flow_activity_bars_slots_filled",
					Help:    "Fraction of slots holding a run",
					Buckets: prometheus.LinearBuckets(0, 0.1, 11),
				},
			),
			runsUnplaced: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "flow_activity_runs_unplaced_total",
					Help: "Runs in a window that did not get a slot",
				},
				[]string{"reason"},
			),
			storeHealthy: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "flow_activity_store_healthy",
					Help: "Run store health status (1 = healthy, 0 = unhealthy)",
				},
			),
			storedRuns: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "flow_activity_stored_runs",
					Help: "Number of runs held by the store",
				},
			),
		}
	})
	return metricsInst
}

// RecordIngest records one ingested run.
func (m *Metrics) RecordIngest(stateType string) {
	if m == nil {
		return
	}
	label := strings.ToLower(stateType)
	if label == "" {
		label = "unknown"
	}
	m.runsIngested.WithLabelValues(label).Inc()
}

// RecordBars records a computed layout.
func (m *Metrics) RecordBars(forward bool, slots, filled, untimed, overflow int, took time.Duration) {
	if m == nil {
		return
	}

	orientation := "historical"
	if forward {
		orientation = "forward"
	}
	m.barsRequests.WithLabelValues(orientation).Inc()
	m.barsDuration.Observe(took.Seconds())

	if slots > 0 {
		m.slotsFilled.Observe(float64(filled) / float64(slots))
	}
	if untimed > 0 {
		m.runsUnplaced.WithLabelValues(ReasonNoTimestamp).Add(float64(untimed))
	}
	if overflow > 0 {
		m.runsUnplaced.WithLabelValues(ReasonOverflow).Add(float64(overflow))
	}
}

// UpdateStoreHealth updates the store health gauge and run count.
func (m *Metrics) UpdateStoreHealth(healthy bool, runs int) {
	if m == nil {
		return
	}
	if healthy {
		m.storeHealthy.Set(1)
		m.storedRuns.Set(float64(runs))
	} else {
		m.storeHealthy.Set(0)
	}
}
