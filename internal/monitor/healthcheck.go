package monitor

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is the part of the run store the health checker probes.
type Counter interface {
	Count() (int, error)
}

// HealthChecker periodically probes the run store.
type HealthChecker struct {
	store         Counter
	checkInterval time.Duration
	healthy       atomic.Bool
	lastCheck     atomic.Value // time.Time
	lastError     atomic.Value // string
	metrics       *Metrics
	logger        *slog.Logger
	stopCh        chan struct{}
	stopOnce      sync.Once
}

// NewHealthChecker creates a health checker and starts probing in the background.
func NewHealthChecker(store Counter, checkInterval time.Duration, metrics *Metrics, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	hc := &HealthChecker{
		store:         store,
		checkInterval: checkInterval,
		metrics:       metrics,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
	// Unhealthy until the first probe
	hc.healthy.Store(false)

	go hc.run()

	return hc
}

func (hc *HealthChecker) run() {
	hc.Check()

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.Check()
		case <-hc.stopCh:
			return
		}
	}
}

// Check performs a single probe.
func (hc *HealthChecker) Check() {
	n, err := hc.store.Count()
	if err != nil {
		hc.update(false, 0, err.Error())
		return
	}
	hc.update(true, n, "")
}

func (hc *HealthChecker) update(healthy bool, runs int, errMsg string) {
	hc.healthy.Store(healthy)
	hc.lastCheck.Store(time.Now())
	hc.lastError.Store(errMsg)
	if errMsg != "" {
		hc.logger.Warn("store health check failed", "err", errMsg)
	}

	hc.metrics.UpdateStoreHealth(healthy, runs)
}

// Healthy returns whether the store answered the last probe.
func (hc *HealthChecker) Healthy() bool {
	return hc.healthy.Load()
}

// LastCheck returns the time of the last probe.
func (hc *HealthChecker) LastCheck() time.Time {
	if v := hc.lastCheck.Load(); v != nil {
		return v.(time.Time)
	}
	return time.Time{}
}

// LastError returns the last error message, if any.
func (hc *HealthChecker) LastError() string {
	if v := hc.lastError.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Shutdown stops the health checker.
func (hc *HealthChecker) Shutdown() {
	hc.stopOnce.Do(func() { close(hc.stopCh) })
}
