package monitor

import (
	"testing"
	"time"
)

func TestMetrics_Singleton(t *testing.T) {
	if NewMetrics() != NewMetrics() {
		t.Error("NewMetrics should return the same collector")
	}
}

func TestMetrics_Record(t *testing.T) {
	metrics := NewMetrics()

	metrics.RecordIngest("COMPLETED")
	metrics.RecordIngest("")
	metrics.RecordBars(true, 10, 3, 1, 2, 5*time.Millisecond)
	metrics.RecordBars(false, 0, 0, 0, 0, 0)
	metrics.UpdateStoreHealth(true, 42)
	metrics.UpdateStoreHealth(false, 0)

	// Verify no panic
}

func TestMetrics_NilReceiver(t *testing.T) {
	var metrics *Metrics

	metrics.RecordIngest("FAILED")
	metrics.RecordBars(false, 10, 1, 0, 0, time.Millisecond)
	metrics.UpdateStoreHealth(true, 1)
}
