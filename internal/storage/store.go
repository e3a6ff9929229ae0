// Package storage persists flow run records for the activity graph.
package storage

import (
	"sort"
	"strings"
	"time"
)

// StateType is the outcome category of a run. It drives the bar colour.
type StateType string

const (
	StateScheduled  StateType = "SCHEDULED"
	StatePending    StateType = "PENDING"
	StateRunning    StateType = "RUNNING"
	StateCompleted  StateType = "COMPLETED"
	StateFailed     StateType = "FAILED"
	StateCancelled  StateType = "CANCELLED"
	StateCancelling StateType = "CANCELLING"
	StateCrashed    StateType = "CRASHED"
	StatePaused     StateType = "PAUSED"
)

// Run is a single flow run.
type Run struct {
	ID                string     `json:"id" yaml:"id"`
	Name              string     `json:"name" yaml:"name"`
	FlowID            string     `json:"flow_id,omitempty" yaml:"flow_id"`
	FlowName          string     `json:"flow_name,omitempty" yaml:"flow_name"`
	DeploymentID      string     `json:"deployment_id,omitempty" yaml:"deployment_id"`
	DeploymentName    string     `json:"deployment_name,omitempty" yaml:"deployment_name"`
	StateType         StateType  `json:"state_type,omitempty" yaml:"state_type"`
	StateName         string     `json:"state_name,omitempty" yaml:"state_name"`
	StartTime         *time.Time `json:"start_time,omitempty" yaml:"start_time"`
	ExpectedStartTime *time.Time `json:"expected_start_time,omitempty" yaml:"expected_start_time"`
	TotalRunTime      float64    `json:"total_run_time" yaml:"total_run_time"` // seconds
	Tags              []string   `json:"tags,omitempty" yaml:"tags"`
	Created           int64      `json:"created" yaml:"-"` // unix ms
}

// EffectiveTime returns the actual start time, falling back to the expected
// start time.
func (r Run) EffectiveTime() (time.Time, bool) {
	if r.StartTime != nil && !r.StartTime.IsZero() {
		return *r.StartTime, true
	}
	if r.ExpectedStartTime != nil && !r.ExpectedStartTime.IsZero() {
		return *r.ExpectedStartTime, true
	}
	return time.Time{}, false
}

// Normalize upper-cases the state type and truncates times to the
// millisecond precision every backend stores.
func (r *Run) Normalize() {
	r.StateType = StateType(strings.ToUpper(string(r.StateType)))
	truncateTimes(r)
}

func truncateTimes(r *Run) {
	if r.StartTime != nil {
		t := r.StartTime.Truncate(time.Millisecond)
		r.StartTime = &t
	}
	if r.ExpectedStartTime != nil {
		t := r.ExpectedStartTime.Truncate(time.Millisecond)
		r.ExpectedStartTime = &t
	}
}

// ListOptions filters for listing runs.
type ListOptions struct {
	Start        time.Time // effective time >= Start, ignored when zero
	End          time.Time // effective time < End, ignored when zero
	FlowID       string
	DeploymentID string
	StateType    StateType
	Untimed      bool // only runs without an effective time; Start and End are ignored
	Limit        int
	Offset       int
}

// Match reports whether run passes the filters (pagination excluded).
func (o ListOptions) Match(run Run) bool {
	if o.FlowID != "" && run.FlowID != o.FlowID {
		return false
	}
	if o.DeploymentID != "" && run.DeploymentID != o.DeploymentID {
		return false
	}
	if o.StateType != "" && run.StateType != o.StateType {
		return false
	}
	t, ok := run.EffectiveTime()
	if o.Untimed {
		return !ok
	}
	if o.Start.IsZero() && o.End.IsZero() {
		return true
	}
	if !ok {
		return false
	}
	if !o.Start.IsZero() && t.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !t.Before(o.End) {
		return false
	}
	return true
}

// Store is the interface for run storage.
type Store interface {
	// Insert creates a run, replacing any run with the same ID.
	Insert(run *Run) error

	// GetByID retrieves a single run by ID. Missing runs return nil, nil.
	GetByID(id string) (*Run, error)

	// List returns runs newest first by effective time; runs without one
	// come last.
	List(opts ListOptions) ([]Run, error)

	// Count returns the number of stored runs.
	Count() (int, error)

	// CountMatching returns the number of runs passing the filters,
	// ignoring Limit and Offset.
	CountMatching(opts ListOptions) (int, error)

	// Close releases resources.
	Close() error
}

// SortNewestFirst orders runs by effective time descending, untimed last.
func SortNewestFirst(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		ti, oki := runs[i].EffectiveTime()
		tj, okj := runs[j].EffectiveTime()
		if oki != okj {
			return oki
		}
		return ti.After(tj)
	})
}

func paginate(runs []Run, limit, offset int) []Run {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(runs) {
		return nil
	}
	runs = runs[offset:]
	if limit > 0 && limit < len(runs) {
		runs = runs[:limit]
	}
	return runs
}
