package storage

import (
	"sync"
)

// MemoryStore implements Store using an in-memory ring buffer.
// This is used when STORAGE=memory or as a fallback.
type MemoryStore struct {
	mu      sync.RWMutex
	runs    []Run
	byID    map[string]int // ID -> index in runs
	maxRows int
	head    int // next write position
	count   int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(maxRows int) *MemoryStore {
	if maxRows <= 0 {
		maxRows = 1
	}
	return &MemoryStore{
		runs:    make([]Run, maxRows),
		byID:    make(map[string]int),
		maxRows: maxRows,
	}
}

// Insert adds a run, replacing an existing run with the same ID in place.
func (s *MemoryStore) Insert(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneRun(*run)
	truncateTimes(&stored)

	if idx, ok := s.byID[run.ID]; ok {
		s.runs[idx] = stored
		return nil
	}

	// If we're overwriting, remove old ID from map
	if s.count == s.maxRows {
		delete(s.byID, s.runs[s.head].ID)
	}

	s.runs[s.head] = stored
	s.byID[run.ID] = s.head

	s.head = (s.head + 1) % s.maxRows
	if s.count < s.maxRows {
		s.count++
	}
	return nil
}

// GetByID retrieves a single run.
func (s *MemoryStore) GetByID(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	run := cloneRun(s.runs[idx])
	return &run, nil
}

// List returns runs matching the filter options.
func (s *MemoryStore) List(opts ListOptions) ([]Run, error) {
	s.mu.RLock()
	var filtered []Run
	for _, run := range s.collect() {
		if opts.Match(run) {
			filtered = append(filtered, cloneRun(run))
		}
	}
	s.mu.RUnlock()

	SortNewestFirst(filtered)
	return paginate(filtered, opts.Limit, opts.Offset), nil
}

// Count returns the number of stored runs.
func (s *MemoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count, nil
}

// CountMatching returns the number of runs passing the filters.
func (s *MemoryStore) CountMatching(opts ListOptions) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, run := range s.collect() {
		if opts.Match(run) {
			n++
		}
	}
	return n, nil
}

// Close is a no-op for memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// collect returns stored runs, most recently inserted first.
func (s *MemoryStore) collect() []Run {
	result := make([]Run, 0, s.count)
	for i := 0; i < s.count; i++ {
		idx := (s.head - 1 - i + s.maxRows) % s.maxRows
		result = append(result, s.runs[idx])
	}
	return result
}

func cloneRun(r Run) Run {
	if r.Tags != nil {
		r.Tags = append([]string(nil), r.Tags...)
	}
	if r.StartTime != nil {
		t := *r.StartTime
		r.StartTime = &t
	}
	if r.ExpectedStartTime != nil {
		t := *r.ExpectedStartTime
		r.ExpectedStartTime = &t
	}
	return r
}
