//go:build mips64 || mips64le || ppc64 || s390x

package storage

import (
	"errors"
	"log/slog"
)

var errSQLiteUnavailable = errors.New("SQLite storage not available")

// SQLiteStore implements Store using SQLite with WAL mode.
// This is a stub implementation for unsupported platforms.
type SQLiteStore struct{}

// NewSQLiteStore creates a new SQLite store at the given path.
// On unsupported platforms, this returns an error.
func NewSQLiteStore(path string, maxRows int, logger *slog.Logger) (*SQLiteStore, error) {
	return nil, errors.New("SQLite storage is not supported on this platform, use memory storage instead")
}

// Insert creates or replaces a run.
func (s *SQLiteStore) Insert(run *Run) error {
	return errSQLiteUnavailable
}

// GetByID retrieves a single run.
func (s *SQLiteStore) GetByID(id string) (*Run, error) {
	return nil, errSQLiteUnavailable
}

// List retrieves runs with filtering.
func (s *SQLiteStore) List(opts ListOptions) ([]Run, error) {
	return nil, errSQLiteUnavailable
}

// Count returns the number of stored runs.
func (s *SQLiteStore) Count() (int, error) {
	return 0, errSQLiteUnavailable
}

// CountMatching returns the number of runs passing the filters.
func (s *SQLiteStore) CountMatching(opts ListOptions) (int, error) {
	return 0, errSQLiteUnavailable
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return nil
}
