// Package api provides the versioned REST API for flow runs and the
// activity bar graph. All endpoints are under /activity/api/v1/.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"flow-activity/internal/config"
	"flow-activity/internal/monitor"
	"flow-activity/internal/storage"
)

const (
	// APIPrefix is the base path for all API endpoints.
	APIPrefix = "/activity/api/v1"

	defaultListLimit = 50
)

// Server handles API requests for runs and bars.
type Server struct {
	store   storage.Store
	cfg     config.Config
	metrics *monitor.Metrics
	events  *monitor.EventBus
	logger  *slog.Logger
	now     func() time.Time

	// Bars cache to prevent refresh storms
	barsCache   map[string]*cachedBars
	barsCacheMu sync.RWMutex
}

type cachedBars struct {
	data      *BarsResponse
	expiresAt time.Time
}

// NewServer creates a new API server. metrics and events may be nil.
func NewServer(store storage.Store, cfg config.Config, metrics *monitor.Metrics, events *monitor.EventBus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:     store,
		cfg:       cfg,
		metrics:   metrics,
		events:    events,
		logger:    logger,
		now:       time.Now,
		barsCache: make(map[string]*cachedBars),
	}
}

// ServeHTTP handles API requests.
// It expects paths starting with /activity/api/v1/.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, APIPrefix)
	if path == r.URL.Path {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch {
	case path == "/runs" && r.Method == http.MethodPost:
		s.handleIngest(w, r)
	case path == "/runs" && r.Method == http.MethodGet:
		s.handleListRuns(w, r)
	case strings.HasPrefix(path, "/runs/") && r.Method == http.MethodGet:
		id := strings.TrimPrefix(path, "/runs/")
		if id == "" || strings.Contains(id, "/") {
			s.writeError(w, http.StatusNotFound, "not found")
			return
		}
		s.handleGetRun(w, r, id)
	case path == "/bars" && r.Method == http.MethodGet:
		s.handleBars(w, r)
	case path == "/config" && r.Method == http.MethodGet:
		s.handleConfig(w, r)
	case path == "/runs" || path == "/bars" || path == "/config":
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

// Handles reports whether path belongs to the API.
func (s *Server) Handles(path string) bool {
	return strings.HasPrefix(path, APIPrefix)
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (s *Server) invalidateBars() {
	s.barsCacheMu.Lock()
	clear(s.barsCache)
	s.barsCacheMu.Unlock()
}

// parseInt returns def for empty, malformed, out-of-range or negative input.
func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
