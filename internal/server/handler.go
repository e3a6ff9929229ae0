// Package server assembles the top-level HTTP handler: the run API, metrics,
// health, the SSE event stream and the embedded dashboard.
package server

import (
	"encoding/json"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flow-activity/internal/api"
	"flow-activity/internal/config"
	"flow-activity/internal/monitor"
)

// Handler routes every request the service answers.
type Handler struct {
	cfg           config.Config
	features      config.Features
	logger        *slog.Logger
	apiServer     *api.Server
	eventBus      *monitor.EventBus
	metrics       *monitor.Metrics
	healthChecker *monitor.HealthChecker
	dashboardFS   fs.FS
}

// NewHandler constructs the handler. Any of apiServer, eventBus, metrics,
// healthChecker and dashboard may be nil.
func NewHandler(
	cfg config.Config,
	apiServer *api.Server,
	eventBus *monitor.EventBus,
	metrics *monitor.Metrics,
	healthChecker *monitor.HealthChecker,
	dashboard fs.FS,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		cfg:           cfg,
		features:      cfg.Features(),
		logger:        logger,
		apiServer:     apiServer,
		eventBus:      eventBus,
		metrics:       metrics,
		healthChecker: healthChecker,
		dashboardFS:   dashboard,
	}
}

// ServeHTTP dispatches by path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS
	if h.cfg.CORSAllowOrigin != "" {
		w.Header().Set("Access-Control-Allow-Origin", h.cfg.CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	}
	if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if h.apiServer != nil && h.apiServer.Handles(r.URL.Path) {
		h.apiServer.ServeHTTP(w, r)
		return
	}

	switch {
	case h.features.Metrics && r.URL.Path == "/metrics" && r.Method == http.MethodGet:
		h.handleMetrics(w, r)
	case r.URL.Path == "/healthz":
		h.handleHealthz(w, r)
	case r.URL.Path == "/healthz/storage":
		h.handleHealthzStorage(w, r)
	case h.features.Events && r.URL.Path == "/events" && r.Method == http.MethodGet:
		h.handleSSEEvents(w, r)
	case h.features.Dashboard && r.Method == http.MethodGet && (r.URL.Path == "/dashboard" || strings.HasPrefix(r.URL.Path, "/dashboard/")):
		h.handleDashboard(w, r)
	case h.features.Dashboard && r.URL.Path == "/":
		http.Redirect(w, r, "/dashboard", http.StatusTemporaryRedirect)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventBus == nil {
		http.Error(w, "event bus not available", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	eventCh := h.eventBus.Subscribe()
	defer h.eventBus.Unsubscribe(eventCh)

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sseData, err := monitor.FormatSSEEvent(event)
			if err != nil {
				h.logger.Debug("failed to format event", "err", err)
				continue
			}
			if _, err := w.Write([]byte(sseData)); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	promhttp.Handler().ServeHTTP(w, r)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.healthChecker != nil && !h.healthChecker.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("storage unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleHealthzStorage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.healthChecker == nil {
		json.NewEncoder(w).Encode(map[string]any{
			"healthy":    true,
			"storage":    string(h.cfg.Storage),
			"last_check": time.Now().Format(time.RFC3339),
		})
		return
	}

	healthy := h.healthChecker.Healthy()
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]any{
		"healthy":    healthy,
		"storage":    string(h.cfg.Storage),
		"last_check": h.healthChecker.LastCheck().Format(time.RFC3339),
	}
	if lastError := h.healthChecker.LastError(); lastError != "" {
		response["last_error"] = lastError
	}
	json.NewEncoder(w).Encode(response)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if h.dashboardFS == nil {
		http.Error(w, "Dashboard assets not available", http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/dashboard")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		path = "index.html"
	}

	file, err := h.dashboardFS.Open(path)
	if err == nil {
		if stat, serr := file.Stat(); serr != nil || stat.IsDir() {
			file.Close()
			err = fs.ErrNotExist
		}
	}
	if err != nil {
		// Unknown paths fall back to the index page.
		path = "index.html"
		file, err = h.dashboardFS.Open(path)
		if err != nil {
			http.Error(w, "Dashboard not found", http.StatusNotFound)
			return
		}
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		http.Error(w, "Failed to read dashboard", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType(path))
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	if !strings.HasSuffix(path, ".html") {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}

	if seeker, ok := file.(io.ReadSeeker); ok {
		http.ServeContent(w, r, path, stat.ModTime(), seeker)
		return
	}
	_, _ = io.Copy(w, file)
}

func contentType(path string) string {
	switch {
	case strings.HasSuffix(path, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(path, ".js"):
		return "application/javascript; charset=utf-8"
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".ico"):
		return "image/x-icon"
	default:
		return "application/octet-stream"
	}
}
