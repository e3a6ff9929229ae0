package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"flow-activity/internal/config"
	"flow-activity/internal/monitor"
	"flow-activity/internal/storage"
	"flow-activity/internal/util"
)

// IngestResponse reports the runs stored by a POST /runs call.
type IngestResponse struct {
	Ingested int      `json:"ingested"`
	IDs      []string `json:"ids"`
}

// handleIngest stores one run or an array of runs.
// POST /activity/api/v1/runs
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	body := r.Body
	if s.cfg.RequestBodyMaxBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.RequestBodyMaxBytes)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	runs, err := decodeRuns(b)
	if err != nil {
		s.logger.Debug("rejected ingest body", "err", err, "bytes", len(b))
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	created := s.now().UnixMilli()
	resp := IngestResponse{IDs: make([]string, 0, len(runs))}
	for i := range runs {
		run := &runs[i]
		if run.ID == "" {
			run.ID = uuid.NewString()
		}
		run.Normalize()
		run.Created = created

		if err := s.store.Insert(run); err != nil {
			s.logger.Error("failed to insert run", "err", err, "id", run.ID)
			s.writeError(w, http.StatusInternalServerError, "failed to store run")
			return
		}

		resp.Ingested++
		resp.IDs = append(resp.IDs, run.ID)
		s.metrics.RecordIngest(string(run.StateType))
		s.events.Publish(monitor.Event{
			Type:      monitor.EventRunIngested,
			RunID:     run.ID,
			Timestamp: time.UnixMilli(created),
			FlowID:    run.FlowID,
			StateType: string(run.StateType),
		})
	}

	if resp.Ingested > 0 {
		s.invalidateBars()
	}
	s.logger.Debug("runs ingested", "count", resp.Ingested, "ids", util.MustJSON(resp.IDs))
	s.writeJSONStatus(w, http.StatusCreated, resp)
}

func decodeRuns(b []byte) ([]storage.Run, error) {
	if util.IsJSONArray(b) {
		var runs []storage.Run
		if err := util.DecodeStrict(b, &runs); err != nil {
			return nil, err
		}
		return runs, nil
	}
	var run storage.Run
	if err := util.DecodeStrict(b, &run); err != nil {
		return nil, err
	}
	return []storage.Run{run}, nil
}

// RunListResponse contains a paginated run list.
type RunListResponse struct {
	Runs   []storage.Run `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// handleListRuns returns runs newest first.
// GET /activity/api/v1/runs?start=&end=&flow_id=&deployment_id=&state_type=&limit=50&offset=0
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	q := r.URL.Query()
	opts := storage.ListOptions{
		FlowID:       q.Get("flow_id"),
		DeploymentID: q.Get("deployment_id"),
		StateType:    storage.StateType(strings.ToUpper(q.Get("state_type"))),
	}
	if v := q.Get("start"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid start: expected RFC3339")
			return
		}
		opts.Start = t
	}
	if v := q.Get("end"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid end: expected RFC3339")
			return
		}
		opts.End = t
	}

	total, err := s.store.CountMatching(opts)
	if err != nil {
		s.logger.Error("failed to count runs", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	opts.Limit = parseInt(q.Get("limit"), defaultListLimit)
	opts.Offset = parseInt(q.Get("offset"), 0)
	runs, err := s.store.List(opts)
	if err != nil {
		s.logger.Error("failed to list runs", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}

	s.writeJSON(w, RunListResponse{
		Runs:   runs,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// handleGetRun returns a single run.
// GET /activity/api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	run, err := s.store.GetByID(id)
	if err != nil {
		s.logger.Error("failed to get run", "err", err, "id", id)
		s.writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}

	s.writeJSON(w, run)
}

// ConfigResponse contains current configuration.
type ConfigResponse struct {
	Mode           string          `json:"mode"`
	Storage        string          `json:"storage"`
	StorageMaxRows int             `json:"storage_max_rows"`
	Features       config.Features `json:"features"`
	Bars           struct {
		BarSize       float64 `json:"bar_size"`
		BarGap        float64 `json:"bar_gap"`
		DefaultBars   int     `json:"default_bars"`
		MaxBars       int     `json:"max_bars"`
		DefaultWindow string  `json:"default_window"`
	} `json:"bars"`
}

// handleConfig returns the current configuration.
// GET /activity/api/v1/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := ConfigResponse{
		Mode:           string(s.cfg.Mode),
		Storage:        string(s.cfg.Storage),
		StorageMaxRows: s.cfg.StorageMaxRows,
		Features:       s.cfg.Features(),
	}
	resp.Bars.BarSize = s.cfg.BarSize
	resp.Bars.BarGap = s.cfg.BarGap
	resp.Bars.DefaultBars = s.cfg.DefaultBars
	resp.Bars.MaxBars = s.cfg.MaxBars
	resp.Bars.DefaultWindow = s.cfg.DefaultWindow.String()

	s.writeJSON(w, resp)
}
