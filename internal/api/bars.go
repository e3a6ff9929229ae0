package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flow-activity/internal/activity"
	"flow-activity/internal/config"
	"flow-activity/internal/storage"
)

const (
	// FillInactivity marks an empty bar.
	FillInactivity = "inactivity"

	maxTooltipTags  = 5
	startTextLayout = "2006/01/02 15:04"
)

// BarsResponse is one activity bar graph.
type BarsResponse struct {
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	BucketWidthMs int64     `json:"bucket_width_ms"`
	Forward       bool      `json:"forward"`
	Filled        int       `json:"filled"`
	Bars          []Bar     `json:"bars"`
}

// Bar is a single slot. Run is nil for an empty slot.
type Bar struct {
	Index     int      `json:"index"`
	Value     float64  `json:"value"`
	StateType string   `json:"state_type,omitempty"`
	Fill      string   `json:"fill"`
	Run       *Tooltip `json:"run,omitempty"`
}

// Tooltip holds the details shown when hovering a bar.
type Tooltip struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	FlowID         string   `json:"flow_id,omitempty"`
	FlowName       string   `json:"flow_name,omitempty"`
	DeploymentID   string   `json:"deployment_id,omitempty"`
	DeploymentName string   `json:"deployment_name,omitempty"`
	StateType      string   `json:"state_type,omitempty"`
	StateName      string   `json:"state_name,omitempty"`
	Duration       string   `json:"duration"`
	StartText      string   `json:"start_text,omitempty"`
	Tags           []string `json:"tags"`
	HiddenTags     int      `json:"hidden_tags"`
}

type barsQuery struct {
	window       activity.Window
	slots        int
	flowID       string
	deploymentID string
}

// handleBars lays out runs in a window onto a fixed number of bars.
// GET /activity/api/v1/bars?start=&end=&window=24h&width=&bar_size=&bar_gap=&bars=&flow_id=&deployment_id=
func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "storage not available")
		return
	}

	q := r.URL.Query()
	cacheKey := q.Encode()
	now := s.now()

	s.barsCacheMu.RLock()
	if cached, ok := s.barsCache[cacheKey]; ok && now.Before(cached.expiresAt) {
		s.barsCacheMu.RUnlock()
		s.writeJSON(w, cached.data)
		return
	}
	s.barsCacheMu.RUnlock()

	bq, msg := s.parseBarsQuery(r, now)
	if msg != "" {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}

	started := time.Now()
	runs, err := s.store.List(storage.ListOptions{
		Start:        bq.window.Start,
		End:          bq.window.End,
		FlowID:       bq.flowID,
		DeploymentID: bq.deploymentID,
	})
	if err != nil {
		s.logger.Error("failed to list runs for bars", "err", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	slots := activity.Bucketize(runs, bq.window, bq.slots, now)
	resp := &BarsResponse{
		Start:         bq.window.Start,
		End:           bq.window.End,
		BucketWidthMs: bq.window.BucketWidth(bq.slots).Milliseconds(),
		Forward:       bq.window.Forward(now),
		Filled:        activity.Filled(slots),
		Bars:          projectBars(slots),
	}

	// The window filter hides runs without a time, so count them separately.
	untimed, err := s.store.CountMatching(storage.ListOptions{
		FlowID:       bq.flowID,
		DeploymentID: bq.deploymentID,
		Untimed:      true,
	})
	if err != nil {
		s.logger.Warn("failed to count untimed runs", "err", err)
		untimed = 0
	}
	s.metrics.RecordBars(resp.Forward, bq.slots, resp.Filled, untimed, len(runs)-resp.Filled, time.Since(started))

	if s.cfg.BarsCacheTTL > 0 {
		s.storeBars(cacheKey, resp, now)
	}

	s.writeJSON(w, resp)
}

func (s *Server) storeBars(key string, resp *BarsResponse, now time.Time) {
	s.barsCacheMu.Lock()
	defer s.barsCacheMu.Unlock()

	for k, c := range s.barsCache {
		if !now.Before(c.expiresAt) {
			delete(s.barsCache, k)
		}
	}
	s.barsCache[key] = &cachedBars{
		data:      resp,
		expiresAt: now.Add(s.cfg.BarsCacheTTL),
	}
}

// parseBarsQuery resolves the window and slot count. A non-empty string is a
// client error message.
func (s *Server) parseBarsQuery(r *http.Request, now time.Time) (barsQuery, string) {
	q := r.URL.Query()
	bq := barsQuery{
		flowID:       q.Get("flow_id"),
		deploymentID: q.Get("deployment_id"),
	}

	span := s.cfg.DefaultWindow
	if v := q.Get("window"); v != "" {
		d, err := config.ParseWindow(v)
		if err != nil || d <= 0 {
			return bq, "invalid window"
		}
		span = d
	}

	end := now
	if v := q.Get("end"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return bq, "invalid end: expected RFC3339"
		}
		end = t
	}
	start := end.Add(-span)
	if v := q.Get("start"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			return bq, "invalid start: expected RFC3339"
		}
		start = t
	}
	bq.window = activity.Window{Start: start, End: end}

	n, msg := s.slotCount(q.Get("bars"), q.Get("width"), q.Get("bar_size"), q.Get("bar_gap"))
	if msg != "" {
		return bq, msg
	}
	bq.slots = n
	return bq, ""
}

func (s *Server) slotCount(bars, width, barSize, barGap string) (int, string) {
	n := s.cfg.DefaultBars
	switch {
	case bars != "":
		v, err := strconv.Atoi(bars)
		if err != nil || v < 0 {
			return 0, "invalid bars"
		}
		n = v
	case width != "":
		wv, err := parseFinite(width)
		if err != nil {
			return 0, "invalid width"
		}
		size, err := floatOr(barSize, s.cfg.BarSize)
		if err != nil {
			return 0, "invalid bar_size"
		}
		gap, err := floatOr(barGap, s.cfg.BarGap)
		if err != nil {
			return 0, "invalid bar_gap"
		}
		if wv > 0 {
			n = activity.SlotCount(wv, size, gap)
		}
	}

	if s.cfg.MaxBars > 0 && n > s.cfg.MaxBars {
		n = s.cfg.MaxBars
	}
	return n, ""
}

func floatOr(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return parseFinite(s)
}

// parseFinite rejects NaN and infinities, which ParseFloat accepts.
func parseFinite(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}

func projectBars(slots []*storage.Run) []Bar {
	bars := make([]Bar, len(slots))
	for i, run := range slots {
		bars[i] = Bar{Index: i, Fill: FillInactivity}
		if run == nil {
			continue
		}
		bars[i].Value = run.TotalRunTime
		bars[i].StateType = string(run.StateType)
		bars[i].Fill = "state-" + strings.ToLower(string(run.StateType))
		bars[i].Run = tooltip(run)
	}
	return bars
}

func tooltip(run *storage.Run) *Tooltip {
	t := &Tooltip{
		ID:             run.ID,
		Name:           run.Name,
		FlowID:         run.FlowID,
		FlowName:       run.FlowName,
		DeploymentID:   run.DeploymentID,
		DeploymentName: run.DeploymentName,
		StateType:      string(run.StateType),
		StateName:      run.StateName,
		Duration:       activity.ApproximateDuration(run.TotalRunTime),
		Tags:           []string{},
	}
	if at, ok := run.EffectiveTime(); ok {
		t.StartText = at.UTC().Format(startTextLayout)
	}

	tags := run.Tags
	if len(tags) > maxTooltipTags {
		t.HiddenTags = len(tags) - maxTooltipTags
		tags = tags[:maxTooltipTags]
	}
	t.Tags = append(t.Tags, tags...)
	return t
}
