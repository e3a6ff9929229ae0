package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"flow-activity/internal/config"
	"flow-activity/internal/monitor"
	"flow-activity/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() config.Config {
	return config.Config{
		Mode:                config.ModeMonitor,
		Storage:             config.StorageMemory,
		StorageMaxRows:      1000,
		BarSize:             8,
		BarGap:              4,
		DefaultBars:         10,
		MaxBars:             100,
		DefaultWindow:       24 * time.Hour,
		BarsCacheTTL:        2 * time.Second,
		RequestBodyMaxBytes: 1 << 20,
	}
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestServer(t *testing.T, store storage.Store, events *monitor.EventBus) (*Server, *testClock) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewServer(store, testConfig(), nil, events, logger)
	clock := &testClock{now: t0.Add(time.Hour)}
	s.now = clock.Now
	return s, clock
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func ingest(t *testing.T, s *Server, body string) IngestResponse {
	t.Helper()
	rec := do(t, s, http.MethodPost, APIPrefix+"/runs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[IngestResponse](t, rec)
}

func TestIngest_SingleAndArray(t *testing.T) {
	store := storage.NewMemoryStore(100)
	events := monitor.NewEventBus(10)
	defer events.Shutdown()
	sub := events.Subscribe()

	s, _ := newTestServer(t, store, events)

	resp := ingest(t, s, `{"id":"r1","state_type":"completed","start_time":"2025-03-01T12:00:02Z"}`)
	if resp.Ingested != 1 || resp.IDs[0] != "r1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	resp = ingest(t, s, `[{"name":"a"},{"name":"b"}]`)
	if resp.Ingested != 2 || len(resp.IDs) != 2 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.IDs[0] == "" || resp.IDs[0] == resp.IDs[1] {
		t.Errorf("expected distinct generated ids, got %v", resp.IDs)
	}

	run, _ := store.GetByID("r1")
	if run == nil || run.StateType != storage.StateCompleted {
		t.Fatalf("stored run = %+v", run)
	}
	if run.Created != t0.Add(time.Hour).UnixMilli() {
		t.Errorf("Created = %d", run.Created)
	}

	select {
	case ev := <-sub:
		if ev.Type != monitor.EventRunIngested || ev.RunID != "r1" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

func TestIngest_InvalidBody(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryStore(100), nil)

	for _, body := range []string{`{`, `{"bogus":1}`, `{"id":"a"} {"id":"b"}`} {
		rec := do(t, s, http.MethodPost, APIPrefix+"/runs", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestIngest_BodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryStore(100), nil)
	s.cfg.RequestBodyMaxBytes = 16

	rec := do(t, s, http.MethodPost, APIPrefix+"/runs", `{"id":"a-rather-long-run-id"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryStore(100), nil)
	ingest(t, s, `{"id":"r1","name":"brave-otter"}`)

	rec := do(t, s, http.MethodGet, APIPrefix+"/runs/r1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if run := decode[storage.Run](t, rec); run.Name != "brave-otter" {
		t.Errorf("Name = %q", run.Name)
	}

	rec = do(t, s, http.MethodGet, APIPrefix+"/runs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing run status = %d, want 404", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] == "" {
		t.Error("expected JSON error body")
	}
}

func TestListRuns(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryStore(100), nil)
	ingest(t, s, `[
		{"id":"a","flow_id":"f1","start_time":"2025-03-01T12:00:01Z"},
		{"id":"b","flow_id":"f1","start_time":"2025-03-01T12:00:03Z"},
		{"id":"c","flow_id":"f2","start_time":"2025-03-01T12:00:02Z"}
	]`)

	rec := do(t, s, http.MethodGet, APIPrefix+"/runs?flow_id=f1", "")
	resp := decode[RunListResponse](t, rec)
	if resp.Total != 2 || len(resp.Runs) != 2 || resp.Runs[0].ID != "b" {
		t.Errorf("unexpected list %+v", resp)
	}

	rec = do(t, s, http.MethodGet, APIPrefix+"/runs?limit=1&offset=1", "")
	resp = decode[RunListResponse](t, rec)
	if resp.Total != 3 || len(resp.Runs) != 1 || resp.Runs[0].ID != "c" {
		t.Errorf("unexpected page %+v", resp)
	}

	rec = do(t, s, http.MethodGet, APIPrefix+"/runs?start=2025-03-01T12:00:02Z&end=2025-03-01T12:00:03Z", "")
	resp = decode[RunListResponse](t, rec)
	if resp.Total != 1 || resp.Runs[0].ID != "c" {
		t.Errorf("unexpected window list %+v", resp)
	}

	// Out-of-range and negative paging values fall back to the defaults.
	for _, q := range []string{"offset=18446744073709551615", "offset=-1", "limit=99999999999999999999"} {
		rec = do(t, s, http.MethodGet, APIPrefix+"/runs?"+q, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", q, rec.Code)
		}
		resp = decode[RunListResponse](t, rec)
		if resp.Total != 3 || len(resp.Runs) != 3 || resp.Offset != 0 {
			t.Errorf("%s: unexpected list %+v", q, resp)
		}
	}

	rec = do(t, s, http.MethodGet, APIPrefix+"/runs?start=yesterday", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad start status = %d, want 400", rec.Code)
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 7},
		{"12", 12},
		{"0", 0},
		{"-3", 7},
		{"abc", 7},
		{"18446744073709551615", 7},
	}
	for _, tt := range tests {
		if got := parseInt(tt.in, 7); got != tt.want {
			t.Errorf("parseInt(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestIngest_NormalizesTimes(t *testing.T) {
	store := storage.NewMemoryStore(100)
	s, _ := newTestServer(t, store, nil)
	ingest(t, s, `{"id":"r1","state_type":"running","start_time":"2025-03-01T12:00:00.123456789Z"}`)

	run, _ := store.GetByID("r1")
	want := time.Date(2025, 3, 1, 12, 0, 0, 123000000, time.UTC)
	if run == nil || !run.StartTime.Equal(want) || run.StateType != storage.StateRunning {
		t.Errorf("stored run = %+v", run)
	}
}

func TestRouting(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryStore(100), nil)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, APIPrefix + "/config", http.StatusOK},
		{http.MethodDelete, APIPrefix + "/runs", http.StatusMethodNotAllowed},
		{http.MethodGet, APIPrefix + "/nope", http.StatusNotFound},
		{http.MethodGet, APIPrefix + "/runs/", http.StatusNotFound},
		{http.MethodGet, "/elsewhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(t, s, tt.method, tt.path, ""); rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}

	if !s.Handles(APIPrefix + "/bars") || s.Handles("/dashboard") {
		t.Error("Handles mismatch")
	}
}

func TestNoStore(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	for _, path := range []string{"/runs", "/runs/x", "/bars"} {
		if rec := do(t, s, http.MethodGet, APIPrefix+path, ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestConfigResponse(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	rec := do(t, s, http.MethodGet, APIPrefix+"/config", "")
	resp := decode[ConfigResponse](t, rec)
	if resp.Mode != "monitor" || resp.Storage != "memory" || !resp.Features.Dashboard {
		t.Errorf("unexpected config %+v", resp)
	}
	if resp.Bars.DefaultBars != 10 || resp.Bars.DefaultWindow != "24h0m0s" {
		t.Errorf("unexpected bar defaults %+v", resp.Bars)
	}
}
