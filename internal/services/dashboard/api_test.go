package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/metrics"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/irrigation"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
)

func newTestServer(t *testing.T, ready map[string]Check) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db.sqlite3"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	logger := log.New(io.Discard, "", 0)
	h := NewHandler(Config{
		Readings: st,
		Tracker:  irrigation.NewTracker(st, logger),
		Metrics:  metrics.New(),
		Ready:    ready,
		Logger:   logger,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, st
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if into != nil {
		if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestRecentReadingsNewestFirst(t *testing.T) {
	srv, st := newTestServer(t, nil)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		if _, err := st.SaveReading(ctx, model.Telemetry{Temperature: float64(i), Humidity: 50, SoilMoisture: 30}); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	var body struct {
		Data []model.Reading `json:"data"`
	}
	if code := getJSON(t, srv.URL+"/data/", &body); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(body.Data) != RecentLimit {
		t.Fatalf("got %d readings, want %d", len(body.Data), RecentLimit)
	}
	if body.Data[0].Temperature != 11 {
		t.Fatalf("first reading temperature=%v, want newest (11)", body.Data[0].Temperature)
	}
}

func TestVisualizationEmpty(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	var c ChartData
	if code := getJSON(t, srv.URL+"/data/visualization/", &c); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if c.Timestamps == nil || len(c.Timestamps) != 0 || len(c.SoilMoistures) != 0 {
		t.Fatalf("expected empty series, got %+v", c)
	}
}

func TestNewChartData(t *testing.T) {
	ts := time.Date(2024, 5, 1, 13, 4, 5, 0, time.UTC)
	c := NewChartData([]model.Reading{
		{Temperature: 25, Humidity: 60, SoilMoisture: 40, Timestamp: ts},
		{Temperature: 24, Humidity: 61, SoilMoisture: 41, Timestamp: ts.Add(-time.Minute)},
	})
	if c.Timestamps[0] != "2024-05-01 13:04:05" || c.Timestamps[1] != "2024-05-01 13:03:05" {
		t.Fatalf("timestamps=%v", c.Timestamps)
	}
	if c.Temperatures[1] != 24 || c.Humidities[0] != 60 || c.SoilMoistures[1] != 41 {
		t.Fatalf("series mismatch: %+v", c)
	}
}

type sessionList struct {
	Sessions []model.IrrigationSession `json:"irrigation_data"`
}

func TestIrrigationStartsSessionOnList(t *testing.T) {
	srv, st := newTestServer(t, nil)

	var empty sessionList
	if code := getJSON(t, srv.URL+"/irrigation/", &empty); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if len(empty.Sessions) != 0 {
		t.Fatalf("no readings yet, got %d sessions", len(empty.Sessions))
	}

	r, err := st.SaveReading(context.Background(), model.Telemetry{Temperature: 30, Humidity: 20, SoilMoisture: 10})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	var body sessionList
	getJSON(t, srv.URL+"/irrigation/", &body)
	if len(body.Sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(body.Sessions))
	}
	s := body.Sessions[0]
	if s.SensorDataID == nil || *s.SensorDataID != r.ID || s.EndTime != nil {
		t.Fatalf("unexpected session %+v", s)
	}
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEndIrrigation(t *testing.T) {
	srv, st := newTestServer(t, nil)
	if _, err := st.SaveReading(context.Background(), model.Telemetry{Temperature: 30, Humidity: 20, SoilMoisture: 10}); err != nil {
		t.Fatalf("save: %v", err)
	}
	var list sessionList
	getJSON(t, srv.URL+"/irrigation/", &list)
	if len(list.Sessions) != 1 {
		t.Fatalf("setup: %d sessions", len(list.Sessions))
	}
	id := list.Sessions[0].ID
	endURL := srv.URL + "/irrigation/" + itoa(id) + "/end"

	if resp := post(t, endURL, `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing water_used: status=%d", resp.StatusCode)
	}
	if resp := post(t, srv.URL+"/irrigation/9999/end", `{"water_used": 1}`); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown id: status=%d", resp.StatusCode)
	}

	resp := post(t, endURL, `{"water_used": 12.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close: status=%d", resp.StatusCode)
	}
	var closed model.IrrigationSession
	if err := json.NewDecoder(resp.Body).Decode(&closed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if closed.EndTime == nil || closed.WaterUsed != 12.5 {
		t.Fatalf("not closed: %+v", closed)
	}
	if closed.EndTime.Before(closed.StartTime) {
		t.Fatalf("end %v before start %v", closed.EndTime, closed.StartTime)
	}

	resp = post(t, endURL, `{"water_used": 3}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("second close: status=%d", resp.StatusCode)
	}
	var again model.IrrigationSession
	if err := json.NewDecoder(resp.Body).Decode(&again); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if again.WaterUsed != 3 {
		t.Fatalf("second close water_used=%v, want 3", again.WaterUsed)
	}
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func TestReadiness(t *testing.T) {
	srv, _ := newTestServer(t, map[string]Check{
		"db":   func(context.Context) error { return nil },
		"mqtt": func(context.Context) error { return errors.New("not connected") },
	})

	var body struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	if code := getJSON(t, srv.URL+"/readyz", &body); code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d", code)
	}
	if body.Ready || body.Checks["mqtt"] != "not connected" || body.Checks["db"] != "ok" {
		t.Fatalf("unexpected readiness %+v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	if code := getJSON(t, srv.URL+"/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz status=%d", code)
	}
	getJSON(t, srv.URL+"/data/", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `http_requests_total{route="/data/",status="200"}`) {
		t.Fatalf("metrics missing /data/ request counter:\n%s", b)
	}
}
