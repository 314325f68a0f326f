package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/metrics"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/irrigation"
)

// RecentLimit is how many readings the data views show.
const RecentLimit = 10

const chartTimeLayout = "2006-01-02 15:04:05"

type ReadingLister interface {
	RecentReadings(ctx context.Context, limit int) ([]model.Reading, error)
}

type SessionTracker interface {
	StartIfWarranted(ctx context.Context) (*model.IrrigationSession, error)
	List(ctx context.Context) ([]model.IrrigationSession, error)
	Close(ctx context.Context, id uint, waterUsed float64) (model.IrrigationSession, error)
}

// Check reports whether a dependency is usable; used by /readyz.
type Check func(ctx context.Context) error

type Config struct {
	Readings    ReadingLister
	Tracker     SessionTracker
	Metrics     *metrics.Metrics
	Ready       map[string]Check
	CORSOrigins []string
	AccessLog   io.Writer
	Logger      *log.Logger
	Timeout     time.Duration
}

type api struct {
	cfg    Config
	logger *log.Logger
}

// NewHandler builds the dashboard HTTP surface.
func NewHandler(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	a := &api{cfg: cfg, logger: cfg.Logger}

	r := mux.NewRouter().StrictSlash(true)
	route := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, cfg.Metrics.WrapHandler(path, h)).Methods(methods...)
	}
	route("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) }, http.MethodGet)
	route("/readyz", a.ready, http.MethodGet)
	route("/data/", a.recentReadings, http.MethodGet)
	route("/data/visualization/", a.visualization, http.MethodGet)
	route("/irrigation/", a.irrigation, http.MethodGet)
	route("/irrigation/{id:[0-9]+}/end", a.endIrrigation, http.MethodPost)
	r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	var h http.Handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(r)

	if cfg.AccessLog != nil {
		h = handlers.LoggingHandler(cfg.AccessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (a *api) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), a.cfg.Timeout)
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.ctx(r)
	defer cancel()

	type resp struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	out := resp{Ready: true, Checks: map[string]string{}}
	for name, check := range a.cfg.Ready {
		if err := check(ctx); err != nil {
			out.Ready = false
			out.Checks[name] = err.Error()
			continue
		}
		out.Checks[name] = "ok"
	}
	status := http.StatusOK
	if !out.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

// GET /data/ -> the 10 most recent readings, newest first.
func (a *api) recentReadings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.ctx(r)
	defer cancel()

	data, err := a.cfg.Readings.RecentReadings(ctx, RecentLimit)
	if err != nil {
		a.logger.Printf("dashboard: recent readings: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load sensor data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// ChartData is the recent readings reshaped into parallel series.
type ChartData struct {
	Timestamps    []string  `json:"timestamps"`
	Temperatures  []float64 `json:"temperatures"`
	Humidities    []float64 `json:"humidities"`
	SoilMoistures []float64 `json:"soil_moistures"`
}

func NewChartData(readings []model.Reading) ChartData {
	c := ChartData{
		Timestamps:    make([]string, 0, len(readings)),
		Temperatures:  make([]float64, 0, len(readings)),
		Humidities:    make([]float64, 0, len(readings)),
		SoilMoistures: make([]float64, 0, len(readings)),
	}
	for _, r := range readings {
		c.Timestamps = append(c.Timestamps, r.Timestamp.Format(chartTimeLayout))
		c.Temperatures = append(c.Temperatures, r.Temperature)
		c.Humidities = append(c.Humidities, r.Humidity)
		c.SoilMoistures = append(c.SoilMoistures, r.SoilMoisture)
	}
	return c
}

// GET /data/visualization/
func (a *api) visualization(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.ctx(r)
	defer cancel()

	data, err := a.cfg.Readings.RecentReadings(ctx, RecentLimit)
	if err != nil {
		a.logger.Printf("dashboard: visualization: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load sensor data")
		return
	}
	if len(data) == 0 {
		a.logger.Println("dashboard: no sensor data yet")
	}
	writeJSON(w, http.StatusOK, NewChartData(data))
}

// GET /irrigation/ starts a session when warranted, then lists them all.
func (a *api) irrigation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := a.ctx(r)
	defer cancel()

	if _, err := a.cfg.Tracker.StartIfWarranted(ctx); err != nil {
		a.logger.Printf("dashboard: start irrigation: %v", err)
	}
	sessions, err := a.cfg.Tracker.List(ctx)
	if err != nil {
		a.logger.Printf("dashboard: list irrigation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load irrigation data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"irrigation_data": sessions})
}

type endRequest struct {
	WaterUsed *float64 `json:"water_used"`
}

// POST /irrigation/{id}/end {"water_used": 12.5}; repeat calls overwrite.
func (a *api) endIrrigation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid irrigation id")
		return
	}
	var req endRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || req.WaterUsed == nil {
		writeError(w, http.StatusBadRequest, "water_used is required")
		return
	}

	ctx, cancel := a.ctx(r)
	defer cancel()

	sess, err := a.cfg.Tracker.Close(ctx, uint(id), *req.WaterUsed)
	switch {
	case errors.Is(err, irrigation.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		a.logger.Printf("dashboard: end irrigation %d: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to end irrigation")
	default:
		writeJSON(w, http.StatusOK, sess)
	}
}
