package store

import (
	"context"
	"fmt"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
)

// Configurazione Influx
type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
	Timeout     time.Duration
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// BreakerStateFunc receives breaker state changes (0 closed, 1 half-open, 2 open).
type BreakerStateFunc func(target string, state float64)

// InfluxMirror copies persisted readings to InfluxDB for dashboards. It is
// best effort: the SQLite store stays the source of truth, and a breaker
// stops the listener from waiting on an unreachable Influx.
type InfluxMirror struct {
	writer      pointWriter
	client      influxdb2.Client
	breaker     *gobreaker.CircuitBreaker
	measurement string
	timeout     time.Duration
}

const mirrorTarget = "influx"

// NewInfluxMirror returns nil when no URL is configured; a nil mirror
// ignores writes.
func NewInfluxMirror(cfg InfluxConfig, onState BreakerStateFunc) (*InfluxMirror, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	m := newInfluxMirror(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg, onState)
	m.client = client
	return m, nil
}

func newInfluxMirror(w pointWriter, cfg InfluxConfig, onState BreakerStateFunc) *InfluxMirror {
	measurement := cfg.Measurement
	if measurement == "" {
		measurement = "sensor_data"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        mirrorTarget,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("influx-mirror: breaker %s %s -> %s", name, from, to)
			if onState != nil {
				onState(name, breakerGauge(to))
			}
		},
	}
	return &InfluxMirror{
		writer:      w,
		breaker:     gobreaker.NewCircuitBreaker(settings),
		measurement: measurement,
		timeout:     timeout,
	}
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func ReadingToPoint(measurement string, r model.Reading) *write.Point {
	return influxdb2.NewPoint(measurement,
		map[string]string{"source": "pump-controller"},
		map[string]interface{}{
			"reading_id":    int64(r.ID),
			"temperature":   r.Temperature,
			"humidity":      r.Humidity,
			"soil_moisture": r.SoilMoisture,
		},
		r.Timestamp,
	)
}

// Mirror writes one reading. It returns gobreaker.ErrOpenState without
// touching Influx while the breaker is open.
func (m *InfluxMirror) Mirror(ctx context.Context, r model.Reading) error {
	if m == nil {
		return nil
	}
	_, err := m.breaker.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		return nil, m.writer.WritePoint(wctx, ReadingToPoint(m.measurement, r))
	})
	return err
}

func (m *InfluxMirror) Close() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Close()
}
