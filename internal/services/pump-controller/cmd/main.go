package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/decision"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/metrics"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/dashboard"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/services/irrigation"
	controller "github.com/LeonardoBeccarini/smart_irrigation/internal/services/pump-controller"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/store"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/mqttbus"
)

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Model: loaded once, the listener refuses to start without it.
	modelPath := env("MODEL_PATH", "pump_decision_model.pb")
	engine, err := decision.LoadEngine(modelPath)
	if err != nil {
		log.Fatalf("load model %s: %v (run the trainer first)", modelPath, err)
	}

	// Store
	dbPath := env("DB_PATH", "db.sqlite3")
	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open store %s: %v", dbPath, err)
	}
	defer st.Close()

	m := metrics.New()

	mirror, err := store.NewInfluxMirror(store.InfluxConfig{
		URL:    os.Getenv("INFLUX_URL"),
		Token:  os.Getenv("INFLUX_TOKEN"),
		Org:    os.Getenv("INFLUX_ORG"),
		Bucket: os.Getenv("INFLUX_BUCKET"),
	}, m.SetCircuitBreakerState)
	if err != nil {
		log.Fatalf("influx mirror: %v", err)
	}
	opts := controller.Options{Metrics: m}
	if mirror != nil {
		defer mirror.Close()
		opts.Mirror = mirror
	}

	// MQTT
	cfg := &mqttbus.Config{
		Host:      env("MQTT_HOST", "broker.hivemq.com"),
		Port:      envInt("MQTT_PORT", 1883),
		User:      os.Getenv("MQTT_USER"),
		Password:  os.Getenv("MQTT_PASSWORD"),
		ClientID:  env("MQTT_CLIENT_ID", fmt.Sprintf("pump-controller-%s", uuid.NewString())),
		KeepAlive: time.Duration(envInt("MQTT_KEEPALIVE_SEC", 60)) * time.Second,
	}
	mqClient, err := mqttbus.NewConn(ctx, cfg)
	if err != nil {
		log.Fatalf("MQTT connect failed: %v", err)
	}
	defer mqttbus.Close(mqClient)

	telemetryTopic := env("TELEMETRY_TOPIC", "sensor/data")
	controlTopic := env("CONTROL_TOPIC", "pump/control")

	consumer := mqttbus.NewConsumer(mqClient, telemetryTopic, nil)
	publisher := mqttbus.NewPublisher(mqClient, controlTopic)

	ctrl, err := controller.NewController(consumer, publisher, st, engine, opts)
	if err != nil {
		log.Fatalf("controller init: %v", err)
	}

	// HTTP
	httpPort := envInt("HTTP_PORT", 8000)
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", httpPort),
		Handler: dashboard.NewHandler(dashboard.Config{
			Readings: st,
			Tracker:  irrigation.NewTracker(st, nil),
			Metrics:  m,
			Ready: map[string]dashboard.Check{
				"db": st.Ping,
				"mqtt": func(context.Context) error {
					if !mqClient.IsConnectionOpen() {
						return errors.New("broker connection down")
					}
					return nil
				},
			},
			CORSOrigins: splitList(os.Getenv("CORS_ORIGINS")),
			AccessLog:   os.Stdout,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("dashboard listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.Printf("PumpController running. sub=%s pub=%s model=%s db=%s", telemetryTopic, controlTopic, modelPath, dbPath)
	if err := ctrl.Start(ctx); err != nil {
		log.Printf("listener stopped: %v", err)
	}

	// graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
}
