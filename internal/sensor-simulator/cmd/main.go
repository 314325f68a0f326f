package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	sensorSimulator "github.com/LeonardoBeccarini/smart_irrigation/internal/sensor-simulator"
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

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	// define flags
	clientID := flag.String("client-id", "sensor-sim-"+uuid.NewString()[:8], "MQTT client ID")
	interval := flag.Duration("interval", 10*time.Second, "publish interval")
	moistureKey := flag.String("moisture-key", messages.KeySoilMoisture, `soil moisture key: "soil_moisture" or "moisture"`)
	decay := flag.Float64("decay", 0.05, "soil moisture loss per minute while the pump is off")
	seed := flag.Int64("seed", time.Now().UnixNano(), "noise seed")
	flag.Parse()

	if *moistureKey != messages.KeySoilMoisture && *moistureKey != messages.KeySoilMoistureLegacy {
		log.Fatalf("unsupported -moisture-key %q", *moistureKey)
	}

	cfg := &mqttbus.Config{
		Host:     env("MQTT_HOST", "broker.hivemq.com"),
		Port:     envInt("MQTT_PORT", 1883),
		User:     os.Getenv("MQTT_USER"),
		Password: os.Getenv("MQTT_PASSWORD"),
		ClientID: *clientID,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := mqttbus.NewConn(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer mqttbus.Close(client)

	publisher := mqttbus.NewPublisher(client, env("TELEMETRY_TOPIC", "sensor/data"))
	consumer := mqttbus.NewConsumer(client, env("CONTROL_TOPIC", "pump/control"), nil)
	generator := sensorSimulator.NewDataGenerator(*decay, *seed)

	sim := sensorSimulator.NewSensorSimulator(consumer, publisher, generator, *moistureKey)
	log.Printf("sensor simulator running. pub=%s interval=%s key=%s", publisher.Topic(), *interval, *moistureKey)
	sim.Start(ctx, *interval)
}
