package sensor_simulator

import (
	"context"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/mqttbus"
)

// SensorSimulator publishes synthetic telemetry and follows the pump
// commands coming back on the control topic.
type SensorSimulator struct {
	generator   *DataGenerator
	publisher   mqttbus.IPublisher
	consumer    mqttbus.IConsumer
	moistureKey string
}

func NewSensorSimulator(consumer mqttbus.IConsumer, publisher mqttbus.IPublisher,
	gen *DataGenerator, moistureKey string) *SensorSimulator {
	return &SensorSimulator{
		generator:   gen,
		publisher:   publisher,
		consumer:    consumer,
		moistureKey: moistureKey,
	}
}

// Start subscribes to pump commands and publishes one sample per interval
// until ctx is done.
func (s *SensorSimulator) Start(ctx context.Context, interval time.Duration) {
	s.consumer.SetHandler(s.handleMessage)
	go func() {
		if err := s.consumer.ConsumeMessage(ctx); err != nil {
			log.Printf("sensor: control subscription failed: %v", err)
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.PublishOnce(); err != nil {
				log.Printf("sensor: %v", err)
			}
		}
	}
}

// PublishOnce samples the generator and publishes the telemetry payload.
func (s *SensorSimulator) PublishOnce() error {
	t := s.generator.Next()
	payload, err := EncodeTelemetry(t, s.moistureKey)
	if err != nil {
		return fmt.Errorf("encode telemetry: %w", err)
	}
	log.Printf("sensor: pub T=%.2f H=%.2f SM=%.2f pump=%s",
		t.Temperature, t.Humidity, t.SoilMoisture, entities.PumpStateOf(s.generator.PumpOn()))
	if err := s.publisher.PublishMessage(payload); err != nil {
		return fmt.Errorf("publish error: %w", err)
	}
	return nil
}

func (s *SensorSimulator) handleMessage(_ string, msg mqtt.Message) error {
	cmd, err := messages.ParsePumpCommand(msg.Payload())
	if err != nil {
		return fmt.Errorf("invalid pump command: %w", err)
	}
	on := cmd.On()
	if on != s.generator.PumpOn() {
		log.Printf("sensor: pump → %s", entities.PumpStateOf(on))
	}
	s.generator.SetPump(on)
	return nil
}
