package pump_controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/smart_irrigation/internal/metrics"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_irrigation/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_irrigation/pkg/mqttbus"
)

// ReadingWriter persists one reading per valid telemetry message.
type ReadingWriter interface {
	SaveReading(ctx context.Context, t model.Telemetry) (model.Reading, error)
}

// Decider maps (temperature, humidity, soil_moisture) to a pump command.
type Decider interface {
	Predict(features []float64) (bool, error)
}

// ReadingMirror receives each persisted reading after the command is out.
type ReadingMirror interface {
	Mirror(ctx context.Context, r model.Reading) error
}

type Options struct {
	Mirror       ReadingMirror
	Metrics      *metrics.Metrics
	Logger       *log.Logger
	StoreTimeout time.Duration
}

// Controller is the ingestion listener: telemetry in, pump command out.
type Controller struct {
	consumer  mqttbus.IConsumer
	publisher mqttbus.IPublisher
	store     ReadingWriter
	engine    Decider
	mirror    ReadingMirror
	metrics   *metrics.Metrics
	logger    *log.Logger
	timeout   time.Duration
}

func NewController(
	c mqttbus.IConsumer,
	p mqttbus.IPublisher,
	store ReadingWriter,
	engine Decider,
	opts Options,
) (*Controller, error) {
	if c == nil || p == nil {
		return nil, errors.New("consumer and publisher are required")
	}
	if store == nil {
		return nil, errors.New("reading store is nil")
	}
	if engine == nil {
		return nil, errors.New("decision engine is nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	ctrl := &Controller{
		consumer:  c,
		publisher: p,
		store:     store,
		engine:    engine,
		mirror:    opts.Mirror,
		metrics:   opts.Metrics,
		logger:    logger,
		timeout:   timeout,
	}
	c.SetHandler(ctrl.Handle)
	return ctrl, nil
}

// Start blocks consuming telemetry until ctx is done.
func (c *Controller) Start(ctx context.Context) error {
	return c.consumer.ConsumeMessage(ctx)
}

// Handle processes one telemetry message: parse, persist, decide, publish.
// Invalid payloads are logged and dropped; nothing is retried.
func (c *Controller) Handle(topic string, msg mqtt.Message) error {
	c.metrics.Message(metrics.OutcomeReceived)
	c.logger.Printf("listener: raw message received on %s: %s", topic, msg.Payload())

	t, err := messages.ParseTelemetry(msg.Payload())
	if err != nil {
		c.metrics.Message(metrics.OutcomeDiscarded)
		c.logger.Printf("listener: discarding message: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	reading, err := c.store.SaveReading(ctx, t)
	if err != nil {
		c.metrics.Message(metrics.OutcomeStoreFailed)
		return fmt.Errorf("listener: %w", err)
	}
	c.metrics.Message(metrics.OutcomePersisted)
	c.logger.Printf("listener: reading %d saved: T=%.2f H=%.2f SM=%.2f",
		reading.ID, t.Temperature, t.Humidity, t.SoilMoisture)

	decideErr := c.decideAndPublish(t)

	// the reading is stored, so it is mirrored whatever the decision outcome
	if c.mirror != nil {
		if err := c.mirror.Mirror(ctx, reading); err != nil {
			c.logger.Printf("listener: influx mirror skipped reading %d: %v", reading.ID, err)
		}
	}
	return decideErr
}

func (c *Controller) decideAndPublish(t model.Telemetry) error {
	start := time.Now()
	on, err := c.engine.Predict(t.Features())
	c.metrics.Inference(time.Since(start))
	if err != nil {
		c.metrics.Message(metrics.OutcomeInferenceFailed)
		return fmt.Errorf("listener: predict and control pump: %w", err)
	}

	cmd := messages.NewPumpCommand(on)
	if err := c.publisher.PublishMessage(cmd.Encode()); err != nil {
		c.metrics.Message(metrics.OutcomePublishFailed)
		return fmt.Errorf("listener: %w", err)
	}
	c.metrics.Message(metrics.OutcomePublished)
	c.metrics.PumpCommand(on)
	c.logger.Printf("listener: pump status set to %s", entities.PumpStateOf(on))
	return nil
}
