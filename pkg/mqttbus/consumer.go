package mqttbus

import (
	"context"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one delivered message. It is called once per message,
// synchronously, on the client's delivery goroutine. Delivery is best-effort
// (QoS 0) and no ordering is assumed beyond what the broker provides. A
// returned error is logged and never causes redelivery.
type Handler func(topic string, msg mqtt.Message) error

// IConsumer subscribes a Handler to a topic.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler Handler)
}

// Consumer holds the client and topic for one subscription.
type Consumer struct {
	client  mqtt.Client
	topic   string
	qos     byte
	handler Handler
}

var _ IConsumer = (*Consumer)(nil)

func NewConsumer(client mqtt.Client, topic string, handler Handler) *Consumer {
	return &Consumer{
		client:  client,
		topic:   topic,
		handler: handler,
	}
}

func (c *Consumer) SetHandler(handler Handler) {
	c.handler = handler
}

// Dispatch runs the handler for a single message and logs its error.
func (c *Consumer) Dispatch(msg mqtt.Message) {
	if c.handler == nil {
		log.Printf("mqtt: no handler set for topic %s", c.topic)
		return
	}
	if err := c.handler(c.topic, msg); err != nil {
		log.Printf("mqtt: error handling message on %s: %v", c.topic, err)
	}
}

// ConsumeMessage subscribes to the topic and blocks until ctx is done.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, msg mqtt.Message) {
		c.Dispatch(msg)
	})
	if token.Wait() && token.Error() != nil {
		log.Printf("mqtt: error subscribing to topic %s: %v", c.topic, token.Error())
		return token.Error()
	}
	log.Printf("mqtt: subscribed to topic %s", c.topic)

	<-ctx.Done()

	if c.client.IsConnected() {
		c.client.Unsubscribe(c.topic).Wait()
	}
	return nil
}
