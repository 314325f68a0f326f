package mqttbus

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes payloads to a fixed topic.
type IPublisher interface {
	PublishMessage(payload []byte) error
}

// Publisher publishes at QoS 0, not retained.
type Publisher struct {
	client mqtt.Client
	topic  string
}

var _ IPublisher = (*Publisher)(nil)

func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) PublishMessage(payload []byte) error {
	token := p.client.Publish(p.topic, 0, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish message to %s: %w", p.topic, token.Error())
	}
	log.Printf("mqtt: message '%s' published to topic '%s'", payload, p.topic)
	return nil
}
