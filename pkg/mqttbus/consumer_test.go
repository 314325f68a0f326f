package mqttbus

import (
	"errors"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestDispatchCallsHandlerOncePerMessage(t *testing.T) {
	c := NewConsumer(nil, "sensor/data", nil)
	var calls []string
	c.SetHandler(func(topic string, msg mqtt.Message) error {
		calls = append(calls, topic+"|"+string(msg.Payload()))
		return nil
	})

	c.Dispatch(&fakeMessage{topic: "sensor/data", payload: []byte("a")})
	c.Dispatch(&fakeMessage{topic: "sensor/data", payload: []byte("b")})

	if len(calls) != 2 {
		t.Fatalf("expected 2 handler calls, got %d", len(calls))
	}
	if calls[0] != "sensor/data|a" || calls[1] != "sensor/data|b" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestDispatchSwallowsHandlerError(t *testing.T) {
	c := NewConsumer(nil, "sensor/data", func(string, mqtt.Message) error {
		return errors.New("boom")
	})
	// must not panic
	c.Dispatch(&fakeMessage{topic: "sensor/data"})
}

func TestDispatchWithoutHandler(t *testing.T) {
	c := NewConsumer(nil, "sensor/data", nil)
	c.Dispatch(&fakeMessage{topic: "sensor/data"})
}

func TestConfigOptionsDefaults(t *testing.T) {
	cfg := &Config{Host: "broker.hivemq.com", Port: 1883, ClientID: "test"}
	opts := cfg.options()
	if got := cfg.brokerURL(); got != "tcp://broker.hivemq.com:1883" {
		t.Fatalf("broker url = %q", got)
	}
	if opts.KeepAlive != int64(defaultKeepAlive.Seconds()) {
		t.Fatalf("keepalive = %d, want %d", opts.KeepAlive, int64(defaultKeepAlive.Seconds()))
	}
	if !opts.AutoReconnect {
		t.Fatalf("expected auto reconnect enabled")
	}
}
