package mqttbus

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config describes the broker connection. Reconnection after the first
// successful connect is left to paho's auto-reconnect.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	ClientID  string
	KeepAlive time.Duration
}

const (
	defaultKeepAlive = 60 * time.Second
	connectRetries   = 5
	disconnectQuiesc = 250
)

func (c *Config) brokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func (c *Config) options() *mqtt.ClientOptions {
	keepAlive := c.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.brokerURL())
	if c.User != "" {
		opts.SetUsername(c.User)
		opts.SetPassword(c.Password)
	}
	opts.SetClientID(c.ClientID)
	opts.SetKeepAlive(keepAlive)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		log.Printf("mqtt: connected to %s", c.brokerURL())
	})
	return opts
}

// NewConn connects to the broker, retrying the first connect with
// exponential backoff. The client is disconnected when ctx is done.
func NewConn(ctx context.Context, cfg *Config) (mqtt.Client, error) {
	opts := cfg.options()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("mqtt: failed to connect to %s: %v", cfg.brokerURL(), token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, connectRetries-1), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	go func() {
		<-ctx.Done()
		Close(client)
	}()

	return client, nil
}

// Close disconnects the client if it is still connected.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(disconnectQuiesc)
		log.Println("mqtt: connection closed")
	}
}
