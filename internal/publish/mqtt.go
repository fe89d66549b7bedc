// Package publish pushes live meter values to an MQTT broker.
package publish

import (
	"fmt"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/smartmeter/internal/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends payloads to a single topic.
type Publisher struct {
	client client
	topic  string
	retain bool
}

// Connect dials the broker from cfg. An unreachable broker is not an
// error: the paho client keeps retrying in the background and publishes
// fail until it is connected.
func Connect(cfg *config.MQTTConfig) (*Publisher, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.WaitTimeout(connectTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt: %w", token.Error())
	}
	return &Publisher{client: c, topic: cfg.Topic, retain: cfg.Retain}, nil
}

func clientOptions(cfg *config.MQTTConfig) (*mqtt.ClientOptions, error) {
	if cfg == nil || strings.TrimSpace(cfg.Broker) == "" {
		return nil, fmt.Errorf("missing mqtt broker")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.PasswordFile != "" {
		data, err := os.ReadFile(cfg.PasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read mqtt password: %w", err)
		}
		opts.SetPassword(strings.TrimSpace(string(data)))
	}
	return opts, nil
}

// Publish sends payload with QoS 0 and waits for the client to hand it off.
func (p *Publisher) Publish(payload []byte) error {
	token := p.client.Publish(p.topic, 0, p.retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
