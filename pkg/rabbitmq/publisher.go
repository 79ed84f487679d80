package rabbitmq

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when a publish is attempted while the broker link is down.
// Such messages are dropped, never queued.
var ErrNotConnected = errors.New("mqtt: not connected")

// IPublisher publishes raw payloads on arbitrary topics.
type IPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

type Publisher struct {
	client  mqtt.Client
	timeout time.Duration
	log     *zap.Logger
}

var _ IPublisher = (*Publisher)(nil)

func NewPublisher(client mqtt.Client, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{client: client, timeout: 5 * time.Second, log: log}
}

func (p *Publisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if p.client == nil || !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", topic, p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.log.Debug("mqtt published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// PublishJSON marshals v and publishes it on pub at QoS 1.
func PublishJSON(pub IPublisher, topic string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	return pub.Publish(topic, 1, false, b)
}

func (p *Publisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnectionOpen()
}
