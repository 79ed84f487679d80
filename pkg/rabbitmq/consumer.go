package rabbitmq

import (
	"context"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler receives the subscription filter a message matched and the message itself.
type Handler func(queue string, message mqtt.Message) error

// IConsumer subscribes to one or more topics and dispatches to a Handler.
type IConsumer interface {
	ConsumeMessage(ctx context.Context)
	SetHandler(handler Handler)
}

// MultiConsumer subscribes a shared client to several topic filters at QoS 1.
type MultiConsumer struct {
	client mqtt.Client
	topics []string
	log    *zap.Logger

	mu      sync.RWMutex
	handler Handler
}

var _ IConsumer = (*MultiConsumer)(nil)

func NewMultiConsumer(client mqtt.Client, topics []string, handler Handler, log *zap.Logger) *MultiConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &MultiConsumer{client: client, topics: topics, handler: handler, log: log}
}

func (m *MultiConsumer) SetHandler(handler Handler) {
	m.mu.Lock()
	m.handler = handler
	m.mu.Unlock()
}

// Subscribe (re)subscribes every topic. It is safe to call from an OnConnect hook.
func (m *MultiConsumer) Subscribe(client mqtt.Client) {
	if client == nil {
		client = m.client
	}
	for _, topic := range m.topics {
		topic := topic
		token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			m.mu.RLock()
			h := m.handler
			m.mu.RUnlock()
			if h == nil {
				m.log.Warn("no handler set", zap.String("topic", topic))
				return
			}
			if err := h(topic, msg); err != nil {
				m.log.Warn("error handling message", zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		token.Wait()
		if err := token.Error(); err != nil {
			m.log.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		m.log.Info("subscribed", zap.String("topic", topic))
	}
}

// ConsumeMessage subscribes and blocks until ctx is cancelled, then unsubscribes.
func (m *MultiConsumer) ConsumeMessage(ctx context.Context) {
	m.Subscribe(m.client)
	<-ctx.Done()
	if m.client.IsConnectionOpen() {
		m.client.Unsubscribe(m.topics...).Wait()
	}
}
