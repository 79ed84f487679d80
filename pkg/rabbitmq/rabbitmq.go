// Package rabbitmq wraps the MQTT connection to the RabbitMQ broker (MQTT plugin).
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	// ConnectRetries bounds the initial connection attempts (default 5).
	ConnectRetries int

	// Last will, published by the broker if the connection drops without Disconnect.
	WillTopic   string
	WillPayload []byte

	// OnConnect runs after every successful (re)connection.
	OnConnect func(mqtt.Client)
}

func (c *RabbitMQConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func NewRabbitMQConn(ctx context.Context, cfg *RabbitMQConfig, log *zap.Logger) (mqtt.Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	connAddr := cfg.BrokerURL()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(connAddr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	if cfg.WillTopic != "" {
		opts.SetBinaryWill(cfg.WillTopic, cfg.WillPayload, 1, false)
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("mqtt connected", zap.String("broker", connAddr))
		if cfg.OnConnect != nil {
			cfg.OnConnect(c)
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		log.Info("mqtt reconnecting", zap.String("broker", connAddr))
	})

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 5
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("mqtt connect failed", zap.String("broker", connAddr), zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	go func() {
		<-ctx.Done()
		CloseRabbitMQConn(client, log)
	}()

	return client, nil
}

func CloseRabbitMQConn(client mqtt.Client, log *zap.Logger) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		if log != nil {
			log.Info("mqtt connection closed")
		}
	}
}
