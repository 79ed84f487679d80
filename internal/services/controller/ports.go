package controller

import (
	"context"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

// Publisher sends raw payloads on the MQTT transport.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Broadcaster fans named events out to every connected viewer.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

type ReadingStore interface {
	SaveReading(ctx context.Context, s entities.SensorSample) error
}

type AlertStore interface {
	SaveAlert(ctx context.Context, a *entities.Alert) error
}

type ActionLogStore interface {
	SaveActionLog(ctx context.Context, l *entities.ActuatorActionLog) error
}

type SettingsStore interface {
	SaveThresholds(ctx context.Context, t entities.ThresholdSet) error
}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, any) {}
