package controller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

type published struct {
	Topic   string
	Qos     byte
	Payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, qos byte, _ bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{Topic: topic, Qos: qos, Payload: payload})
	return nil
}

func (f *fakePublisher) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type event struct {
	Name    string
	Payload any
}

type fakeFanout struct {
	mu     sync.Mutex
	events []event
}

func (f *fakeFanout) Broadcast(name string, payload any) {
	f.mu.Lock()
	f.events = append(f.events, event{name, payload})
	f.mu.Unlock()
}

func (f *fakeFanout) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Name)
	}
	return out
}

func (f *fakeFanout) named(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, e := range f.events {
		if e.Name == name {
			out = append(out, e.Payload)
		}
	}
	return out
}

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu         sync.Mutex
	readings   []entities.SensorSample
	alerts     []entities.Alert
	logs       []entities.ActuatorActionLog
	thresholds []entities.ThresholdSet
	fail       bool
}

func (f *fakeStore) SaveReading(_ context.Context, s entities.SensorSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	f.readings = append(f.readings, s)
	return nil
}

func (f *fakeStore) SaveAlert(_ context.Context, a *entities.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	f.alerts = append(f.alerts, *a)
	return nil
}

func (f *fakeStore) SaveActionLog(_ context.Context, l *entities.ActuatorActionLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeStore) SaveThresholds(_ context.Context, t entities.ThresholdSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errStoreDown
	}
	f.thresholds = append(f.thresholds, t)
	return nil
}

type fakeMessage struct {
	topic   string
	payload []byte
	dup     bool
}

func (m fakeMessage) Duplicate() bool   { return m.dup }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
