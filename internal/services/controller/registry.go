package controller

import (
	"sync"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
)

// Snapshot is an immutable copy of every actuator record.
type Snapshot map[entities.Actuator]entities.ActuatorRecord

func (s Snapshot) Record(a entities.Actuator) entities.ActuatorRecord {
	if r, ok := s[a]; ok {
		return r
	}
	return entities.DefaultActuatorRecord()
}

// Registry keeps mode and last-known state per actuator.
// Mode writes never touch state and state writes never touch mode.
type Registry struct {
	mu      sync.RWMutex
	records map[entities.Actuator]entities.ActuatorRecord

	// one lock per actuator so that at most one Apply runs for it at a time
	applyMu map[entities.Actuator]*sync.Mutex

	fanout Broadcaster
}

func NewRegistry(fanout Broadcaster) *Registry {
	if fanout == nil {
		fanout = nopBroadcaster{}
	}
	r := &Registry{
		records: make(map[entities.Actuator]entities.ActuatorRecord, len(entities.Actuators)),
		applyMu: make(map[entities.Actuator]*sync.Mutex, len(entities.Actuators)),
		fanout:  fanout,
	}
	for _, a := range entities.Actuators {
		r.records[a] = entities.DefaultActuatorRecord()
		r.applyMu[a] = &sync.Mutex{}
	}
	return r
}

func (r *Registry) Mode(a entities.Actuator) entities.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.records[a]; ok && rec.Mode != "" {
		return rec.Mode
	}
	return entities.ModeAutomatic
}

func (r *Registry) SetMode(a entities.Actuator, m entities.Mode) error {
	r.mu.Lock()
	rec, ok := r.records[a]
	if !ok {
		r.mu.Unlock()
		return entities.ErrUnknownActuator
	}
	rec.Mode = m
	r.records[a] = rec
	r.mu.Unlock()

	r.fanout.Broadcast(messages.EventActuatorModeChange, messages.ModeChangeEvent{Actuator: a, Mode: m})
	return nil
}

func (r *Registry) State(a entities.Actuator) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[a].State
}

func (r *Registry) SetState(a entities.Actuator, on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[a]
	if !ok {
		return
	}
	rec.State = on
	r.records[a] = rec
}

func (r *Registry) Record(a entities.Actuator) entities.ActuatorRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[a]
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(Snapshot, len(r.records))
	for a, rec := range r.records {
		out[a] = rec
	}
	return out
}

func (r *Registry) lockActuator(a entities.Actuator) func() {
	m, ok := r.applyMu[a]
	if !ok {
		return func() {}
	}
	m.Lock()
	return m.Unlock
}
