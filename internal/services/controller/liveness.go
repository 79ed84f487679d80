package controller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
)

// DeviceMonitor treats every inbound message from a device as a heartbeat and
// announces a device-status event when a device goes silent for longer than ttl
// or comes back.
type DeviceMonitor struct {
	ttl    time.Duration
	fanout Broadcaster
	log    *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time
	offline  map[string]bool
}

func NewDeviceMonitor(ttl time.Duration, fanout Broadcaster, log *zap.Logger) *DeviceMonitor {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if fanout == nil {
		fanout = nopBroadcaster{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &DeviceMonitor{
		ttl:      ttl,
		fanout:   fanout,
		log:      log,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
		offline:  make(map[string]bool),
	}
}

// Seen records a heartbeat. A device previously reported offline is announced online again.
func (m *DeviceMonitor) Seen(deviceID string) {
	if deviceID == "" {
		return
	}
	now := m.now()
	m.mu.Lock()
	m.lastSeen[deviceID] = now
	back := m.offline[deviceID]
	delete(m.offline, deviceID)
	m.mu.Unlock()

	if back {
		m.log.Info("device back online", zap.String("device_id", deviceID))
		m.fanout.Broadcast(messages.EventDeviceStatus, m.status(deviceID, "online", now))
	}
}

func (m *DeviceMonitor) IsLive(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.lastSeen[deviceID]
	return ok && m.now().Sub(t) < m.ttl
}

// Check announces every device whose last heartbeat is older than ttl. Each
// silence is announced once.
func (m *DeviceMonitor) Check() {
	now := m.now()
	type gone struct {
		id   string
		last time.Time
	}
	var stale []gone

	m.mu.Lock()
	for id, t := range m.lastSeen {
		if !m.offline[id] && now.Sub(t) >= m.ttl {
			m.offline[id] = true
			stale = append(stale, gone{id, t})
		}
	}
	m.mu.Unlock()

	for _, g := range stale {
		m.log.Warn("device silent", zap.String("device_id", g.id), zap.Time("last_seen", g.last))
		m.fanout.Broadcast(messages.EventDeviceStatus, m.status(g.id, "offline", g.last))
	}
}

// Run calls Check every ttl/2 until ctx is done.
func (m *DeviceMonitor) Run(ctx context.Context) {
	t := time.NewTicker(m.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Check()
		}
	}
}

func (m *DeviceMonitor) status(id, status string, lastSeen time.Time) messages.DeviceStatusMessage {
	return messages.DeviceStatusMessage{
		"deviceId": id,
		"status":   status,
		"lastSeen": lastSeen.UTC(),
	}
}
