package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/dedup"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/rabbitmq"
)

const (
	ReasonManualDashboard = "Manual control via dashboard"
	ReasonAutoActivated   = "Automatic control activated"
)

type Deps struct {
	Publisher Publisher
	Fanout    Broadcaster
	Readings  ReadingStore
	Alerts    AlertStore
	Logs      ActionLogStore
	Settings  SettingsStore
	Metrics   *Metrics
	Logger    *zap.Logger
}

type Options struct {
	DeviceID   string
	Topics     Topics
	Thresholds entities.ThresholdSet
	// DedupTTL bounds how long redelivered payload hashes are remembered.
	DedupTTL time.Duration
	// DeviceTTL is the silence after which a device is announced offline.
	DeviceTTL time.Duration
}

// Pipeline is the ingestion loop and the control surface of the engine.
// Inbound messages are processed one at a time.
type Pipeline struct {
	thresholds *ThresholdStore
	registry   *Registry
	actuators  *ActuatorController
	devices    *DeviceMonitor

	pub      Publisher
	fanout   Broadcaster
	readings ReadingStore
	alerts   AlertStore
	settings SettingsStore
	metrics  *Metrics
	log      *zap.Logger

	topics  Topics
	deduper *dedup.Deduper

	processMu sync.Mutex
	now       func() time.Time
	newID     func() string
}

func NewPipeline(opts Options, deps Deps) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Fanout == nil {
		deps.Fanout = nopBroadcaster{}
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = DefaultTopics()
	}
	if opts.Thresholds == (entities.ThresholdSet{}) {
		opts.Thresholds = entities.DefaultThresholds()
	}
	reg := NewRegistry(deps.Fanout)
	return &Pipeline{
		thresholds: NewThresholdStore(opts.Thresholds),
		registry:   reg,
		actuators:  NewActuatorController(reg, deps.Publisher, deps.Logs, deps.Fanout, opts.Topics, opts.DeviceID, deps.Metrics, deps.Logger),
		devices:    NewDeviceMonitor(opts.DeviceTTL, deps.Fanout, deps.Logger),
		pub:        deps.Publisher,
		fanout:     deps.Fanout,
		readings:   deps.Readings,
		alerts:     deps.Alerts,
		settings:   deps.Settings,
		metrics:    deps.Metrics,
		log:        deps.Logger,
		topics:     opts.Topics,
		deduper:    dedup.New(opts.DedupTTL, 20000),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// HandleMessage is a rabbitmq.Handler. queue is the subscription the message matched.
// Errors are logged here and never returned, the MQTT loop has no caller to report to.
func (p *Pipeline) HandleMessage(queue string, msg mqtt.Message) error {
	// QoS1 redeliveries carry the DUP flag; identical payloads without it are fresh readings
	seen := !p.deduper.ShouldProcess(queue + "|" + dedup.PayloadKey(msg.Payload()))
	if msg.Duplicate() && seen {
		p.log.Debug("dropping redelivered message", zap.String("topic", msg.Topic()))
		return nil
	}
	p.Dispatch(context.Background(), queue, msg.Payload())
	return nil
}

// Dispatch routes a raw payload by the topic it arrived on.
func (p *Pipeline) Dispatch(ctx context.Context, topic string, payload []byte) {
	p.processMu.Lock()
	defer p.processMu.Unlock()

	var err error
	switch topic {
	case p.topics.SensorData:
		err = p.handleSensorData(ctx, payload)
	case p.topics.ActuatorStatus:
		err = p.handleActuatorStatus(payload)
	case p.topics.DeviceStatus:
		err = p.handleDeviceStatus(payload)
	case p.topics.Config:
		err = p.handleConfigUpdate(payload)
	default:
		p.log.Warn("message on unexpected topic", zap.String("topic", topic))
		return
	}
	if err != nil {
		p.log.Warn("message discarded", zap.String("topic", topic), zap.Error(err))
	}
}

func (p *Pipeline) handleSensorData(ctx context.Context, payload []byte) error {
	sample, err := messages.DecodeSensorData(payload, p.now())
	if err != nil {
		p.metrics.sample("discarded")
		return err
	}
	p.metrics.sample("processed")
	p.processSample(ctx, sample)
	return nil
}

// ProcessSample runs one already-decoded sample through the engine.
func (p *Pipeline) ProcessSample(ctx context.Context, s entities.SensorSample) {
	p.processMu.Lock()
	defer p.processMu.Unlock()
	p.processSample(ctx, s)
}

func (p *Pipeline) processSample(ctx context.Context, s entities.SensorSample) {
	if s.DeviceID == "" {
		s.DeviceID = entities.DefaultDeviceID
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = p.now().UTC()
	}
	p.devices.Seen(s.DeviceID)

	if p.readings != nil {
		if err := p.readings.SaveReading(ctx, s); err != nil {
			p.metrics.storeFailure("reading")
			p.log.Error("save reading failed", zap.Error(err))
		}
	}

	ev := Evaluate(s, p.thresholds.Get(), p.registry.Snapshot())

	for _, in := range ev.Intents {
		if _, err := p.actuators.Apply(ctx, in.Actuator, in.On, entities.TriggerAutomatic, in.Reason, nil); err != nil {
			p.log.Warn("automatic actuation not logged", zap.String("actuator", string(in.Actuator)), zap.Error(err))
		}
	}

	for i := range ev.Alerts {
		p.raiseAlert(ctx, &ev.Alerts[i])
	}

	p.fanout.Broadcast(messages.EventSensorData, s)
}

func (p *Pipeline) raiseAlert(ctx context.Context, a *entities.Alert) {
	a.ID = p.newID()
	p.metrics.alert(string(a.Severity), string(a.SensorType))
	p.log.Warn("alert raised", zap.String("severity", string(a.Severity)), zap.String("message", a.Message))

	if p.alerts != nil {
		if err := p.alerts.SaveAlert(ctx, a); err != nil {
			p.metrics.storeFailure("alert")
			p.log.Error("save alert failed", zap.Error(err))
		}
	}
	p.fanout.Broadcast(messages.EventAlert, *a)
	p.publishJSON(p.topics.Alerts, a)
}

func (p *Pipeline) handleActuatorStatus(payload []byte) error {
	a, on, err := messages.DecodeActuatorStatus(payload)
	if err != nil {
		return err
	}
	p.registry.SetState(a, on)
	p.fanout.Broadcast(messages.EventActuatorStatus, messages.ActuatorStatusEvent{
		a.StatusKey(): p.registry.Record(a),
	})
	return nil
}

func (p *Pipeline) handleDeviceStatus(payload []byte) error {
	var st messages.DeviceStatusMessage
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("%w: %v", messages.ErrMalformedPayload, err)
	}
	if id, ok := st["deviceId"].(string); ok {
		p.devices.Seen(id)
	}
	p.fanout.Broadcast(messages.EventDeviceStatus, st)
	return nil
}

func (p *Pipeline) handleConfigUpdate(payload []byte) error {
	partial, err := messages.DecodeConfigUpdate(payload)
	if err != nil {
		return err
	}
	t, err := p.thresholds.Update(partial)
	if err != nil {
		return err
	}
	p.log.Info("thresholds updated from broker", zap.Any("thresholds", t))
	return nil
}

func (p *Pipeline) publishJSON(topic string, v any) {
	if p.pub == nil {
		return
	}
	if err := rabbitmq.PublishJSON(p.pub, topic, v); err != nil {
		p.metrics.publishFailed()
		if errors.Is(err, rabbitmq.ErrNotConnected) {
			p.log.Warn("mqtt not connected, message dropped", zap.String("topic", topic))
			return
		}
		p.log.Error("publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// ---- control surface ----

// ControlActuator commands an actuator on behalf of a caller.
func (p *Pipeline) ControlActuator(ctx context.Context, a entities.Actuator, on bool, trigger entities.Trigger, reason string, userID *string) (entities.ActuatorActionLog, error) {
	return p.actuators.Apply(ctx, a, on, trigger, reason, userID)
}

// ManualControl sets the mode and then applies the requested state with the mode as trigger.
func (p *Pipeline) ManualControl(ctx context.Context, a entities.Actuator, on bool, mode entities.Mode, userID *string) (entities.ActuatorActionLog, error) {
	a, err := entities.ParseActuator(string(a))
	if err != nil {
		return entities.ActuatorActionLog{}, err
	}
	if mode, err = entities.ParseMode(string(mode)); err != nil {
		return entities.ActuatorActionLog{}, err
	}
	if err := p.SetActuatorMode(a, mode); err != nil {
		return entities.ActuatorActionLog{}, err
	}
	reason := ReasonManualDashboard
	if mode == entities.ModeAutomatic {
		reason = ReasonAutoActivated
	}
	return p.actuators.Apply(ctx, a, on, mode, reason, userID)
}

// SetActuatorMode normalizes both names before storing, so "auto" is kept as automatic.
func (p *Pipeline) SetActuatorMode(a entities.Actuator, m entities.Mode) error {
	a, err := entities.ParseActuator(string(a))
	if err != nil {
		return err
	}
	if m, err = entities.ParseMode(string(m)); err != nil {
		return err
	}
	p.log.Info("actuator mode changed", zap.String("actuator", string(a)), zap.String("mode", string(m)))
	return p.registry.SetMode(a, m)
}

func (p *Pipeline) ActuatorMode(a entities.Actuator) entities.Mode {
	return p.registry.Mode(a)
}

// ActuatorStatus returns every actuator keyed by its viewer-facing name.
func (p *Pipeline) ActuatorStatus() messages.ActuatorStatusEvent {
	snap := p.registry.Snapshot()
	out := make(messages.ActuatorStatusEvent, len(snap))
	for a, rec := range snap {
		out[a.StatusKey()] = rec
	}
	return out
}

// Devices exposes the liveness monitor; the caller runs it.
func (p *Pipeline) Devices() *DeviceMonitor {
	return p.devices
}

func (p *Pipeline) Thresholds() entities.ThresholdSet {
	return p.thresholds.Get()
}

// UpdateThresholds merges, persists (best effort) and returns the new set.
func (p *Pipeline) UpdateThresholds(ctx context.Context, partial entities.PartialThresholdSet) (entities.ThresholdSet, error) {
	t, err := p.thresholds.Update(partial)
	if err != nil {
		return t, err
	}
	if p.settings != nil {
		if err := p.settings.SaveThresholds(ctx, t); err != nil {
			p.metrics.storeFailure("settings")
			p.log.Error("save thresholds failed", zap.Error(err))
		}
	}
	return t, nil
}

// RestoreThresholds replaces the live set without persisting it.
func (p *Pipeline) RestoreThresholds(t entities.ThresholdSet) {
	p.thresholds.Replace(t)
}

// AnnounceThresholds republishes the current set on the config topic.
func (p *Pipeline) AnnounceThresholds() {
	t := p.thresholds.Get()
	partial := t.Partial()
	p.publishJSON(p.topics.Config, messages.ConfigUpdateMessage{Thresholds: &partial})
}

// AnnouncePresence publishes the backend status; call it from the MQTT OnConnect hook.
func (p *Pipeline) AnnouncePresence(status string) {
	p.publishJSON(p.topics.BackendStatus, messages.BackendStatus{Status: status, Timestamp: p.now().UTC()})
}
