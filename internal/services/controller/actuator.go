package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/rabbitmq"
)

// ActuatorController applies actuator transitions: registry write, MQTT command,
// action log, broadcast. Nothing is rolled back when a later step fails.
type ActuatorController struct {
	registry  *Registry
	publisher Publisher
	logs      ActionLogStore
	fanout    Broadcaster
	topics    Topics
	deviceID  string
	metrics   *Metrics
	log       *zap.Logger

	now   func() time.Time
	newID func() string
}

func NewActuatorController(reg *Registry, pub Publisher, logs ActionLogStore, fanout Broadcaster, topics Topics, deviceID string, metrics *Metrics, log *zap.Logger) *ActuatorController {
	if fanout == nil {
		fanout = nopBroadcaster{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if deviceID == "" {
		deviceID = entities.DefaultDeviceID
	}
	return &ActuatorController{
		registry:  reg,
		publisher: pub,
		logs:      logs,
		fanout:    fanout,
		topics:    topics,
		deviceID:  deviceID,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Apply drives the actuator to the desired state. A call that repeats the current state
// still publishes the command and writes a log entry. Past name validation the error only reports a
// failed log write; the actuator has been commanded regardless.
func (c *ActuatorController) Apply(ctx context.Context, a entities.Actuator, on bool, trigger entities.Trigger, reason string, userID *string) (entities.ActuatorActionLog, error) {
	a, err := entities.ParseActuator(string(a))
	if err != nil {
		return entities.ActuatorActionLog{}, err
	}
	if trigger, err = entities.ParseMode(string(trigger)); err != nil {
		return entities.ActuatorActionLog{}, err
	}
	unlock := c.registry.lockActuator(a)
	defer unlock()

	now := c.now().UTC()
	c.registry.SetState(a, on)

	cmd := messages.ActuatorCommand{Device: a, Status: on, Mode: c.registry.Mode(a), Timestamp: now}
	c.publishCommand(a, cmd)

	if reason == "" {
		reason = string(trigger) + " control"
	}
	entry := entities.ActuatorActionLog{
		ID:           c.newID(),
		DeviceID:     c.deviceID,
		ActuatorType: a.LogType(),
		Action:       entities.ActionFor(on),
		Trigger:      trigger,
		UserID:       userID,
		Reason:       &reason,
		Timestamp:    now,
	}
	c.metrics.transition(string(a), entry.Action, string(trigger), on)
	c.log.Info("actuator command",
		zap.String("actuator", string(a)),
		zap.String("action", entry.Action),
		zap.String("trigger", string(trigger)),
		zap.String("reason", reason))

	var saveErr error
	if c.logs != nil {
		if err := c.logs.SaveActionLog(ctx, &entry); err != nil {
			c.metrics.storeFailure("action_log")
			c.log.Error("save action log failed", zap.String("actuator", string(a)), zap.Error(err))
			saveErr = fmt.Errorf("save action log: %w", err)
		}
	}

	c.fanout.Broadcast(messages.EventActionLog, entry.Formatted())
	return entry, saveErr
}

func (c *ActuatorController) publishCommand(a entities.Actuator, cmd messages.ActuatorCommand) {
	if c.publisher == nil {
		return
	}
	topic := c.topics.CommandTopic(a)
	if err := rabbitmq.PublishJSON(c.publisher, topic, cmd); err != nil {
		c.metrics.publishFailed()
		if errors.Is(err, rabbitmq.ErrNotConnected) {
			c.log.Warn("mqtt not connected, actuator command dropped", zap.String("topic", topic))
			return
		}
		c.log.Error("publish actuator command failed", zap.String("topic", topic), zap.Error(err))
	}
}
