// Package sensor_simulator stands in for the greenhouse microcontroller: it publishes
// readings, obeys actuator commands and reports actuator state back.
package sensor_simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/controller"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/dedup"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/pkg/rabbitmq"
)

type Simulator struct {
	deviceID  string
	env       *Environment
	topics    controller.Topics
	publisher rabbitmq.IPublisher
	consumer  rabbitmq.IConsumer
	deduper   *dedup.Deduper
	log       *zap.Logger
	started   time.Time
	now       func() time.Time
}

func NewSimulator(deviceID string, env *Environment, topics controller.Topics,
	consumer rabbitmq.IConsumer, publisher rabbitmq.IPublisher, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Simulator{
		deviceID:  deviceID,
		env:       env,
		topics:    topics,
		publisher: publisher,
		consumer:  consumer,
		deduper:   dedup.New(2*time.Minute, 10000),
		log:       log,
		started:   time.Now(),
		now:       time.Now,
	}
}

// CommandTopics lists the topics the simulator must subscribe to.
func CommandTopics(t controller.Topics) []string {
	return []string{t.PumpCommand, t.FanCommand}
}

// Start publishes a reading every interval until ctx is done.
func (s *Simulator) Start(ctx context.Context, interval time.Duration) {
	s.consumer.SetHandler(s.HandleCommand)
	go s.consumer.ConsumeMessage(ctx)

	s.publishDeviceStatus("online")
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.publishDeviceStatus("offline")
			return
		case <-t.C:
			s.Tick()
		}
	}
}

// Tick publishes one reading.
func (s *Simulator) Tick() {
	m := s.env.Next(s.deviceID, s.now())
	s.log.Debug("publishing reading",
		zap.Float64p("temperature", m.Temperature),
		zap.Float64p("soil_moisture", m.SoilMoisture))
	if err := s.publishJSON(s.topics.SensorData, m); err != nil {
		s.log.Warn("publish reading failed", zap.Error(err))
	}
}

// HandleCommand applies an actuator command and reports the new state.
func (s *Simulator) HandleCommand(_ string, msg mqtt.Message) error {
	seen := !s.deduper.ShouldProcess(dedup.PayloadKey(msg.Payload()))
	if msg.Duplicate() && seen {
		return nil
	}
	var cmd messages.ActuatorCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		return fmt.Errorf("invalid actuator command: %w", err)
	}
	a, err := entities.ParseActuator(string(cmd.Device))
	if err != nil {
		return err
	}
	s.env.SetActuator(a, cmd.Status)
	s.log.Info("actuator command applied",
		zap.String("actuator", string(a)), zap.Bool("on", cmd.Status), zap.String("mode", string(cmd.Mode)))

	status := cmd.Status
	return s.publishJSON(s.topics.ActuatorStatus, messages.ActuatorStatusMessage{Device: string(a), Status: &status})
}

func (s *Simulator) publishDeviceStatus(status string) {
	err := s.publishJSON(s.topics.DeviceStatus, messages.DeviceStatusMessage{
		"deviceId":   s.deviceID,
		"status":     status,
		"uptime":     int64(s.now().Sub(s.started).Seconds()),
		"waterPump":  s.env.Actuator(entities.Pump),
		"coolingFan": s.env.Actuator(entities.Fan),
	})
	if err != nil {
		s.log.Warn("publish device status failed", zap.Error(err))
	}
}

func (s *Simulator) publishJSON(topic string, v any) error {
	return rabbitmq.PublishJSON(s.publisher, topic, v)
}
