package controller

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
)

type pipelineFixture struct {
	p     *Pipeline
	pub   *fakePublisher
	store *fakeStore
	fan   *fakeFanout
}

func newPipelineFixture(t *testing.T, th entities.ThresholdSet) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{pub: &fakePublisher{}, store: &fakeStore{}, fan: &fakeFanout{}}
	f.p = NewPipeline(Options{DeviceID: "dev-1", Thresholds: th}, Deps{
		Publisher: f.pub,
		Fanout:    f.fan,
		Readings:  f.store,
		Alerts:    f.store,
		Logs:      f.store,
		Settings:  f.store,
		Metrics:   NewMetrics(nil),
		Logger:    zap.NewNop(),
	})
	f.p.now = func() time.Time { return time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC) }
	return f
}

func (f *pipelineFixture) send(topic string, payload []byte) {
	_ = f.p.HandleMessage(topic, fakeMessage{topic: topic, payload: payload})
}

func TestPipeline_SoilLowScenario(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())

	f.send("sensors/data", []byte(`{"deviceId":"dev-1","temperature":22,"humidity":50,"soilMoisture":25}`))

	assert.True(t, f.p.registry.State(entities.Pump))
	require.Len(t, f.store.readings, 1)
	require.Len(t, f.store.logs, 1)
	assert.Equal(t, entities.ActionOn, f.store.logs[0].Action)
	require.Len(t, f.store.alerts, 1)
	assert.Equal(t, "Soil moisture low: 25%", f.store.alerts[0].Message)
	assert.NotEmpty(t, f.store.alerts[0].ID)

	assert.Len(t, f.pub.on("alerts/critical"), 1)
	assert.Len(t, f.pub.on("actuators/pump/command"), 1)

	// intents first, then alerts, sample last
	assert.Equal(t, []string{messages.EventActionLog, messages.EventAlert, messages.EventSensorData}, f.fan.names())
}

func TestPipeline_PumpOffWhenSoilRestored(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":25}`))
	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":50}`))
	assert.True(t, f.p.registry.State(entities.Pump))

	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":75}`))
	assert.False(t, f.p.registry.State(entities.Pump))
	require.Len(t, f.store.logs, 2)
	assert.Equal(t, entities.ActionOff, f.store.logs[1].Action)
	require.NotNil(t, f.store.logs[1].Reason)
	assert.Equal(t, ReasonSoilRestored, *f.store.logs[1].Reason)
	assert.Len(t, f.store.alerts, 1)
}

func TestPipeline_FanScenarioNoRepeatIntent(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	payload := []byte(`{"temperature":36,"humidity":50}`)

	f.send("sensors/data", payload)
	f.send("sensors/data", payload)

	assert.True(t, f.p.registry.State(entities.Fan))
	assert.Len(t, f.store.logs, 1)
	assert.Len(t, f.store.alerts, 2)
	assert.Len(t, f.store.readings, 2)
}

func TestPipeline_ManualModeOnlyAlerts(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	require.NoError(t, f.p.SetActuatorMode(entities.Pump, entities.ModeManual))

	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":10}`))

	assert.False(t, f.p.registry.State(entities.Pump))
	assert.Empty(t, f.store.logs)
	require.Len(t, f.store.alerts, 1)
	assert.Equal(t, entities.SeverityCritical, f.store.alerts[0].Severity)
}

func TestPipeline_MalformedPayloadDiscarded(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())

	f.send("sensors/data", []byte(`not json`))
	f.send("sensors/data", []byte(`{"humidity":50}`))

	assert.Empty(t, f.store.readings)
	assert.Empty(t, f.fan.names())
}

func TestPipeline_PersistenceFailureDoesNotBlockActuation(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	f.store.fail = true

	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":5}`))

	assert.True(t, f.p.registry.State(entities.Pump))
	assert.Len(t, f.pub.on("actuators/pump/command"), 1)
	assert.Len(t, f.pub.on("alerts/critical"), 1)
	assert.Contains(t, f.fan.names(), messages.EventSensorData)
}

func TestPipeline_RedeliveryDropped(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	payload := []byte(`{"temperature":22,"humidity":50}`)

	_ = f.p.HandleMessage("sensors/data", fakeMessage{topic: "sensors/data", payload: payload})
	_ = f.p.HandleMessage("sensors/data", fakeMessage{topic: "sensors/data", payload: payload, dup: true})
	assert.Len(t, f.store.readings, 1)

	// same payload without the DUP flag is a fresh reading
	_ = f.p.HandleMessage("sensors/data", fakeMessage{topic: "sensors/data", payload: payload})
	assert.Len(t, f.store.readings, 2)
}

func TestPipeline_ActuatorStatusRelay(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	require.NoError(t, f.p.SetActuatorMode(entities.Fan, entities.ModeManual))

	f.send("actuators/status", []byte(`{"device":"fan","status":true}`))

	assert.True(t, f.p.registry.State(entities.Fan))
	assert.Equal(t, entities.ModeManual, f.p.ActuatorMode(entities.Fan))
	evs := f.fan.named(messages.EventActuatorStatus)
	require.Len(t, evs, 1)
	assert.Equal(t, messages.ActuatorStatusEvent{
		"coolingFan": {Mode: entities.ModeManual, State: true},
	}, evs[0])
	assert.Empty(t, f.store.logs)
}

func TestPipeline_ConfigUpdateAppliesToNextSample(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())

	f.send("settings/config", []byte(`{"thresholds":{"minSoilMoisture":50}}`))
	assert.Equal(t, 50.0, f.p.Thresholds().MinSoilMoisture)
	assert.Equal(t, 70.0, f.p.Thresholds().MaxSoilMoisture)

	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":45}`))
	assert.True(t, f.p.registry.State(entities.Pump))
}

func TestPipeline_DeviceStatusRelayed(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	f.send("device/status", []byte(`{"status":"online","rssi":-61}`))

	evs := f.fan.named(messages.EventDeviceStatus)
	require.Len(t, evs, 1)
	assert.Equal(t, "online", evs[0].(messages.DeviceStatusMessage)["status"])
}

func TestPipeline_ModeChangeBroadcastWithoutStateChange(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	_, err := f.p.ControlActuator(context.Background(), entities.Pump, true, entities.TriggerManual, "", nil)
	require.NoError(t, err)

	require.NoError(t, f.p.SetActuatorMode(entities.Pump, entities.ModeManual))
	assert.True(t, f.p.registry.State(entities.Pump))
	evs := f.fan.named(messages.EventActuatorModeChange)
	require.Len(t, evs, 1)
	assert.Equal(t, messages.ModeChangeEvent{Actuator: entities.Pump, Mode: entities.ModeManual}, evs[0])

	assert.ErrorIs(t, f.p.SetActuatorMode(entities.Pump, entities.Mode("later")), entities.ErrInvalidMode)
	assert.ErrorIs(t, f.p.SetActuatorMode(entities.Actuator("heater"), entities.ModeManual), entities.ErrUnknownActuator)
}

func TestPipeline_ModeAliasKeepsAutomaticControl(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	require.NoError(t, f.p.SetActuatorMode(entities.Pump, entities.ModeManual))

	require.NoError(t, f.p.SetActuatorMode(entities.Actuator(" Pump "), entities.Mode("auto")))
	assert.Equal(t, entities.ModeAutomatic, f.p.ActuatorMode(entities.Pump))

	f.send("sensors/data", []byte(`{"temperature":22,"humidity":50,"soilMoisture":10}`))
	assert.True(t, f.p.registry.State(entities.Pump))
	assert.Len(t, f.pub.on("actuators/pump/command"), 1)
}

func TestPipeline_ManualControlNormalizesNames(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())

	entry, err := f.p.ManualControl(context.Background(), entities.Actuator("FAN"), true, entities.Mode("Manual"), nil)
	require.NoError(t, err)
	assert.Equal(t, entities.TriggerManual, entry.Trigger)
	assert.Equal(t, entities.ModeManual, f.p.ActuatorMode(entities.Fan))
	assert.True(t, f.p.registry.State(entities.Fan))

	var cmd messages.ActuatorCommand
	cmds := f.pub.on("actuators/fan/command")
	require.Len(t, cmds, 1)
	require.NoError(t, json.Unmarshal(cmds[0].Payload, &cmd))
	assert.Equal(t, entities.Fan, cmd.Device)
}

func TestPipeline_ManualControl(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())

	entry, err := f.p.ManualControl(context.Background(), entities.Fan, true, entities.ModeManual, nil)
	require.NoError(t, err)
	assert.Equal(t, entities.TriggerManual, entry.Trigger)
	assert.Equal(t, ReasonManualDashboard, *entry.Reason)
	assert.Equal(t, entities.ModeManual, f.p.ActuatorMode(entities.Fan))

	entry, err = f.p.ManualControl(context.Background(), entities.Fan, false, entities.ModeAutomatic, nil)
	require.NoError(t, err)
	assert.Equal(t, ReasonAutoActivated, *entry.Reason)
}

func TestPipeline_UpdateThresholdsPersistsAndAnnounces(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())

	got, err := f.p.UpdateThresholds(context.Background(), entities.PartialThresholdSet{MaxHumidity: entities.Float64(90)})
	require.NoError(t, err)
	assert.Equal(t, 90.0, got.MaxHumidity)
	require.Len(t, f.store.thresholds, 1)

	f.p.AnnounceThresholds()
	msgs := f.pub.on("settings/config")
	require.Len(t, msgs, 1)
	var m messages.ConfigUpdateMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &m))
	require.NotNil(t, m.Thresholds)
	assert.Equal(t, 90.0, *m.Thresholds.MaxHumidity)
}

func TestPipeline_ActuatorStatusSnapshot(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	st := f.p.ActuatorStatus()
	assert.Equal(t, entities.DefaultActuatorRecord(), st["waterPump"])
	assert.Equal(t, entities.DefaultActuatorRecord(), st["coolingFan"])
}

func TestPipeline_AnnouncePresence(t *testing.T) {
	f := newPipelineFixture(t, entities.DefaultThresholds())
	f.p.AnnouncePresence("online")

	msgs := f.pub.on("backend/status")
	require.Len(t, msgs, 1)
	var st messages.BackendStatus
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &st))
	assert.Equal(t, "online", st.Status)
}

func TestPipeline_ZeroOptionsUseDefaults(t *testing.T) {
	p := NewPipeline(Options{}, Deps{})
	assert.Equal(t, entities.DefaultThresholds(), p.Thresholds())
	p.ProcessSample(context.Background(), entities.SensorSample{Temperature: 20, Humidity: 40})
}

func TestThresholdStore_RejectsNonFinite(t *testing.T) {
	s := NewThresholdStore(entities.DefaultThresholds())
	_, err := s.Update(entities.PartialThresholdSet{MinTemperature: entities.Float64(math.NaN())})
	assert.ErrorIs(t, err, entities.ErrInvalidThreshold)
	assert.Equal(t, entities.DefaultThresholds(), s.Get())

	got, err := s.Update(entities.PartialThresholdSet{MinWaterLevel: entities.Float64(-10)})
	require.NoError(t, err)
	assert.Equal(t, -10.0, got.MinWaterLevel)
}
