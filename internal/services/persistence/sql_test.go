package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := OpenSQL(SQLConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	s, err := NewSQLStore(db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var base = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func alertAt(sev entities.Severity, st entities.SensorType, ack bool, at time.Time) *entities.Alert {
	return &entities.Alert{
		ID:           uuid.NewString(),
		DeviceID:     "dev-1",
		Severity:     sev,
		SensorType:   st,
		Message:      "m",
		Value:        1,
		Threshold:    2,
		Acknowledged: ack,
		Timestamp:    at,
	}
}

func TestOpenSQL_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQL(SQLConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestAlerts_ListFiltersAndOrder(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityCritical, entities.SensorSoilMoisture, false, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityWarning, entities.SensorTemperature, true, base.Add(time.Minute))))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityCritical, entities.SensorWaterLevel, false, base.Add(2*time.Minute))))

	all, err := s.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, entities.SensorWaterLevel, all[0].SensorType)

	crit, err := s.ListAlerts(ctx, AlertFilter{Severity: entities.SeverityCritical})
	require.NoError(t, err)
	assert.Len(t, crit, 2)

	ack := true
	acked, err := s.ListAlerts(ctx, AlertFilter{Acknowledged: &ack})
	require.NoError(t, err)
	require.Len(t, acked, 1)
	assert.Equal(t, entities.SensorTemperature, acked[0].SensorType)

	start := base.Add(30 * time.Second)
	windowed, err := s.ListAlerts(ctx, AlertFilter{Start: &start, Limit: 1})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, entities.SensorWaterLevel, windowed[0].SensorType)
}

func TestAlerts_LatestUnacknowledgedAndAcknowledge(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	_, err := s.LatestUnacknowledged(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	old := alertAt(entities.SeverityCritical, entities.SensorSoilMoisture, false, base)
	recent := alertAt(entities.SeverityWarning, entities.SensorHumidity, false, base.Add(time.Hour))
	require.NoError(t, s.SaveAlert(ctx, old))
	require.NoError(t, s.SaveAlert(ctx, recent))

	latest, err := s.LatestUnacknowledged(ctx)
	require.NoError(t, err)
	assert.Equal(t, recent.ID, latest.ID)

	got, err := s.AcknowledgeAlert(ctx, recent.ID)
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)

	latest, err = s.LatestUnacknowledged(ctx)
	require.NoError(t, err)
	assert.Equal(t, old.ID, latest.ID)

	_, err = s.AcknowledgeAlert(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := s.AcknowledgeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = s.LatestUnacknowledged(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAlerts_Stats(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityCritical, entities.SensorSoilMoisture, true, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityCritical, entities.SensorSoilMoisture, false, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityWarning, entities.SensorTemperature, false, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityWarning, entities.SensorTemperature, false, base.Add(-30*24*time.Hour))))

	stats, err := s.AlertStats(ctx, base.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, AlertStat{Type: entities.SeverityCritical, SensorType: entities.SensorSoilMoisture, Count: 2, AcknowledgedCount: 1}, stats[0])
	assert.Equal(t, AlertStat{Type: entities.SeverityWarning, SensorType: entities.SensorTemperature, Count: 1, AcknowledgedCount: 0}, stats[1])
}

func logAt(a entities.Actuator, action string, trigger entities.Trigger, at time.Time) *entities.ActuatorActionLog {
	reason := "r"
	return &entities.ActuatorActionLog{
		ID:           uuid.NewString(),
		DeviceID:     "dev-1",
		ActuatorType: a.LogType(),
		Action:       action,
		Trigger:      trigger,
		Reason:       &reason,
		Timestamp:    at,
	}
}

func TestActionLogs_ListAndStats(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveActionLog(ctx, logAt(entities.Pump, entities.ActionOn, entities.TriggerAutomatic, base)))
	require.NoError(t, s.SaveActionLog(ctx, logAt(entities.Pump, entities.ActionOn, entities.TriggerManual, base.Add(time.Minute))))
	require.NoError(t, s.SaveActionLog(ctx, logAt(entities.Fan, entities.ActionOff, entities.TriggerManual, base.Add(2*time.Minute))))

	pump, err := s.ListActionLogs(ctx, LogFilter{ActuatorType: "water_pump"})
	require.NoError(t, err)
	require.Len(t, pump, 2)
	assert.Equal(t, entities.TriggerManual, pump[0].Trigger)
	require.NotNil(t, pump[0].Reason)

	stats, err := s.ActionLogStats(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, ActionLogStat{ActuatorType: "cooling_fan", Action: "OFF", Count: 1, AutomaticCount: 0, ManualCount: 1}, stats[0])
	assert.Equal(t, ActionLogStat{ActuatorType: "water_pump", Action: "ON", Count: 2, AutomaticCount: 1, ManualCount: 1}, stats[1])
}

func TestSettings_DefaultsAndUpdates(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadThresholds(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, entities.DefaultThresholds(), st.Thresholds)
	assert.True(t, st.NotificationsEnabled)

	th := entities.DefaultThresholds()
	th.MaxTemperature = 31
	require.NoError(t, s.SaveThresholds(ctx, th))

	got, ok, err := s.LoadThresholds(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 31.0, got.MaxTemperature)

	st, err = s.SetNotifications(ctx, false)
	require.NoError(t, err)
	assert.False(t, st.NotificationsEnabled)

	num := "+390000000"
	st, err = s.SetGSMNumber(ctx, &num)
	require.NoError(t, err)
	require.NotNil(t, st.GSMNumber)
	assert.Equal(t, num, *st.GSMNumber)

	st, err = s.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, st.NotificationsEnabled)
	assert.Equal(t, 31.0, st.Thresholds.MaxTemperature)
}

func TestPurgeExpired(t *testing.T) {
	s := newTestSQLStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveActionLog(ctx, logAt(entities.Pump, entities.ActionOn, entities.TriggerAutomatic, base.Add(-100*24*time.Hour))))
	require.NoError(t, s.SaveActionLog(ctx, logAt(entities.Pump, entities.ActionOff, entities.TriggerAutomatic, base)))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityCritical, entities.SensorSoilMoisture, true, base.Add(-40*24*time.Hour))))
	require.NoError(t, s.SaveAlert(ctx, alertAt(entities.SeverityCritical, entities.SensorSoilMoisture, false, base.Add(-40*24*time.Hour))))

	logs, alerts, err := s.PurgeExpired(ctx, base.Add(-90*24*time.Hour), base.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), logs)
	assert.Equal(t, int64(1), alerts)

	remaining, err := s.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.False(t, remaining[0].Acknowledged)
}
