package app

import (
	"context"
	"time"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
)

// Engine is the control surface of the threshold engine.
type Engine interface {
	ManualControl(ctx context.Context, a entities.Actuator, on bool, mode entities.Mode, userID *string) (entities.ActuatorActionLog, error)
	SetActuatorMode(a entities.Actuator, m entities.Mode) error
	ActuatorMode(a entities.Actuator) entities.Mode
	ActuatorStatus() messages.ActuatorStatusEvent
	Thresholds() entities.ThresholdSet
	UpdateThresholds(ctx context.Context, p entities.PartialThresholdSet) (entities.ThresholdSet, error)
	AnnounceThresholds()
}

type ReadingQueries interface {
	Latest(ctx context.Context) (entities.SensorSample, string, error)
	History(ctx context.Context, tr persistence.TimeRange, limit int) ([]entities.SensorSample, error)
	Aggregated(ctx context.Context, tr persistence.TimeRange, every string) ([]persistence.AggregatedReading, error)
	Stats(ctx context.Context, tr persistence.TimeRange) (persistence.ReadingStats, error)
}

type RecordQueries interface {
	ListAlerts(ctx context.Context, f persistence.AlertFilter) ([]entities.Alert, error)
	LatestUnacknowledged(ctx context.Context) (entities.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string) (entities.Alert, error)
	AcknowledgeAll(ctx context.Context) (int64, error)
	AlertStats(ctx context.Context, since time.Time) ([]persistence.AlertStat, error)

	ListActionLogs(ctx context.Context, f persistence.LogFilter) ([]entities.ActuatorActionLog, error)
	ActionLogStats(ctx context.Context, since time.Time) ([]persistence.ActionLogStat, error)

	Settings(ctx context.Context) (entities.Settings, error)
	SetGSMNumber(ctx context.Context, number *string) (entities.Settings, error)
	SetNotifications(ctx context.Context, enabled bool) (entities.Settings, error)
}

// ---------- request / response payloads ----------

type listResponse[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

func newList[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Count: len(items), Data: items}
}

type aggregatedResponse struct {
	Interval  string                          `json:"interval"`
	StartDate time.Time                       `json:"startDate"`
	EndDate   time.Time                       `json:"endDate"`
	Count     int                             `json:"count"`
	Data      []persistence.AggregatedReading `json:"data"`
}

type controlRequest struct {
	Status *bool  `json:"status"`
	Mode   string `json:"mode"`
	UserID string `json:"userId"`
}

type controlResponse struct {
	Success bool                        `json:"success"`
	Message string                      `json:"message"`
	Status  entities.ActuatorRecord     `json:"status"`
	Log     entities.FormattedActionLog `json:"log"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type ackResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Alert   *entities.Alert `json:"alert,omitempty"`
}

type settingsResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Settings entities.Settings `json:"settings"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}
