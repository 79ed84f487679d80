package entities

import "time"

const (
	ActionOn  = "ON"
	ActionOff = "OFF"
)

func ActionFor(on bool) string {
	if on {
		return ActionOn
	}
	return ActionOff
}

// ActuatorActionLog is an append-only record of one actuator command.
type ActuatorActionLog struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	DeviceID     string    `json:"deviceId" gorm:"size:64"`
	ActuatorType string    `json:"actuatorType" gorm:"size:32;index"`
	Action       string    `json:"action" gorm:"size:8"`
	Trigger      Trigger   `json:"trigger" gorm:"column:trigger_source;size:16"`
	UserID       *string   `json:"userId,omitempty" gorm:"size:64"`
	Reason       *string   `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
}

func (ActuatorActionLog) TableName() string { return "actuator_logs" }

// FormattedActionLog is the viewer-facing form of a log, e.g. "Water Pump ON".
type FormattedActionLog struct {
	ActuatorActionLog
	ActionText string `json:"actionText"`
}

func (l ActuatorActionLog) Formatted() FormattedActionLog {
	name := l.ActuatorType
	if a, err := ActuatorFromLogType(l.ActuatorType); err == nil {
		name = a.DisplayName()
	}
	return FormattedActionLog{ActuatorActionLog: l, ActionText: name + " " + l.Action}
}
