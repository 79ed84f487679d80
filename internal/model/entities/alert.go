package entities

import "time"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

type SensorType string

const (
	SensorSoilMoisture SensorType = "soil_moisture"
	SensorTemperature  SensorType = "temperature"
	SensorHumidity     SensorType = "humidity"
	SensorWaterLevel   SensorType = "water_level"
)

// Alert records a threshold violation. Only Acknowledged ever changes after creation.
type Alert struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	DeviceID     string     `json:"deviceId" gorm:"size:64;index"`
	Severity     Severity   `json:"type" gorm:"column:severity;size:16;index"`
	SensorType   SensorType `json:"sensorType" gorm:"size:32"`
	Message      string     `json:"message"`
	Value        float64    `json:"value"`
	Threshold    float64    `json:"threshold"`
	Acknowledged bool       `json:"acknowledged" gorm:"index;default:false"`
	Timestamp    time.Time  `json:"timestamp" gorm:"index"`
}

func (Alert) TableName() string { return "alerts" }
