package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

var ErrMalformedPayload = errors.New("malformed payload")

// Fan-out event names.
const (
	EventSensorData         = "sensor-data"
	EventActuatorStatus     = "actuator-status"
	EventActuatorModeChange = "actuator-mode-change"
	EventAlert              = "alert"
	EventActionLog          = "action-log"
	EventDeviceStatus       = "device-status"
	EventConnected          = "connected"
)

// SensorDataMessage is the inbound payload on the sensor topic.
// Temperature and humidity are required; soil moisture and water level may be omitted.
type SensorDataMessage struct {
	DeviceID     string   `json:"deviceId,omitempty"`
	Temperature  *float64 `json:"temperature"`
	Humidity     *float64 `json:"humidity"`
	SoilMoisture *float64 `json:"soilMoisture,omitempty"`
	WaterLevel   *float64 `json:"waterLevel,omitempty"`
}

// DecodeSensorData parses and validates a sensor payload into a sample stamped at now.
func DecodeSensorData(payload []byte, now time.Time) (entities.SensorSample, error) {
	var m SensorDataMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return entities.SensorSample{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if m.Temperature == nil || m.Humidity == nil {
		return entities.SensorSample{}, fmt.Errorf("%w: temperature and humidity are required", ErrMalformedPayload)
	}
	s := entities.SensorSample{
		DeviceID:     m.DeviceID,
		Temperature:  *m.Temperature,
		Humidity:     *m.Humidity,
		SoilMoisture: m.SoilMoisture,
		WaterLevel:   m.WaterLevel,
		Timestamp:    now.UTC(),
	}
	if s.DeviceID == "" {
		s.DeviceID = entities.DefaultDeviceID
	}
	if err := s.Validate(); err != nil {
		return entities.SensorSample{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return s, nil
}

// ActuatorStatusMessage is a device-side report of an actuator's state.
type ActuatorStatusMessage struct {
	Device string `json:"device"`
	Status *bool  `json:"status"`
}

func DecodeActuatorStatus(payload []byte) (entities.Actuator, bool, error) {
	var m ActuatorStatusMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if m.Status == nil {
		return "", false, fmt.Errorf("%w: status is required", ErrMalformedPayload)
	}
	a, err := entities.ParseActuator(m.Device)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return a, *m.Status, nil
}

// ConfigUpdateMessage travels on the settings topic in both directions.
type ConfigUpdateMessage struct {
	Thresholds *entities.PartialThresholdSet `json:"thresholds"`
}

func DecodeConfigUpdate(payload []byte) (entities.PartialThresholdSet, error) {
	var m ConfigUpdateMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return entities.PartialThresholdSet{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if m.Thresholds == nil {
		return entities.PartialThresholdSet{}, fmt.Errorf("%w: thresholds missing", ErrMalformedPayload)
	}
	return *m.Thresholds, nil
}

// ActuatorCommand is published on an actuator's command topic.
type ActuatorCommand struct {
	Device    entities.Actuator `json:"device"`
	Status    bool              `json:"status"`
	Mode      entities.Mode     `json:"mode"`
	Timestamp time.Time         `json:"timestamp"`
}

// BackendStatus announces backend presence; the offline form is the MQTT last will.
type BackendStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// BackendOfflineWill is the last-will payload. It has no timestamp: the broker sends it
// long after it was registered at connect time.
func BackendOfflineWill() []byte {
	b, _ := json.Marshal(map[string]string{"status": "offline"})
	return b
}

// ActuatorStatusEvent is the viewer payload for one actuator, keyed by StatusKey.
type ActuatorStatusEvent map[string]entities.ActuatorRecord

// ModeChangeEvent is broadcast when an actuator's mode changes.
type ModeChangeEvent struct {
	Actuator entities.Actuator `json:"actuator"`
	Mode     entities.Mode     `json:"mode"`
}

// DeviceStatusMessage is relayed verbatim to viewers.
type DeviceStatusMessage map[string]any
