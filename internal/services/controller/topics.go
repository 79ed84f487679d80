package controller

import "github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"

type Topics struct {
	SensorData     string `yaml:"sensor_data"`
	ActuatorStatus string `yaml:"actuator_status"`
	DeviceStatus   string `yaml:"device_status"`
	Config         string `yaml:"config"`
	PumpCommand    string `yaml:"pump_command"`
	FanCommand     string `yaml:"fan_command"`
	Alerts         string `yaml:"alerts"`
	BackendStatus  string `yaml:"backend_status"`
}

func DefaultTopics() Topics {
	return Topics{
		SensorData:     "sensors/data",
		ActuatorStatus: "actuators/status",
		DeviceStatus:   "device/status",
		Config:         "settings/config",
		PumpCommand:    "actuators/pump/command",
		FanCommand:     "actuators/fan/command",
		Alerts:         "alerts/critical",
		BackendStatus:  "backend/status",
	}
}

// Subscriptions returns the inbound topics the backend listens on.
func (t Topics) Subscriptions() []string {
	return []string{t.SensorData, t.ActuatorStatus, t.DeviceStatus, t.Config}
}

func (t Topics) CommandTopic(a entities.Actuator) string {
	if a == entities.Fan {
		return t.FanCommand
	}
	return t.PumpCommand
}
