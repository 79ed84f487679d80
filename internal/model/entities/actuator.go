package entities

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownActuator = errors.New("unknown actuator")
	ErrInvalidMode     = errors.New("invalid actuator mode")
)

// Actuator is the canonical identifier of a controllable device output.
type Actuator string

const (
	Pump Actuator = "pump"
	Fan  Actuator = "fan"
)

// Actuators lists every actuator the system controls, in evaluation order.
var Actuators = []Actuator{Pump, Fan}

func ParseActuator(s string) (Actuator, error) {
	switch Actuator(strings.ToLower(strings.TrimSpace(s))) {
	case Pump:
		return Pump, nil
	case Fan:
		return Fan, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownActuator, s)
}

// LogType is the name stored in action logs ("water_pump", "cooling_fan").
func (a Actuator) LogType() string {
	switch a {
	case Pump:
		return "water_pump"
	case Fan:
		return "cooling_fan"
	}
	return string(a)
}

func (a Actuator) DisplayName() string {
	switch a {
	case Pump:
		return "Water Pump"
	case Fan:
		return "Cooling Fan"
	}
	return string(a)
}

// StatusKey is the key used for the actuator in status payloads sent to viewers.
func (a Actuator) StatusKey() string {
	switch a {
	case Pump:
		return "waterPump"
	case Fan:
		return "coolingFan"
	}
	return string(a)
}

// ActuatorFromLogType maps a stored actuatorType back to the actuator.
func ActuatorFromLogType(s string) (Actuator, error) {
	switch s {
	case "water_pump":
		return Pump, nil
	case "cooling_fan":
		return Fan, nil
	}
	return ParseActuator(s)
}

type Mode string

const (
	ModeAutomatic Mode = "automatic"
	ModeManual    Mode = "manual"
)

// ParseMode accepts "automatic", "auto" and "manual".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automatic", "auto":
		return ModeAutomatic, nil
	case "manual":
		return ModeManual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Trigger tags the provenance of an actuator action.
type Trigger = Mode

const (
	TriggerAutomatic Trigger = ModeAutomatic
	TriggerManual    Trigger = ModeManual
)

// ActuatorRecord is the mode and last-known state of one actuator.
type ActuatorRecord struct {
	Mode  Mode `json:"mode"`
	State bool `json:"status"`
}

func DefaultActuatorRecord() ActuatorRecord {
	return ActuatorRecord{Mode: ModeAutomatic, State: false}
}
