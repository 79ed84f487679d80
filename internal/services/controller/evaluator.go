package controller

import (
	"strconv"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

const (
	ReasonSoilLow      = "Soil moisture below threshold"
	ReasonSoilRestored = "Soil moisture reached target"
	ReasonTempHigh     = "Temperature above threshold"
	ReasonTempCooled   = "Temperature cooled to safe level"
)

// Intent is a proposed actuator transition, not yet applied.
type Intent struct {
	Actuator entities.Actuator
	On       bool
	Reason   string
}

type Evaluation struct {
	Alerts  []entities.Alert
	Intents []Intent
}

// Evaluate checks a sample against the thresholds and the actuator snapshot.
// Every rule runs; outputs follow rule order: soil, temperature, water level, humidity.
// Alerts carry no ID; the caller assigns one when persisting.
func Evaluate(s entities.SensorSample, t entities.ThresholdSet, actuators Snapshot) Evaluation {
	var ev Evaluation
	pump := actuators.Record(entities.Pump)
	fan := actuators.Record(entities.Fan)

	alert := func(sev entities.Severity, st entities.SensorType, msg string, value, threshold float64) {
		ev.Alerts = append(ev.Alerts, entities.Alert{
			DeviceID:   s.DeviceID,
			Severity:   sev,
			SensorType: st,
			Message:    msg,
			Value:      value,
			Threshold:  threshold,
			Timestamp:  s.Timestamp,
		})
	}

	if s.SoilMoisture != nil {
		v := *s.SoilMoisture
		if v < t.MinSoilMoisture {
			alert(entities.SeverityCritical, entities.SensorSoilMoisture, "Soil moisture low: "+num(v)+"%", v, t.MinSoilMoisture)
			if pump.Mode == entities.ModeAutomatic && !pump.State {
				ev.Intents = append(ev.Intents, Intent{Actuator: entities.Pump, On: true, Reason: ReasonSoilLow})
			}
		}
		if v >= t.MaxSoilMoisture && pump.Mode == entities.ModeAutomatic && pump.State {
			ev.Intents = append(ev.Intents, Intent{Actuator: entities.Pump, On: false, Reason: ReasonSoilRestored})
		}
	}

	if s.Temperature > t.MaxTemperature {
		alert(entities.SeverityWarning, entities.SensorTemperature, "Temperature high: "+num(s.Temperature)+"°C", s.Temperature, t.MaxTemperature)
		if fan.Mode == entities.ModeAutomatic && !fan.State {
			ev.Intents = append(ev.Intents, Intent{Actuator: entities.Fan, On: true, Reason: ReasonTempHigh})
		}
	}
	if s.Temperature <= t.MinTemperature && fan.Mode == entities.ModeAutomatic && fan.State {
		ev.Intents = append(ev.Intents, Intent{Actuator: entities.Fan, On: false, Reason: ReasonTempCooled})
	}

	if s.WaterLevel != nil && *s.WaterLevel < t.MinWaterLevel {
		alert(entities.SeverityCritical, entities.SensorWaterLevel, "Water level low: "+num(*s.WaterLevel)+"%", *s.WaterLevel, t.MinWaterLevel)
	}

	if s.Humidity > t.MaxHumidity {
		alert(entities.SeverityWarning, entities.SensorHumidity, "Humidity high: "+num(s.Humidity)+"%", s.Humidity, t.MaxHumidity)
	}

	return ev
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
