package entities

import (
	"errors"
	"fmt"
	"time"
)

const DefaultDeviceID = "esp8266_001"

var ErrSampleOutOfRange = errors.New("sample value out of range")

// SensorSample is one telemetry point. SoilMoisture and WaterLevel are optional.
type SensorSample struct {
	DeviceID     string    `json:"deviceId"`
	Temperature  float64   `json:"temperature"`
	Humidity     float64   `json:"humidity"`
	SoilMoisture *float64  `json:"soilMoisture,omitempty"`
	WaterLevel   *float64  `json:"waterLevel,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func (s SensorSample) Validate() error {
	if s.Temperature < -50 || s.Temperature > 100 {
		return fmt.Errorf("%w: temperature %v", ErrSampleOutOfRange, s.Temperature)
	}
	if s.Humidity < 0 || s.Humidity > 100 {
		return fmt.Errorf("%w: humidity %v", ErrSampleOutOfRange, s.Humidity)
	}
	if s.SoilMoisture != nil && (*s.SoilMoisture < 0 || *s.SoilMoisture > 100) {
		return fmt.Errorf("%w: soilMoisture %v", ErrSampleOutOfRange, *s.SoilMoisture)
	}
	if s.WaterLevel != nil && (*s.WaterLevel < 0 || *s.WaterLevel > 100) {
		return fmt.Errorf("%w: waterLevel %v", ErrSampleOutOfRange, *s.WaterLevel)
	}
	return nil
}

// Float64 returns a pointer to v, for optional channels.
func Float64(v float64) *float64 { return &v }
