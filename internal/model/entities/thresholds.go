package entities

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidThreshold = errors.New("invalid threshold")

// ThresholdSet holds the evaluation limits for every sensor channel.
// minSoilMoisture/maxSoilMoisture and minTemperature/maxTemperature form hysteresis bands.
type ThresholdSet struct {
	MinSoilMoisture float64 `json:"minSoilMoisture" yaml:"min_soil_moisture" gorm:"column:min_soil_moisture"`
	MaxSoilMoisture float64 `json:"maxSoilMoisture" yaml:"max_soil_moisture" gorm:"column:max_soil_moisture"`
	MinTemperature  float64 `json:"minTemperature" yaml:"min_temperature" gorm:"column:min_temperature"`
	MaxTemperature  float64 `json:"maxTemperature" yaml:"max_temperature" gorm:"column:max_temperature"`
	MinWaterLevel   float64 `json:"minWaterLevel" yaml:"min_water_level" gorm:"column:min_water_level"`
	MaxHumidity     float64 `json:"maxHumidity" yaml:"max_humidity" gorm:"column:max_humidity"`
}

func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		MinSoilMoisture: 30,
		MaxSoilMoisture: 70,
		MinTemperature:  15,
		MaxTemperature:  35,
		MinWaterLevel:   20,
		MaxHumidity:     80,
	}
}

// PartialThresholdSet carries only the fields an update supplies.
type PartialThresholdSet struct {
	MinSoilMoisture *float64 `json:"minSoilMoisture,omitempty"`
	MaxSoilMoisture *float64 `json:"maxSoilMoisture,omitempty"`
	MinTemperature  *float64 `json:"minTemperature,omitempty"`
	MaxTemperature  *float64 `json:"maxTemperature,omitempty"`
	MinWaterLevel   *float64 `json:"minWaterLevel,omitempty"`
	MaxHumidity     *float64 `json:"maxHumidity,omitempty"`
}

func (p PartialThresholdSet) fields() map[string]*float64 {
	return map[string]*float64{
		"minSoilMoisture": p.MinSoilMoisture,
		"maxSoilMoisture": p.MaxSoilMoisture,
		"minTemperature":  p.MinTemperature,
		"maxTemperature":  p.MaxTemperature,
		"minWaterLevel":   p.MinWaterLevel,
		"maxHumidity":     p.MaxHumidity,
	}
}

// Empty reports whether no field is supplied.
func (p PartialThresholdSet) Empty() bool {
	for _, v := range p.fields() {
		if v != nil {
			return false
		}
	}
	return true
}

// Validate rejects NaN and infinite values. Out-of-range finite values are allowed.
func (p PartialThresholdSet) Validate() error {
	for name, v := range p.fields() {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidThreshold, name)
		}
	}
	return nil
}

// Merge returns t with every supplied field of p applied.
func (t ThresholdSet) Merge(p PartialThresholdSet) ThresholdSet {
	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.MinSoilMoisture, p.MinSoilMoisture)
	set(&t.MaxSoilMoisture, p.MaxSoilMoisture)
	set(&t.MinTemperature, p.MinTemperature)
	set(&t.MaxTemperature, p.MaxTemperature)
	set(&t.MinWaterLevel, p.MinWaterLevel)
	set(&t.MaxHumidity, p.MaxHumidity)
	return t
}

// Partial converts a full set into an update that supplies every field.
func (t ThresholdSet) Partial() PartialThresholdSet {
	return PartialThresholdSet{
		MinSoilMoisture: &t.MinSoilMoisture,
		MaxSoilMoisture: &t.MaxSoilMoisture,
		MinTemperature:  &t.MinTemperature,
		MaxTemperature:  &t.MaxTemperature,
		MinWaterLevel:   &t.MinWaterLevel,
		MaxHumidity:     &t.MaxHumidity,
	}
}
