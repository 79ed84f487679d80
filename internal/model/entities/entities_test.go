package entities

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseActuator(t *testing.T) {
	a, err := ParseActuator(" Pump ")
	require.NoError(t, err)
	assert.Equal(t, Pump, a)

	_, err = ParseActuator("heater")
	assert.ErrorIs(t, err, ErrUnknownActuator)
}

func TestParseMode_AcceptsAutoAlias(t *testing.T) {
	m, err := ParseMode("auto")
	require.NoError(t, err)
	assert.Equal(t, ModeAutomatic, m)

	_, err = ParseMode("sometimes")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestThresholdMerge_KeepsUnsuppliedFields(t *testing.T) {
	base := DefaultThresholds()
	got := base.Merge(PartialThresholdSet{MinSoilMoisture: Float64(40)})

	assert.Equal(t, 40.0, got.MinSoilMoisture)
	assert.Equal(t, base.MaxSoilMoisture, got.MaxSoilMoisture)
	assert.Equal(t, base.MaxHumidity, got.MaxHumidity)
}

func TestPartialThresholdValidate(t *testing.T) {
	assert.NoError(t, PartialThresholdSet{MinWaterLevel: Float64(-5)}.Validate())
	assert.ErrorIs(t, PartialThresholdSet{MaxHumidity: Float64(math.NaN())}.Validate(), ErrInvalidThreshold)
	assert.ErrorIs(t, PartialThresholdSet{MaxTemperature: Float64(math.Inf(1))}.Validate(), ErrInvalidThreshold)
	assert.True(t, PartialThresholdSet{}.Empty())
}

func TestSensorSampleValidate(t *testing.T) {
	ok := SensorSample{Temperature: 22, Humidity: 55, SoilMoisture: Float64(40)}
	assert.NoError(t, ok.Validate())

	hot := SensorSample{Temperature: 120, Humidity: 55}
	assert.ErrorIs(t, hot.Validate(), ErrSampleOutOfRange)

	wet := SensorSample{Temperature: 20, Humidity: 50, WaterLevel: Float64(101)}
	assert.ErrorIs(t, wet.Validate(), ErrSampleOutOfRange)
}

func TestActionLogFormatted(t *testing.T) {
	l := ActuatorActionLog{ActuatorType: Pump.LogType(), Action: ActionOn}
	assert.Equal(t, "Water Pump ON", l.Formatted().ActionText)

	l = ActuatorActionLog{ActuatorType: Fan.LogType(), Action: ActionFor(false)}
	assert.Equal(t, "Cooling Fan OFF", l.Formatted().ActionText)
}
