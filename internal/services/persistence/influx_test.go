package persistence

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInflux() *InfluxStore {
	return &InfluxStore{bucket: "greenhouse", measurement: "sensor_reading"}
}

func TestInterval(t *testing.T) {
	every, err := Interval("")
	require.NoError(t, err)
	assert.Equal(t, "1h", every)

	every, err = Interval("daily")
	require.NoError(t, err)
	assert.Equal(t, "1d", every)

	_, err = Interval("weekly")
	assert.Error(t, err)
}

func TestHistoryFlux(t *testing.T) {
	tr := TimeRange{Start: base.Add(-time.Hour), End: base}
	q := testInflux().historyFlux(tr, 25)

	assert.Contains(t, q, `from(bucket: "greenhouse")`)
	assert.Contains(t, q, "range(start: 2026-04-10T11:00:00Z, stop: 2026-04-10T12:00:00Z)")
	assert.Contains(t, q, `r._measurement == "sensor_reading"`)
	assert.Contains(t, q, "limit(n: 25)")
}

func TestAggregateFlux(t *testing.T) {
	tr := TimeRange{Start: base.Add(-24 * time.Hour), End: base}

	windowed := testInflux().aggregateFlux(tr, "1h", "min", "temperature")
	assert.Contains(t, windowed, "aggregateWindow(every: 1h, fn: min, createEmpty: false)")
	assert.Contains(t, windowed, `r._field == "temperature"`)
	assert.Contains(t, windowed, `pivot(rowKey: ["_time"]`)

	total := testInflux().aggregateFlux(tr, "", "mean")
	assert.Contains(t, total, "|> mean()")
	assert.Contains(t, total, `pivot(rowKey: ["_start"]`)
	assert.NotContains(t, total, "r._field ==")
}

func TestRecordToSample(t *testing.T) {
	rec := query.NewFluxRecord(0, map[string]interface{}{
		"_time":         base,
		"device_id":     "dev-1",
		"temperature":   23.5,
		"humidity":      int64(41),
		"soil_moisture": 37.0,
	})
	s := recordToSample(rec)

	assert.Equal(t, "dev-1", s.DeviceID)
	assert.Equal(t, 23.5, s.Temperature)
	assert.Equal(t, 41.0, s.Humidity)
	require.NotNil(t, s.SoilMoisture)
	assert.Equal(t, 37.0, *s.SoilMoisture)
	assert.Nil(t, s.WaterLevel)
	assert.True(t, s.Timestamp.Equal(base))
}

func TestMergeAggregates(t *testing.T) {
	h1, h2 := base, base.Add(time.Hour)
	rec := func(t time.Time, vals map[string]interface{}) *query.FluxRecord {
		vals["_time"] = t
		return query.NewFluxRecord(0, vals)
	}
	out := mergeAggregates(
		[]*query.FluxRecord{
			rec(h2, map[string]interface{}{"temperature": 24.0, "humidity": 50.0}),
			rec(h1, map[string]interface{}{"temperature": 20.0, "humidity": 55.0, "soil_moisture": 40.0}),
		},
		[]*query.FluxRecord{rec(h1, map[string]interface{}{"temperature": 18.0})},
		[]*query.FluxRecord{rec(h1, map[string]interface{}{"temperature": 22.0})},
		[]*query.FluxRecord{rec(h1, map[string]interface{}{"temperature": int64(12)})},
	)

	require.Len(t, out, 2)
	assert.True(t, out[0].Timestamp.Equal(h1))
	assert.Equal(t, 20.0, *out[0].AvgTemperature)
	assert.Equal(t, 18.0, *out[0].MinTemperature)
	assert.Equal(t, 22.0, *out[0].MaxTemperature)
	assert.Equal(t, int64(12), out[0].Count)
	assert.Nil(t, out[1].AvgSoilMoisture)
}

func TestSanitizeMeasurement(t *testing.T) {
	assert.Equal(t, "sensor_reading_v2", sanitizeMeasurement("sensor reading/v2"))
}
