package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// InfluxStore keeps sensor readings as points tagged by device.
type InfluxStore struct {
	client      influxdb2.Client
	write       api.WriteAPIBlocking
	query       api.QueryAPI
	bucket      string
	measurement string
	log         *zap.Logger
}

func NewInfluxStore(client influxdb2.Client, cfg InfluxConfig, log *zap.Logger) (*InfluxStore, error) {
	if client == nil || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx config incomplete")
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := cfg.Measurement
	if m == "" {
		m = "sensor_reading"
	}
	return &InfluxStore{
		client:      client,
		write:       client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:       client.QueryAPI(cfg.Org),
		bucket:      cfg.Bucket,
		measurement: sanitizeMeasurement(m),
		log:         log,
	}, nil
}

func (s *InfluxStore) SaveReading(ctx context.Context, r entities.SensorSample) error {
	t := r.Timestamp
	if t.IsZero() {
		t = time.Now()
	}
	fields := map[string]interface{}{
		"temperature": r.Temperature,
		"humidity":    r.Humidity,
	}
	if r.SoilMoisture != nil {
		fields["soil_moisture"] = *r.SoilMoisture
	}
	if r.WaterLevel != nil {
		fields["water_level"] = *r.WaterLevel
	}
	point := influxdb2.NewPoint(s.measurement, map[string]string{"device_id": r.DeviceID}, fields, t)
	if err := s.write.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// Ping reports whether the server answers.
func (s *InfluxStore) Ping(ctx context.Context) error {
	ok, err := s.client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influx ping failed")
	}
	return nil
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (r TimeRange) flux() string {
	return fmt.Sprintf("range(start: %s, stop: %s)", r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339))
}

const pivot = `pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`

func (s *InfluxStore) latestFlux() string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -30d)
  |> filter(fn: (r) => r._measurement == %q)
  |> last()
  |> %s
`, s.bucket, s.measurement, pivot)
}

func (s *InfluxStore) historyFlux(tr TimeRange, limit int) string {
	return fmt.Sprintf(`
from(bucket: %q)
  |> %s
  |> filter(fn: (r) => r._measurement == %q)
  |> %s
  |> group()
  |> sort(columns: ["_time"], desc: true)
  |> limit(n: %d)
`, s.bucket, tr.flux(), s.measurement, pivot, limit)
}

// aggregateFlux computes fn over every field in windows of every.
func (s *InfluxStore) aggregateFlux(tr TimeRange, every, fn string, fields ...string) string {
	filter := ""
	if len(fields) > 0 {
		parts := make([]string, 0, len(fields))
		for _, f := range fields {
			parts = append(parts, fmt.Sprintf("r._field == %q", f))
		}
		filter = fmt.Sprintf("\n  |> filter(fn: (r) => %s)", strings.Join(parts, " or "))
	}
	// a plain aggregate drops _time, so the pivot keys on the range start instead
	window := fmt.Sprintf("\n  |> %s()", fn)
	rowKey := "_start"
	if every != "" {
		window = fmt.Sprintf("\n  |> aggregateWindow(every: %s, fn: %s, createEmpty: false)", every, fn)
		rowKey = "_time"
	}
	return fmt.Sprintf(`
from(bucket: %q)
  |> %s
  |> filter(fn: (r) => r._measurement == %q)%s
  |> group(columns: ["_field"])%s
  |> pivot(rowKey: [%q], columnKey: ["_field"], valueColumn: "_value")
`, s.bucket, tr.flux(), s.measurement, filter, window, rowKey)
}

func (s *InfluxStore) Latest(ctx context.Context) (entities.SensorSample, error) {
	rows, err := s.rows(ctx, s.latestFlux())
	if err != nil {
		return entities.SensorSample{}, err
	}
	if len(rows) == 0 {
		return entities.SensorSample{}, ErrNotFound
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time().After(rows[j].Time()) })
	return recordToSample(rows[0]), nil
}

func (s *InfluxStore) History(ctx context.Context, tr TimeRange, limit int) ([]entities.SensorSample, error) {
	rows, err := s.rows(ctx, s.historyFlux(tr, limit))
	if err != nil {
		return nil, err
	}
	out := make([]entities.SensorSample, 0, len(rows))
	for _, r := range rows {
		out = append(out, recordToSample(r))
	}
	return out, nil
}

// AggregatedReading is one time bucket of aggregated readings.
type AggregatedReading struct {
	Timestamp       time.Time `json:"timestamp"`
	AvgTemperature  *float64  `json:"avgTemperature"`
	AvgHumidity     *float64  `json:"avgHumidity"`
	AvgSoilMoisture *float64  `json:"avgSoilMoisture"`
	AvgWaterLevel   *float64  `json:"avgWaterLevel"`
	MinTemperature  *float64  `json:"minTemperature"`
	MaxTemperature  *float64  `json:"maxTemperature"`
	Count           int64     `json:"count"`
}

// Interval returns the Flux window duration for "hourly" and "daily".
func Interval(name string) (string, error) {
	switch name {
	case "", "hourly":
		return "1h", nil
	case "daily":
		return "1d", nil
	}
	return "", fmt.Errorf("unsupported interval %q", name)
}

func (s *InfluxStore) Aggregated(ctx context.Context, tr TimeRange, every string) ([]AggregatedReading, error) {
	means, err := s.rows(ctx, s.aggregateFlux(tr, every, "mean"))
	if err != nil {
		return nil, err
	}
	mins, err := s.rows(ctx, s.aggregateFlux(tr, every, "min", "temperature"))
	if err != nil {
		return nil, err
	}
	maxs, err := s.rows(ctx, s.aggregateFlux(tr, every, "max", "temperature"))
	if err != nil {
		return nil, err
	}
	counts, err := s.rows(ctx, s.aggregateFlux(tr, every, "count", "temperature"))
	if err != nil {
		return nil, err
	}
	return mergeAggregates(means, mins, maxs, counts), nil
}

func mergeAggregates(means, mins, maxs, counts []*query.FluxRecord) []AggregatedReading {
	byTime := map[time.Time]*AggregatedReading{}
	get := func(t time.Time) *AggregatedReading {
		t = t.UTC()
		if a, ok := byTime[t]; ok {
			return a
		}
		a := &AggregatedReading{Timestamp: t}
		byTime[t] = a
		return a
	}
	for _, r := range means {
		a := get(r.Time())
		a.AvgTemperature = optF64(r.ValueByKey("temperature"))
		a.AvgHumidity = optF64(r.ValueByKey("humidity"))
		a.AvgSoilMoisture = optF64(r.ValueByKey("soil_moisture"))
		a.AvgWaterLevel = optF64(r.ValueByKey("water_level"))
	}
	for _, r := range mins {
		get(r.Time()).MinTemperature = optF64(r.ValueByKey("temperature"))
	}
	for _, r := range maxs {
		get(r.Time()).MaxTemperature = optF64(r.ValueByKey("temperature"))
	}
	for _, r := range counts {
		if v := optF64(r.ValueByKey("temperature")); v != nil {
			get(r.Time()).Count = int64(*v)
		}
	}
	out := make([]AggregatedReading, 0, len(byTime))
	for _, a := range byTime {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

type ReadingStats struct {
	AvgTemperature  *float64 `json:"avgTemperature"`
	AvgHumidity     *float64 `json:"avgHumidity"`
	AvgSoilMoisture *float64 `json:"avgSoilMoisture"`
	AvgWaterLevel   *float64 `json:"avgWaterLevel"`
	MinTemperature  *float64 `json:"minTemperature"`
	MaxTemperature  *float64 `json:"maxTemperature"`
	MinSoilMoisture *float64 `json:"minSoilMoisture"`
	MaxSoilMoisture *float64 `json:"maxSoilMoisture"`
	TotalReadings   int64    `json:"totalReadings"`
}

func (s *InfluxStore) Stats(ctx context.Context, tr TimeRange) (ReadingStats, error) {
	var st ReadingStats
	means, err := s.rows(ctx, s.aggregateFlux(tr, "", "mean"))
	if err != nil {
		return st, err
	}
	mins, err := s.rows(ctx, s.aggregateFlux(tr, "", "min", "temperature", "soil_moisture"))
	if err != nil {
		return st, err
	}
	maxs, err := s.rows(ctx, s.aggregateFlux(tr, "", "max", "temperature", "soil_moisture"))
	if err != nil {
		return st, err
	}
	counts, err := s.rows(ctx, s.aggregateFlux(tr, "", "count", "temperature"))
	if err != nil {
		return st, err
	}
	for _, r := range means {
		st.AvgTemperature = optF64(r.ValueByKey("temperature"))
		st.AvgHumidity = optF64(r.ValueByKey("humidity"))
		st.AvgSoilMoisture = optF64(r.ValueByKey("soil_moisture"))
		st.AvgWaterLevel = optF64(r.ValueByKey("water_level"))
	}
	for _, r := range mins {
		st.MinTemperature = optF64(r.ValueByKey("temperature"))
		st.MinSoilMoisture = optF64(r.ValueByKey("soil_moisture"))
	}
	for _, r := range maxs {
		st.MaxTemperature = optF64(r.ValueByKey("temperature"))
		st.MaxSoilMoisture = optF64(r.ValueByKey("soil_moisture"))
	}
	for _, r := range counts {
		if v := optF64(r.ValueByKey("temperature")); v != nil {
			st.TotalReadings = int64(*v)
		}
	}
	return st, nil
}

func (s *InfluxStore) rows(ctx context.Context, flux string) ([]*query.FluxRecord, error) {
	res, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influx query: %w", err)
	}
	defer func() { _ = res.Close() }()

	var out []*query.FluxRecord
	for res.Next() {
		out = append(out, res.Record())
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("influx iterate: %w", err)
	}
	return out, nil
}

func recordToSample(r *query.FluxRecord) entities.SensorSample {
	s := entities.SensorSample{Timestamp: r.Time().UTC()}
	if v, ok := r.ValueByKey("device_id").(string); ok {
		s.DeviceID = v
	}
	if v := optF64(r.ValueByKey("temperature")); v != nil {
		s.Temperature = *v
	}
	if v := optF64(r.ValueByKey("humidity")); v != nil {
		s.Humidity = *v
	}
	s.SoilMoisture = optF64(r.ValueByKey("soil_moisture"))
	s.WaterLevel = optF64(r.ValueByKey("water_level"))
	return s
}

func optF64(v interface{}) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	case int:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	return &f
}

func sanitizeMeasurement(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
