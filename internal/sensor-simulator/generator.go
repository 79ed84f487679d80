package sensor_simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/messages"
)

const (
	// percentage points per minute
	pumpGainPerMin  = 4.0
	soilDecayPerMin = 0.5
	tankDrainPerMin = 1.5

	// degrees per minute
	fanCoolingPerMin = 0.8
	heatRelaxPerMin  = 0.05

	defaultSoilSeed = 45.0

	soilGridsURL = "https://rest.isric.org/soilgrids/v2.0/properties/query?lat=%f&lon=%f&property=wv0010"
)

// Environment models the greenhouse the device sits in. Pump and fan states feed
// back into soil moisture, water level and temperature.
type Environment struct {
	mu sync.Mutex

	soil, temp, humidity, water float64
	pump, fan                   bool

	ambient    float64 // daily mean temperature
	last       time.Time
	rng        *rand.Rand
	httpClient *http.Client
}

func NewEnvironment(ambient float64, rng *rand.Rand) *Environment {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Environment{
		soil:       defaultSoilSeed,
		temp:       ambient,
		humidity:   60,
		water:      90,
		ambient:    ambient,
		rng:        rng,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

func (e *Environment) SetActuator(a entities.Actuator, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch a {
	case entities.Pump:
		e.pump = on
	case entities.Fan:
		e.fan = on
	}
}

func (e *Environment) Actuator(a entities.Actuator) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a == entities.Fan {
		return e.fan
	}
	return e.pump
}

// Refill tops the water tank up to 100%.
func (e *Environment) Refill() {
	e.mu.Lock()
	e.water = 100
	e.mu.Unlock()
}

// Next advances the model to now and returns the reading the device would publish.
func (e *Environment) Next(deviceID string, now time.Time) messages.SensorDataMessage {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.last.IsZero() {
		e.last = now
	}
	dt := now.Sub(e.last).Minutes()
	if dt < 0 {
		dt = 0
	}
	e.last = now

	if e.pump && e.water > 0 {
		e.soil += pumpGainPerMin * dt
		e.water -= tankDrainPerMin * dt
	} else {
		e.soil -= soilDecayPerMin * dt
	}

	// daily swing of +-6 degrees peaking mid afternoon
	hour := float64(now.Hour()) + float64(now.Minute())/60
	target := e.ambient + 6*math.Sin((hour-9)/24*2*math.Pi)
	e.temp += (target - e.temp) * math.Min(1, heatRelaxPerMin*dt)
	if e.fan {
		e.temp -= fanCoolingPerMin * dt
		e.humidity -= 0.5 * dt
	}
	e.humidity += e.rng.NormFloat64() * 0.8
	e.temp += e.rng.NormFloat64() * 0.1

	e.soil = clamp(e.soil, 0, 100)
	e.water = clamp(e.water, 0, 100)
	e.humidity = clamp(e.humidity, 5, 100)
	e.temp = clamp(e.temp, -10, 50)

	return messages.SensorDataMessage{
		DeviceID:     deviceID,
		Temperature:  entities.Float64(round1(e.temp)),
		Humidity:     entities.Float64(round1(e.humidity)),
		SoilMoisture: entities.Float64(round1(e.soil)),
		WaterLevel:   entities.Float64(round1(e.water)),
	}
}

// SeedFromSoilGrids sets the initial soil moisture from SoilGrids. On failure the
// default seed is kept.
func (e *Environment) SeedFromSoilGrids(ctx context.Context, lat, lon float64) error {
	if lat == 0 && lon == 0 {
		return nil
	}
	url := fmt.Sprintf(soilGridsURL, lat, lon)

	var seed float64
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", "greenhouse-simulator/1.0")
		resp, err := e.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("soilgrids HTTP %d", resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(fmt.Errorf("soilgrids HTTP %d", resp.StatusCode))
		}
		var parsed any
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(err)
		}
		v := extractMoisture(parsed)
		if v < 0 {
			return backoff.Permanent(errors.New("soilgrids: moisture field not found"))
		}
		seed = normalizeWV(v) * 100
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return err
	}

	e.mu.Lock()
	e.soil = clamp(seed, 0, 100)
	e.mu.Unlock()
	return nil
}

// extractMoisture walks {"properties":{"layers":[{"depths":[{"values":{...}}]}]}},
// optionally wrapped in a features array. It returns -1 when nothing is found.
func extractMoisture(v any) float64 {
	m, ok := v.(map[string]any)
	if !ok {
		return -1
	}
	if feats, ok := m["features"].([]any); ok && len(feats) > 0 {
		return extractMoisture(feats[0])
	}
	props, _ := m["properties"].(map[string]any)
	layer := first(props["layers"])
	depth := first(layer["depths"])
	vals, _ := depth["values"].(map[string]any)
	for _, k := range []string{"Q0.5", "mean", "Q0.95", "Q0.05"} {
		if f, ok := vals[k].(float64); ok {
			return f
		}
	}
	return -1
}

func first(v any) map[string]any {
	list, _ := v.([]any)
	if len(list) == 0 {
		return nil
	}
	m, _ := list[0].(map[string]any)
	return m
}

// normalizeWV maps SoilGrids volumetric water content to [0,1]; values above 1.5 are per-mille.
func normalizeWV(x float64) float64 {
	if x > 1.5 {
		x /= 1000
	}
	return clamp(x, 0, 1)
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
