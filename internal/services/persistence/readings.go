package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

// SeriesStore is the time-series backend for readings.
type SeriesStore interface {
	SaveReading(ctx context.Context, s entities.SensorSample) error
	Latest(ctx context.Context) (entities.SensorSample, error)
	History(ctx context.Context, tr TimeRange, limit int) ([]entities.SensorSample, error)
	Aggregated(ctx context.Context, tr TimeRange, every string) ([]AggregatedReading, error)
	Stats(ctx context.Context, tr TimeRange) (ReadingStats, error)
}

type Cache interface {
	SaveReading(ctx context.Context, s entities.SensorSample) error
	Latest(ctx context.Context) (entities.SensorSample, error)
}

// Readings writes samples to the series store behind a circuit breaker and mirrors the
// latest one into the cache. It remembers when the last write failed, for readiness.
type Readings struct {
	series  SeriesStore
	cache   Cache
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger

	// cacheTimeout caps the mirror write so an unreachable cache cannot stall ingestion.
	cacheTimeout time.Duration

	mu      sync.RWMutex
	lastErr time.Time
	now     func() time.Time
}

const defaultCacheTimeout = 500 * time.Millisecond

func NewReadings(series SeriesStore, cache Cache, log *zap.Logger) *Readings {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Readings{
		series:  series,
		cache:   cache,
		log:          log,
		cacheTimeout: defaultCacheTimeout,
		lastErr:      time.Now().Add(-24 * time.Hour),
		now:          time.Now,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "readings",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", zap.String("name", name),
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return r
}

func (r *Readings) SaveReading(ctx context.Context, s entities.SensorSample) error {
	var errs []error
	if r.cache != nil {
		cctx, cancel := context.WithTimeout(ctx, r.cacheTimeout)
		err := r.cache.SaveReading(cctx, s)
		cancel()
		if err != nil {
			errs = append(errs, err)
		}
	}
	if r.series != nil {
		_, err := r.breaker.Execute(func() (interface{}, error) {
			return nil, r.series.SaveReading(ctx, s)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		r.markError()
		return err
	}
	return nil
}

// Latest prefers the series store and falls back to the cache. source names the one used.
func (r *Readings) Latest(ctx context.Context) (s entities.SensorSample, source string, err error) {
	if r.series != nil {
		v, qerr := r.breaker.Execute(func() (interface{}, error) {
			return r.series.Latest(ctx)
		})
		if qerr == nil {
			return v.(entities.SensorSample), "influx", nil
		}
		err = qerr
		if !errors.Is(qerr, ErrNotFound) {
			r.log.Warn("latest reading from influx failed, using cache", zap.Error(qerr))
		}
	}
	if r.cache != nil {
		s, cerr := r.cache.Latest(ctx)
		if cerr == nil {
			return s, "cache", nil
		}
		if err == nil || errors.Is(err, ErrNotFound) {
			err = cerr
		}
	}
	if err == nil {
		err = ErrNotFound
	}
	return entities.SensorSample{}, "", err
}

func (r *Readings) History(ctx context.Context, tr TimeRange, limit int) ([]entities.SensorSample, error) {
	if r.series == nil {
		return nil, ErrNotFound
	}
	return r.series.History(ctx, tr, limitOr(limit, 100))
}

func (r *Readings) Aggregated(ctx context.Context, tr TimeRange, every string) ([]AggregatedReading, error) {
	if r.series == nil {
		return nil, ErrNotFound
	}
	return r.series.Aggregated(ctx, tr, every)
}

func (r *Readings) Stats(ctx context.Context, tr TimeRange) (ReadingStats, error) {
	if r.series == nil {
		return ReadingStats{}, ErrNotFound
	}
	return r.series.Stats(ctx, tr)
}

func (r *Readings) markError() {
	r.mu.Lock()
	r.lastErr = r.now()
	r.mu.Unlock()
}

// LastErrorAge is how long ago a write last failed.
func (r *Readings) LastErrorAge() time.Duration {
	if r == nil {
		return 99999 * time.Hour
	}
	r.mu.RLock()
	t := r.lastErr
	r.mu.RUnlock()
	return r.now().Sub(t)
}

func (r *Readings) BreakerState() string {
	return r.breaker.State().String()
}
