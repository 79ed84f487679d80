// Package health reports liveness and readiness over HTTP and gRPC.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the name registered with the gRPC health server.
const ServiceName = "greenhouse.Controller"

type Broker interface {
	IsConnected() bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type SeriesWriter interface {
	LastErrorAge() time.Duration
	BreakerState() string
}

type Checker struct {
	broker  Broker
	db      Pinger
	series  SeriesWriter
	viewers func() int

	// series writes must have been error free for at least this long to count as ready
	minErrorAge time.Duration
	timeout     time.Duration
	started     time.Time
	now         func() time.Time
}

func NewChecker(broker Broker, db Pinger, series SeriesWriter, viewers func() int) *Checker {
	return &Checker{
		broker:      broker,
		db:          db,
		series:      series,
		viewers:     viewers,
		minErrorAge: 30 * time.Second,
		timeout:     2 * time.Second,
		started:     time.Now(),
		now:         time.Now,
	}
}

type Report struct {
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
	UptimeSec       float64   `json:"uptime_sec"`
	MQTTConnected   bool      `json:"mqtt_connected"`
	DatabaseOK      bool      `json:"database_ok"`
	SeriesBreaker   string    `json:"series_breaker"`
	LastWriteErrorS float64   `json:"last_write_error_age_sec"`
	Viewers         int       `json:"viewers"`
}

// Check probes every dependency. Status is "ok" when all are healthy,
// "degraded" when some are, "down" otherwise.
func (c *Checker) Check(ctx context.Context) Report {
	now := c.now()
	r := Report{Timestamp: now.UTC(), UptimeSec: now.Sub(c.started).Seconds()}
	r.MQTTConnected = c.broker != nil && c.broker.IsConnected()
	if c.db != nil {
		pctx, cancel := context.WithTimeout(ctx, c.timeout)
		r.DatabaseOK = c.db.Ping(pctx) == nil
		cancel()
	}
	seriesOK := false
	if c.series != nil {
		age := c.series.LastErrorAge()
		r.LastWriteErrorS = age.Seconds()
		r.SeriesBreaker = c.series.BreakerState()
		seriesOK = age > c.minErrorAge && r.SeriesBreaker != "open"
	}
	if c.viewers != nil {
		r.Viewers = c.viewers()
	}

	switch {
	case r.MQTTConnected && r.DatabaseOK && seriesOK:
		r.Status = "ok"
	case r.MQTTConnected || r.DatabaseOK:
		r.Status = "degraded"
	default:
		r.Status = "down"
	}
	return r
}

// Ready requires the broker link and the database.
func (c *Checker) Ready(ctx context.Context) bool {
	r := c.Check(ctx)
	return r.MQTTConnected && r.DatabaseOK
}

// HealthHandler always answers 200 with the full report.
func (c *Checker) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, c.Check(r.Context()))
	})
}

// LiveHandler answers 200 while the process can serve requests at all.
func (c *Checker) LiveHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})
}

// ReadyHandler answers 503 until Ready holds.
func (c *Checker) ReadyHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ready := c.Ready(r.Context())
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, struct {
			Ready bool `json:"ready"`
		}{ready})
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// NewGRPCServer returns a gRPC health server that starts NOT_SERVING.
func NewGRPCServer() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Watch mirrors Ready into hs every interval until ctx is done, then marks the
// server as shutting down.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := healthpb.HealthCheckResponse_UNKNOWN
	update := func() {
		st := healthpb.HealthCheckResponse_NOT_SERVING
		if c.Ready(ctx) {
			st = healthpb.HealthCheckResponse_SERVING
		}
		if st != last {
			log.Info("serving status changed", zap.String("status", st.String()))
			last = st
		}
		hs.SetServingStatus(ServiceName, st)
		hs.SetServingStatus("", st)
	}

	update()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			update()
		}
	}
}
