// Package app serves the HTTP query and control API.
package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
)

type Config struct {
	HTTPTimeout    time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
}

type Gateway struct {
	cfg      Config
	engine   Engine
	readings ReadingQueries
	records  RecordQueries
	log      *zap.Logger
	now      func() time.Time
}

func NewGateway(cfg Config, engine Engine, readings ReadingQueries, records RecordQueries) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	return &Gateway{cfg: cfg, engine: engine, readings: readings, records: records, log: cfg.Logger, now: time.Now}
}

// Routes mounts the /api tree. Extra handlers (health, metrics, ws) are mounted by the caller.
func (g *Gateway) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(g.cfg.HTTPTimeout))

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/current", g.HandleCurrentReading)
			r.Get("/history", g.HandleReadingHistory)
			r.Get("/aggregated", g.HandleAggregatedReadings)
			r.Get("/stats", g.HandleReadingStats)
		})
		r.Route("/actuators", func(r chi.Router) {
			r.Get("/status", g.HandleActuatorStatus)
			r.Get("/logs", g.HandleActuatorLogs)
			r.Get("/stats", g.HandleActuatorStats)
			r.Post("/{actuator}/control", g.HandleActuatorControl)
			r.Put("/{actuator}/mode", g.HandleActuatorMode)
		})
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", g.HandleListAlerts)
			r.Get("/latest", g.HandleLatestAlert)
			r.Get("/stats", g.HandleAlertStats)
			r.Post("/acknowledge-all", g.HandleAcknowledgeAll)
			r.Patch("/{id}/acknowledge", g.HandleAcknowledgeAlert)
		})
		r.Route("/settings", func(r chi.Router) {
			r.Get("/", g.HandleGetSettings)
			r.Put("/thresholds", g.HandleUpdateThresholds)
			r.Put("/gsm", g.HandleUpdateGSM)
			r.Put("/notifications", g.HandleUpdateNotifications)
		})
	})
}

// NewRouter returns a router with the common middleware and the /api tree.
func (g *Gateway) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(g.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(g.cfg.AllowedOrigins))
	g.Routes(r)
	return r
}

func (g *Gateway) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		g.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func cors(allowed []string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := set[origin]; ok || (len(set) == 0 && origin != "") {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (g *Gateway) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Bad request", Error: err.Error()})
}

// serverError maps store errors to a response; ErrNotFound becomes 404 with msg.
func (g *Gateway) serverError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	if errors.Is(err, persistence.ErrNotFound) && notFoundMsg != "" {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: notFoundMsg})
		return
	}
	g.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Server error", Error: err.Error()})
}
