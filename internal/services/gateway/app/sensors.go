package app

import (
	"net/http"
	"time"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
)

func (g *Gateway) HandleCurrentReading(w http.ResponseWriter, r *http.Request) {
	s, source, err := g.readings.Latest(r.Context())
	if err != nil {
		g.serverError(w, r, err, "No sensor data available")
		return
	}
	w.Header().Set("X-Data-Source", source)
	writeJSON(w, http.StatusOK, s)
}

func (g *Gateway) HandleReadingHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 100)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	tr, err := g.timeRange(r, 24*time.Hour)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	rows, err := g.readings.History(r.Context(), tr, limit)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, newList(rows))
}

func (g *Gateway) HandleAggregatedReadings(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("interval")
	if name == "" {
		name = "hourly"
	}
	every, err := persistence.Interval(name)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	tr, err := g.timeRange(r, 7*24*time.Hour)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	rows, err := g.readings.Aggregated(r.Context(), tr, every)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	if rows == nil {
		rows = []persistence.AggregatedReading{}
	}
	writeJSON(w, http.StatusOK, aggregatedResponse{
		Interval:  name,
		StartDate: tr.Start,
		EndDate:   tr.End,
		Count:     len(rows),
		Data:      rows,
	})
}

func (g *Gateway) HandleReadingStats(w http.ResponseWriter, r *http.Request) {
	since, _, err := g.since(r)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	st, err := g.readings.Stats(r.Context(), persistence.TimeRange{Start: since, End: g.now().UTC()})
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
