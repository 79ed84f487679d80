package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
)

func (g *Gateway) HandleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 50)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	f := persistence.AlertFilter{Limit: limit}
	if t := r.URL.Query().Get("type"); t != "" {
		f.Severity = entities.Severity(t)
		if !f.Severity.Valid() {
			g.badRequest(w, fmt.Errorf("unknown alert type %q", t))
			return
		}
	}
	if f.Acknowledged, err = queryBool(r, "acknowledged"); err != nil {
		g.badRequest(w, err)
		return
	}
	if f.Start, err = queryTime(r, "startDate"); err != nil {
		g.badRequest(w, err)
		return
	}
	if f.End, err = queryTime(r, "endDate"); err != nil {
		g.badRequest(w, err)
		return
	}

	alerts, err := g.records.ListAlerts(r.Context(), f)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, newList(alerts))
}

func (g *Gateway) HandleLatestAlert(w http.ResponseWriter, r *http.Request) {
	a, err := g.records.LatestUnacknowledged(r.Context())
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "No unacknowledged alerts"})
			return
		}
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (g *Gateway) HandleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	a, err := g.records.AcknowledgeAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.serverError(w, r, err, "Alert not found")
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: "Alert acknowledged", Alert: &a})
}

func (g *Gateway) HandleAcknowledgeAll(w http.ResponseWriter, r *http.Request) {
	n, err := g.records.AcknowledgeAll(r.Context())
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true, Message: fmt.Sprintf("%d alerts acknowledged", n)})
}

func (g *Gateway) HandleAlertStats(w http.ResponseWriter, r *http.Request) {
	since, _, err := g.since(r)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	stats, err := g.records.AlertStats(r.Context(), since)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
