package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
)

func (g *Gateway) HandleActuatorStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.engine.ActuatorStatus())
}

// HandleActuatorControl switches an actuator. The body must carry a boolean status;
// mode defaults to manual.
func (g *Gateway) HandleActuatorControl(w http.ResponseWriter, r *http.Request) {
	a, err := entities.ActuatorFromLogType(chi.URLParam(r, "actuator"))
	if err != nil {
		g.badRequest(w, err)
		return
	}
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.badRequest(w, fmt.Errorf("status must be a boolean: %w", err))
		return
	}
	if req.Status == nil {
		g.badRequest(w, errors.New("status must be a boolean"))
		return
	}
	mode := entities.ModeManual
	if req.Mode != "" {
		if mode, err = entities.ParseMode(req.Mode); err != nil {
			g.badRequest(w, err)
			return
		}
	}
	var userID *string
	if req.UserID != "" {
		userID = &req.UserID
	}

	log, err := g.engine.ManualControl(r.Context(), a, *req.Status, mode, userID)
	if err != nil {
		if errors.Is(err, entities.ErrUnknownActuator) || errors.Is(err, entities.ErrInvalidMode) {
			g.badRequest(w, err)
			return
		}
		g.serverError(w, r, err, "")
		return
	}
	g.log.Info("actuator controlled via api",
		zap.String("actuator", string(a)), zap.Bool("on", *req.Status), zap.String("mode", string(mode)))

	writeJSON(w, http.StatusOK, controlResponse{
		Success: true,
		Message: fmt.Sprintf("%s turned %s", a.DisplayName(), log.Action),
		Status:  entities.ActuatorRecord{Mode: mode, State: *req.Status},
		Log:     log.Formatted(),
	})
}

func (g *Gateway) HandleActuatorMode(w http.ResponseWriter, r *http.Request) {
	a, err := entities.ActuatorFromLogType(chi.URLParam(r, "actuator"))
	if err != nil {
		g.badRequest(w, err)
		return
	}
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.badRequest(w, err)
		return
	}
	mode, err := entities.ParseMode(req.Mode)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	if err := g.engine.SetActuatorMode(a, mode); err != nil {
		g.badRequest(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s mode set to %s", a.DisplayName(), mode),
		"mode":    mode,
	})
}

func (g *Gateway) HandleActuatorLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, 50)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	f := persistence.LogFilter{Limit: limit}
	if t := r.URL.Query().Get("type"); t != "" {
		a, err := entities.ActuatorFromLogType(t)
		if err != nil {
			g.badRequest(w, err)
			return
		}
		f.ActuatorType = a.LogType()
	}
	if f.Start, err = queryTime(r, "startDate"); err != nil {
		g.badRequest(w, err)
		return
	}
	if f.End, err = queryTime(r, "endDate"); err != nil {
		g.badRequest(w, err)
		return
	}

	logs, err := g.records.ListActionLogs(r.Context(), f)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	out := make([]entities.FormattedActionLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, l.Formatted())
	}
	writeJSON(w, http.StatusOK, newList(out))
}

func (g *Gateway) HandleActuatorStats(w http.ResponseWriter, r *http.Request) {
	since, _, err := g.since(r)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	stats, err := g.records.ActionLogStats(r.Context(), since)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
