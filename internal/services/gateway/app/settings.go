package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/model/entities"
)

var gsmNumberRe = regexp.MustCompile(`^\+?[0-9]{6,15}$`)

// HandleGetSettings returns the stored settings with the live thresholds.
func (g *Gateway) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := g.records.Settings(r.Context())
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	st.Thresholds = g.engine.Thresholds()
	writeJSON(w, http.StatusOK, st)
}

// HandleUpdateThresholds accepts either {"thresholds":{...}} or the bare partial set.
func (g *Gateway) HandleUpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Thresholds *entities.PartialThresholdSet `json:"thresholds"`
		entities.PartialThresholdSet
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.badRequest(w, err)
		return
	}
	partial := body.PartialThresholdSet
	if body.Thresholds != nil {
		partial = *body.Thresholds
	}
	if partial.Empty() {
		g.badRequest(w, errors.New("no threshold values supplied"))
		return
	}

	t, err := g.engine.UpdateThresholds(r.Context(), partial)
	if err != nil {
		g.badRequest(w, err)
		return
	}
	g.engine.AnnounceThresholds()
	g.log.Info("thresholds updated via api", zap.Any("thresholds", t))

	st, err := g.records.Settings(r.Context())
	if err != nil {
		g.log.Warn("load settings after threshold update", zap.Error(err))
		st = entities.DefaultSettings()
	}
	st.Thresholds = t
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Message: "Thresholds updated successfully", Settings: st})
}

func (g *Gateway) HandleUpdateGSM(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GSMNumber *string `json:"gsmNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.badRequest(w, err)
		return
	}
	if body.GSMNumber != nil {
		n := strings.ReplaceAll(strings.TrimSpace(*body.GSMNumber), " ", "")
		if n == "" {
			body.GSMNumber = nil
		} else if !gsmNumberRe.MatchString(n) {
			g.badRequest(w, errors.New("invalid GSM number"))
			return
		} else {
			body.GSMNumber = &n
		}
	}
	st, err := g.records.SetGSMNumber(r.Context(), body.GSMNumber)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	st.Thresholds = g.engine.Thresholds()
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Message: "GSM number updated successfully", Settings: st})
}

func (g *Gateway) HandleUpdateNotifications(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled *bool `json:"notificationsEnabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.badRequest(w, err)
		return
	}
	if body.Enabled == nil {
		g.badRequest(w, errors.New("notificationsEnabled must be a boolean"))
		return
	}
	st, err := g.records.SetNotifications(r.Context(), *body.Enabled)
	if err != nil {
		g.serverError(w, r, err, "")
		return
	}
	st.Thresholds = g.engine.Thresholds()
	writeJSON(w, http.StatusOK, settingsResponse{Success: true, Message: "Notification settings updated successfully", Settings: st})
}
