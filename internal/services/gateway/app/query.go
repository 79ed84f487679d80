package app

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/LeonardoBeccarini/sdcc_greenhouse/internal/services/persistence"
)

const maxLimit = 1000

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func queryLimit(r *http.Request, def int) (int, error) {
	n, err := queryInt(r, "limit", def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		n = def
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// queryTime accepts RFC3339 or a plain date (2006-01-02).
func queryTime(r *http.Request, key string) (*time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: invalid date %q", key, raw)
}

func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be true or false", key)
	}
	return &b, nil
}

// timeRange reads startDate/endDate, defaulting to the trailing window ending now.
func (g *Gateway) timeRange(r *http.Request, window time.Duration) (persistence.TimeRange, error) {
	start, err := queryTime(r, "startDate")
	if err != nil {
		return persistence.TimeRange{}, err
	}
	end, err := queryTime(r, "endDate")
	if err != nil {
		return persistence.TimeRange{}, err
	}
	tr := persistence.TimeRange{End: g.now().UTC()}
	if end != nil {
		tr.End = *end
	}
	tr.Start = tr.End.Add(-window)
	if start != nil {
		tr.Start = *start
	}
	if !tr.Start.Before(tr.End) {
		return tr, fmt.Errorf("startDate must be before endDate")
	}
	return tr, nil
}

// since returns the cutoff for ?days=N (default 7).
func (g *Gateway) since(r *http.Request) (time.Time, int, error) {
	days, err := queryInt(r, "days", 7)
	if err != nil {
		return time.Time{}, 0, err
	}
	if days == 0 {
		days = 7
	}
	return g.now().UTC().AddDate(0, 0, -days), days, nil
}
