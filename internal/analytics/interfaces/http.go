package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	analytics "lounge-desk/internal/analytics/application"
	billinghttp "lounge-desk/internal/billing/interfaces"
	billing "lounge-desk/internal/billing/domain"
)

const dateLayout = "2006-01-02"

// Handler serves dashboard APIs under /api/v1/analytics.
type Handler struct {
	dashboard *analytics.Dashboard
}

// NewHandler constructs a handler.
func NewHandler(dashboard *analytics.Dashboard) (*Handler, error) {
	if dashboard == nil {
		return nil, errors.New("analytics handler: nil dashboard")
	}
	return &Handler{dashboard: dashboard}, nil
}

// ServeHTTP handles GET /api/v1/analytics/{registrations,income,duration,activity}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/analytics/"), "/")
	if name == "activity" {
		split, err := h.dashboard.Activity(r.Context())
		if err != nil {
			billinghttp.RespondError(w, err)
			return
		}
		writeJSON(w, split)
		return
	}

	var fetch func(analytics.Range) (analytics.Series, error)
	switch name {
	case "registrations":
		fetch = func(rg analytics.Range) (analytics.Series, error) { return h.dashboard.Registrations(r.Context(), rg) }
	case "income":
		fetch = func(rg analytics.Range) (analytics.Series, error) { return h.dashboard.Income(r.Context(), rg) }
	case "duration":
		fetch = func(rg analytics.Range) (analytics.Series, error) {
			return h.dashboard.AverageSessionDuration(r.Context(), rg)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	rg, err := parseRange(r)
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	series, err := fetch(rg)
	if err != nil {
		billinghttp.RespondError(w, err)
		return
	}
	writeJSON(w, series)
}

func parseRange(r *http.Request) (analytics.Range, error) {
	query := r.URL.Query()
	start, err := parseDate("start_date", query.Get("start_date"))
	if err != nil {
		return analytics.Range{}, err
	}
	end, err := parseDate("end_date", query.Get("end_date"))
	if err != nil {
		return analytics.Range{}, err
	}
	period, err := analytics.ParsePeriod(query.Get("period"))
	if err != nil {
		return analytics.Range{}, err
	}
	return analytics.NewRange(start, end, period)
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &billing.ValidationError{Field: field, Reason: "must be YYYY-MM-DD"}
	}
	return parsed, nil
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
