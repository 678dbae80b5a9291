package interfaces

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	analytics "lounge-desk/internal/analytics/application"
	lounge "lounge-desk/internal/loungeapi"
)

func newTestHandler(t *testing.T, backend http.HandlerFunc) *Handler {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)
	client, err := lounge.NewClient(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	dashboard, err := analytics.NewDashboard(client)
	if err != nil {
		t.Fatalf("new dashboard: %v", err)
	}
	handler, err := NewHandler(dashboard)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func TestHandler_DurationSeries(t *testing.T) {
	handler := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analytics/average-session-duration" || r.URL.Query().Get("period") != "weekly" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`[{"week": "2024-W09", "average_duration": 95.5}]`))
	})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/duration?start_date=2024-03-01&end_date=2024-03-07&period=weekly", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("duration: %d %s", resp.Code, resp.Body.String())
	}
	var series analytics.Series
	_ = json.Unmarshal(resp.Body.Bytes(), &series)
	if len(series.Labels) != 1 || series.Labels[0] != "2024-W09" || series.Values[0] != 95.5 {
		t.Fatalf("unexpected series %+v", series)
	}
}

func TestHandler_RangeValidation(t *testing.T) {
	handler := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("request must not reach backend")
	})
	for _, query := range []string{
		"",
		"?start_date=2024-03-01",
		"?start_date=2024-03-08&end_date=2024-03-01",
		"?start_date=2024-03-01&end_date=2024-03-08&period=hourly",
		"?start_date=March&end_date=2024-03-08",
	} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/income"+query, nil))
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("%q: expected 400, got %d", query, resp.Code)
		}
	}
}

func TestHandler_Activity(t *testing.T) {
	handler := newTestHandler(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"active": 4, "inactive": 9}`))
	})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/activity", nil))
	var split analytics.Split
	_ = json.Unmarshal(resp.Body.Bytes(), &split)
	if split.Active != 4 || split.Inactive != 9 {
		t.Fatalf("unexpected split %+v", split)
	}
}
