package loungeapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

const testSession = "6f1c2b9e-3d4a-4f5b-9c8d-7e6f5a4b3c2d"

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 1, 10, 15, 30, 123456000, time.UTC)
	cases := []string{
		"2024-03-01T10:15:30.123456Z",
		"2024-03-01 10:15:30.123456+00:00",
		"2024-03-01 15:45:30.123456+05:30",
		"2024-03-01 10:15:30.123456",
		"2024-03-01T10:15:30.123456",
	}
	for _, value := range cases {
		got, err := ParseTimestamp(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if !got.Equal(want) {
			t.Fatalf("parse %q: got %s want %s", value, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for garbage timestamp")
	}
}

func TestFormatTimestamp_RealPrecision(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 15, 30, 0, time.FixedZone("IST", 19800))
	if got := FormatTimestamp(ts); got != "2024-03-01 04:45:30.000000+00:00" {
		t.Fatalf("unexpected wire timestamp %s", got)
	}
}

func TestClient_StartSystemSendsContract(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/systems/"+testSession+"/" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing request id")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"id": 11, "user_id": "` + testSession + `", "name": "console", "amount": "50.00", "start_time": "2024-03-01 10:00:00.000000+00:00", "end_time": null}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL + "/")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	system, err := client.StartSystem(context.Background(), testSession, "console", 50, start)
	if err != nil {
		t.Fatalf("start system: %v", err)
	}
	if system.ID != 11 || float64(system.Amount) != 50 || !system.StartTime.Equal(start) || !system.EndTime.IsZero() {
		t.Fatalf("unexpected system %+v", system)
	}
	if got["name"] != "console" || got["amount"] != 50.0 || got["start_time"] != "2024-03-01 10:00:00.000000+00:00" {
		t.Fatalf("unexpected request body %+v", got)
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 3, "name": "lounge", "amount": 50}]`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	_, err := client.ListSystems(context.Background(), testSession)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected malformed response, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Op != "list systems" {
		t.Fatalf("expected api error with op, got %v", err)
	}
}

func TestClient_BackendMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": "system already running"}`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	_, err := client.PlaceOrder(context.Background(), testSession, "Fries", 1, 10)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "system already running" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
}

func TestClient_InvalidSessionID(t *testing.T) {
	client, _ := NewClient("http://127.0.0.1:1")
	if _, err := client.ListOrders(context.Background(), "../admin"); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected invalid session id, got %v", err)
	}
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, WithBreaker(3, time.Minute))
	for i := 0; i < 3; i++ {
		if _, err := client.Activity(context.Background()); err == nil {
			t.Fatalf("expected failure %d", i)
		}
	}
	if client.BreakerState() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", client.BreakerState())
	}
	_, err := client.Activity(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("open breaker must not reach backend, calls=%d", calls)
	}
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "registration not found"}`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL, WithBreaker(2, time.Minute))
	for i := 0; i < 4; i++ {
		_, err := client.GetRegistration(context.Background(), testSession)
		if !IsNotFound(err) {
			t.Fatalf("expected not found, got %v", err)
		}
	}
	if client.BreakerState() != gobreaker.StateClosed {
		t.Fatalf("expected closed breaker, got %s", client.BreakerState())
	}
}

func TestClient_FinalizeFallsBackToBill(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/finalize/"):
			var body map[string]float64
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["discount_percentage"] != 10 {
				t.Errorf("unexpected discount %v", body)
			}
			_, _ = w.Write([]byte(`{"status": "finalized"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/billing/"+testSession+"/":
			_, _ = w.Write([]byte(`{"systems": [{"id": 1, "name": "lounge", "amount": 50, "start_time": "2024-03-01T10:00:00Z", "end_time": "2024-03-01T11:30:00Z"}], "orders": [{"id": 2, "item_name": "Fries", "quantity": 2, "price": "10.00"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	bill, err := client.FinalizeBill(context.Background(), testSession, 10)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if len(bill.Systems) != 1 || len(bill.Orders) != 1 || float64(bill.Orders[0].Price) != 10 {
		t.Fatalf("unexpected bill %+v", bill)
	}
}

func TestClient_DailyBillsNumericUserID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") != "2024-03-01" {
			t.Errorf("unexpected date %q", r.URL.Query().Get("date"))
		}
		_, _ = w.Write([]byte(`[{"user_id": 42, "username": "Asha", "amount": 103.5, "date": "2024-03-01", "bill_verified": true}]`))
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	bills, err := client.DailyBills(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("daily bills: %v", err)
	}
	if len(bills) != 1 || bills[0].UserID != "42" || !bills[0].BillVerified {
		t.Fatalf("unexpected bills %+v", bills)
	}
}

func TestSeriesPoint_FlexibleKeys(t *testing.T) {
	var points []SeriesPoint
	payload := `[{"period": "2024-03-01", "count": 4}, {"date": "2024-03-02", "income": "150.50"}]`
	if err := json.Unmarshal([]byte(payload), &points); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if points[0].Label != "2024-03-01" || points[0].Value != 4 || points[1].Value != 150.5 {
		t.Fatalf("unexpected points %+v", points)
	}
}

func TestClient_FinalizeBillUnread(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/finalize/") {
			_, _ = w.Write([]byte(`{"status": "finalized"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, _ := NewClient(server.URL)
	_, err := client.FinalizeBill(context.Background(), testSession, 0)
	if !errors.Is(err, ErrBillUnread) {
		t.Fatalf("expected unread bill, got %v", err)
	}
}
