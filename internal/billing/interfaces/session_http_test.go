package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"lounge-desk/internal/audit"
	billingapp "lounge-desk/internal/billing/application"
	billing "lounge-desk/internal/billing/domain"
)

const testSession = "6f1c2b9e-3d4a-4f5b-9c8d-7e6f5a4b3c2d"

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type noopTimer struct{}

func (noopTimer) Stop() {}

type noopTimers struct{}

func (noopTimers) Every(time.Duration, func()) billingapp.Timer { return noopTimer{} }

type stubBackend struct {
	mu            sync.Mutex
	now           time.Time
	stations      []billing.Station
	lines         []billing.FoodLine
	finalizeErr   error
	endCalls      int
	finalizeCalls int
}

func (b *stubBackend) GetRegistration(_ context.Context, sessionID string) (billingapp.Registration, error) {
	return billingapp.Registration{
		SessionID: sessionID,
		Holder:    billing.Holder{Name: "Asha", Phone: "9999999999"},
		EntryAt:   b.now.Add(-time.Hour),
	}, nil
}

func (b *stubBackend) ListStations(context.Context, string) ([]billing.Station, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]billing.Station(nil), b.stations...), nil
}

func (b *stubBackend) ListFoodLines(context.Context, string) ([]billing.FoodLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]billing.FoodLine(nil), b.lines...), nil
}

func (b *stubBackend) StartStation(_ context.Context, _ string, kind billing.Kind, rate float64, startAt time.Time) (billing.Station, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	station := billing.Station{ID: int64(len(b.stations) + 1), Kind: kind, Rate: rate, StartAt: startAt}
	b.stations = append(b.stations, station)
	return station, nil
}

func (b *stubBackend) EndStation(_ context.Context, stationID int64) (billing.Station, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.stations {
		if b.stations[i].ID == stationID {
			end := b.now
			b.stations[i].EndAt = &end
			return b.stations[i], nil
		}
	}
	return billing.Station{}, billing.NewRemoteError("end station", http.StatusNotFound, "", nil)
}

func (b *stubBackend) PlaceOrder(_ context.Context, _ string, line billing.FoodLine) (billing.FoodLine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	line.ID = int64(len(b.lines) + 1)
	b.lines = append(b.lines, line)
	return line, nil
}

func (b *stubBackend) FinalizeBill(context.Context, string, float64) (billingapp.BillSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalizeCalls++
	if b.finalizeErr != nil {
		return billingapp.BillSnapshot{}, b.finalizeErr
	}
	return billingapp.BillSnapshot{
		Stations:  append([]billing.Station(nil), b.stations...),
		FoodLines: append([]billing.FoodLine(nil), b.lines...),
	}, nil
}

func (b *stubBackend) EndSession(context.Context, string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endCalls++
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(_ context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

func newTestHandler(t *testing.T, backend *stubBackend) (*SessionHandler, *recordingAudit, *SSEBroker) {
	t.Helper()
	broker := NewSSEBroker()
	desk, err := billingapp.NewDesk(backend, broker, nil,
		billingapp.WithClock(fixedClock{now: backend.now}),
		billingapp.WithTimerFactory(noopTimers{}),
	)
	if err != nil {
		t.Fatalf("new desk: %v", err)
	}
	t.Cleanup(desk.Shutdown)
	auditLog := &recordingAudit{}
	handler, err := NewSessionHandler(desk, broker, auditLog, "INR", nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler, auditLog, broker
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decodeView(t *testing.T, resp *httptest.ResponseRecorder) billingapp.View {
	t.Helper()
	var view billingapp.View
	if err := json.Unmarshal(resp.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v body=%s", err, resp.Body.String())
	}
	return view
}

func TestSessionHandler_BillingFlow(t *testing.T) {
	backend := &stubBackend{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	handler, auditLog, _ := newTestHandler(t, backend)
	base := sessionsPrefix + testSession

	if resp := do(t, handler, http.MethodPost, base+"/open", ""); resp.Code != http.StatusOK {
		t.Fatalf("open: %d %s", resp.Code, resp.Body.String())
	}
	resp := do(t, handler, http.MethodPost, base+"/stations/console/start", `{"rate": 60}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("start: %d %s", resp.Code, resp.Body.String())
	}
	view := decodeView(t, resp)
	if len(view.ActiveKinds) != 1 || view.ActiveKinds[0] != billing.KindConsole {
		t.Fatalf("expected console running, got %+v", view.ActiveKinds)
	}
	if resp := do(t, handler, http.MethodPost, base+"/stations/console/start", ""); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second start, got %d", resp.Code)
	}

	resp = do(t, handler, http.MethodPost, base+"/food", `{"item_name": "Fries", "price": 40, "quantity": 2}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("add food: %d %s", resp.Code, resp.Body.String())
	}
	if view := decodeView(t, resp); view.FoodTotal != "80.00" {
		t.Fatalf("unexpected food total %s", view.FoodTotal)
	}
	resp = do(t, handler, http.MethodPatch, base+"/food/1", `{"field": "quantity", "value": "3"}`)
	if view := decodeView(t, resp); view.FoodTotal != "120.00" {
		t.Fatalf("unexpected corrected food total %s", view.FoodTotal)
	}

	if resp := do(t, handler, http.MethodPut, base+"/discount", `{"discount_percentage": 10}`); resp.Code != http.StatusOK {
		t.Fatalf("discount: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(t, handler, http.MethodGet, base+"/totals", "")
	var totals map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &totals)
	if totals["total"] != "120.00" || totals["final"] != "108.00" {
		t.Fatalf("unexpected totals %+v", totals)
	}

	resp = do(t, handler, http.MethodPost, base+"/finalize", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("finalize: %d %s", resp.Code, resp.Body.String())
	}
	if view := decodeView(t, resp); view.State != billing.StateFinalized || len(view.ActiveKinds) != 0 {
		t.Fatalf("unexpected finalized view %+v", view)
	}

	resp = do(t, handler, http.MethodPost, base+"/end", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("end session: %d %s", resp.Code, resp.Body.String())
	}
	if view := decodeView(t, resp); view.State != billing.StateClosed {
		t.Fatalf("expected closed view, got %s", view.State)
	}
	if resp := do(t, handler, http.MethodGet, base, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected closed session to be forgotten, got %d", resp.Code)
	}

	actions := strings.Join(auditLog.actions(), ",")
	for _, want := range []string{audit.ActionStationStart, audit.ActionFoodOrder, audit.ActionBillFinalize, audit.ActionSessionEnd} {
		if !strings.Contains(actions, want) {
			t.Fatalf("missing audit action %s in %s", want, actions)
		}
	}
}

func TestSessionHandler_EndSessionBeforeFinalize(t *testing.T) {
	backend := &stubBackend{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	handler, _, _ := newTestHandler(t, backend)
	base := sessionsPrefix + testSession
	do(t, handler, http.MethodPost, base+"/open", "")

	resp := do(t, handler, http.MethodPost, base+"/end", "")
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if backend.endCalls != 0 {
		t.Fatalf("end session must not reach backend")
	}
}

func TestSessionHandler_ErrorMapping(t *testing.T) {
	backend := &stubBackend{
		now:         time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		finalizeErr: billing.NewRemoteError("finalize bill", http.StatusInternalServerError, "billing service down", nil),
	}
	handler, _, _ := newTestHandler(t, backend)
	base := sessionsPrefix + testSession

	if resp := do(t, handler, http.MethodGet, base, ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before open, got %d", resp.Code)
	}
	do(t, handler, http.MethodPost, base+"/open", "")

	if resp := do(t, handler, http.MethodPost, base+"/stations/arcade/start", ""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", resp.Code)
	}
	if resp := do(t, handler, http.MethodPost, base+"/stations/lounge/end", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for idle station, got %d", resp.Code)
	}
	if resp := do(t, handler, http.MethodPut, base+"/discount", `{"discount_percentage": 150}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for discount, got %d", resp.Code)
	}

	resp := do(t, handler, http.MethodPost, base+"/finalize", "")
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(resp.Body.Bytes(), &body)
	if body["error"] != "billing service down" {
		t.Fatalf("unexpected error body %+v", body)
	}
}

func TestSessionHandler_ReceiptExports(t *testing.T) {
	backend := &stubBackend{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	handler, _, _ := newTestHandler(t, backend)
	base := sessionsPrefix + testSession
	do(t, handler, http.MethodPost, base+"/open", "")
	do(t, handler, http.MethodPost, base+"/food", `{"item_name": "Mojito", "price": 90, "quantity": 1}`)

	resp := do(t, handler, http.MethodGet, base+"/receipt.pdf", "")
	if resp.Code != http.StatusOK || resp.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf export: %d %s", resp.Code, resp.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected pdf payload")
	}

	resp = do(t, handler, http.MethodGet, base+"/receipt.xlsx", "")
	if resp.Code != http.StatusOK || !bytes.HasPrefix(resp.Body.Bytes(), []byte("PK")) {
		t.Fatalf("xlsx export: %d", resp.Code)
	}
}

func TestSSEBroker_PublishAndClose(t *testing.T) {
	broker := NewSSEBroker()
	ch := broker.Subscribe(testSession)
	other := broker.Subscribe("other")

	broker.PublishView(billingapp.View{SessionID: testSession, Total: "10.00"})
	select {
	case payload := <-ch:
		if !strings.Contains(string(payload), `"total":"10.00"`) {
			t.Fatalf("unexpected payload %s", payload)
		}
	default:
		t.Fatalf("expected payload for subscribed session")
	}
	select {
	case <-other:
		t.Fatalf("other session must not receive payload")
	default:
	}

	broker.CloseSession(testSession)
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	broker.Unsubscribe(testSession, ch)
	if broker.Subscribers(testSession) != 0 || broker.Subscribers("other") != 1 {
		t.Fatalf("unexpected subscriber counts")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&billing.ValidationError{Field: "rate"}, http.StatusBadRequest},
		{&billing.NotFoundError{Resource: "station"}, http.StatusNotFound},
		{&billing.ConflictError{Op: "start"}, http.StatusConflict},
		{billing.NewRemoteError("list", 0, "", nil), http.StatusBadGateway},
		{&billing.InvariantViolation{Reason: "future start"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Fatalf("%T: got %d want %d", tc.err, got, tc.want)
		}
	}
}

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func TestSessionHandler_TotalsUseOneReading(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	backend := &stubBackend{
		now:      now,
		stations: []billing.Station{{ID: 1, Kind: billing.KindLounge, Rate: 100, StartAt: now.Add(-time.Hour)}},
	}
	desk, err := billingapp.NewDesk(backend, nil, nil,
		billingapp.WithClock(&steppingClock{now: now, step: time.Hour}),
		billingapp.WithTimerFactory(noopTimers{}),
	)
	if err != nil {
		t.Fatalf("new desk: %v", err)
	}
	t.Cleanup(desk.Shutdown)
	handler, err := NewSessionHandler(desk, NewSSEBroker(), &recordingAudit{}, "INR", nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	base := sessionsPrefix + testSession
	if resp := do(t, handler, http.MethodPost, base+"/open", ""); resp.Code != http.StatusOK {
		t.Fatalf("open: %d %s", resp.Code, resp.Body.String())
	}

	resp := do(t, handler, http.MethodGet, base+"/totals?discount=10", "")
	var totals map[string]any
	_ = json.Unmarshal(resp.Body.Bytes(), &totals)
	total, _ := strconv.ParseFloat(totals["total"].(string), 64)
	final, _ := strconv.ParseFloat(totals["final"].(string), 64)
	if math.Abs(total*0.9-final) > 0.01 {
		t.Fatalf("final %v does not match total %v with 10%% off", final, total)
	}
}
