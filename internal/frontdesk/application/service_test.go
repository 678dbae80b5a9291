package application

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	billing "lounge-desk/internal/billing/domain"
	"lounge-desk/internal/deskconfig"
	lounge "lounge-desk/internal/loungeapi"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type orderCall struct {
	item     string
	quantity int
	price    float64
}

type stubClient struct {
	registered []string
	entry      time.Time
	orders     []orderCall
	failItem   string
	today      []lounge.Registration
}

func (c *stubClient) CreateRegistration(_ context.Context, name, phone string, entry time.Time) (lounge.Registration, error) {
	c.registered = append(c.registered, name+"/"+phone)
	c.entry = entry
	return lounge.Registration{
		UserID:      "6f1c2b9e-3d4a-4f5b-9c8d-7e6f5a4b3c2d",
		Name:        name,
		PhoneNumber: phone,
		EntryTime:   lounge.NewTimestamp(entry),
	}, nil
}

func (c *stubClient) TodayRegistrations(context.Context, bool) ([]lounge.Registration, error) {
	return c.today, nil
}

func (c *stubClient) PlaceOrder(_ context.Context, _ string, item string, quantity int, price float64) (lounge.Order, error) {
	if item == c.failItem {
		return lounge.Order{}, &lounge.APIError{Op: "place order", Status: http.StatusBadRequest, Message: "item unavailable"}
	}
	c.orders = append(c.orders, orderCall{item: item, quantity: quantity, price: price})
	return lounge.Order{ID: int64(len(c.orders)), ItemName: item, Quantity: quantity, Price: lounge.Amount(price)}, nil
}

var testMenu = []deskconfig.MenuCategory{
	{Name: "Fries", Price: 80, Items: []string{"Classic Fries", "Cheese Fries"}},
	{Name: "Mojito", Price: 90, Items: []string{"Mint Mojito"}},
	{Name: "SoftDrinks", Price: 40, Items: []string{"Coke"}},
}

func newTestService(t *testing.T, client *stubClient) *Service {
	t.Helper()
	svc, err := NewService(client, testMenu, fixedClock{now: time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)}, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestRegister_DefaultsEntryToNow(t *testing.T) {
	client := &stubClient{}
	svc := newTestService(t, client)
	reg, err := svc.Register(context.Background(), "  Ravi ", "9876543210", time.Time{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !client.entry.Equal(time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected entry %s", client.entry)
	}
	if reg.Name != "Ravi" || !reg.Active || reg.SessionID == "" {
		t.Fatalf("unexpected registration %+v", reg)
	}
}

func TestRegister_Validation(t *testing.T) {
	client := &stubClient{}
	svc := newTestService(t, client)
	cases := []struct{ name, phone string }{
		{"", "9876543210"},
		{"Ravi", ""},
		{"Ravi", "call me"},
		{"Ravi", "123"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.name, tc.phone, time.Time{}); !errors.Is(err, billing.ErrValidation) {
			t.Fatalf("%q/%q: expected validation error, got %v", tc.name, tc.phone, err)
		}
	}
	if len(client.registered) != 0 {
		t.Fatalf("invalid registrations must not reach backend")
	}
}

func TestPlaceOrder_MenuOrderAndPrices(t *testing.T) {
	client := &stubClient{}
	svc := newTestService(t, client)
	result, err := svc.PlaceOrder(context.Background(), "s-1", map[string]int{"Coke": 2, "Cheese Fries": 1, "Mint Mojito": 0})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if len(result.Placed) != 2 {
		t.Fatalf("expected 2 lines, got %+v", result.Placed)
	}
	if client.orders[0].item != "Cheese Fries" || client.orders[0].price != 80 || client.orders[1].item != "Coke" || client.orders[1].price != 40 {
		t.Fatalf("unexpected orders %+v", client.orders)
	}
}

func TestPlaceOrder_StopsAtFirstFailure(t *testing.T) {
	client := &stubClient{failItem: "Mint Mojito"}
	svc := newTestService(t, client)
	result, err := svc.PlaceOrder(context.Background(), "s-1", map[string]int{"Classic Fries": 1, "Mint Mojito": 1, "Coke": 3})
	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected batch error, got %v", err)
	}
	if batchErr.Item != "Mint Mojito" || batchErr.Placed != 1 || len(result.Placed) != 1 {
		t.Fatalf("unexpected batch error %+v placed=%d", batchErr, len(result.Placed))
	}
	if !errors.Is(err, billing.ErrRemote) {
		t.Fatalf("expected remote error inside batch error")
	}
	for _, order := range client.orders {
		if order.item == "Coke" {
			t.Fatalf("order after failure must not be placed")
		}
	}
}

func TestPlaceOrder_RejectsUnknownItems(t *testing.T) {
	client := &stubClient{}
	svc := newTestService(t, client)
	if _, err := svc.PlaceOrder(context.Background(), "s-1", map[string]int{"Pizza": 1, "Coke": 1}); !errors.Is(err, billing.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.PlaceOrder(context.Background(), "s-1", map[string]int{"Coke": 0}); !errors.Is(err, billing.ErrValidation) {
		t.Fatalf("expected validation error for empty batch, got %v", err)
	}
	if len(client.orders) != 0 {
		t.Fatalf("rejected batches must not reach backend")
	}
}

func TestToday_MarksEnded(t *testing.T) {
	end := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	client := &stubClient{today: []lounge.Registration{
		{UserID: "a", Name: "Asha"},
		{UserID: "b", Name: "Ravi", EndTime: lounge.NewTimestamp(end)},
	}}
	svc := newTestService(t, client)
	regs, err := svc.Today(context.Background(), false)
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if !regs[0].Active || regs[1].Active || regs[1].EndAt == nil {
		t.Fatalf("unexpected registrations %+v", regs)
	}
}
