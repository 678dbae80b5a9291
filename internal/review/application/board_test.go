package application

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	billing "lounge-desk/internal/billing/domain"
	lounge "lounge-desk/internal/loungeapi"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type stubClient struct {
	mu        sync.Mutex
	rows      []lounge.DailyBill
	days      []time.Time
	verifyErr error
	gate      chan struct{}
	calls     []bool
}

func (c *stubClient) DailyBills(_ context.Context, day time.Time) ([]lounge.DailyBill, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.days = append(c.days, day)
	return c.rows, nil
}

func (c *stubClient) VerifyBill(_ context.Context, _ string, verified bool) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, verified)
	return c.verifyErr
}

func day(d int) lounge.Timestamp {
	return lounge.NewTimestamp(time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC))
}

func newTestBoard(t *testing.T, client *stubClient) *Board {
	t.Helper()
	board, err := NewBoard(client, fixedClock{now: time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC)}, nil)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	return board
}

func TestBoard_LoadFiltersOtherDays(t *testing.T) {
	client := &stubClient{rows: []lounge.DailyBill{
		{UserID: "1", Username: "Asha", Amount: 103, Date: day(1)},
		{UserID: "2", Username: "Ravi", Amount: 80, Date: day(2)},
	}}
	board := newTestBoard(t, client)
	bills, err := board.Load(context.Background(), time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(bills) != 1 || bills[0].UserID != "1" {
		t.Fatalf("unexpected bills %+v", bills)
	}
	if !board.Day().Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %s", board.Day())
	}
}

func TestBoard_ToggleRollbackOnFailure(t *testing.T) {
	client := &stubClient{
		rows:      []lounge.DailyBill{{UserID: "42", Username: "Asha", Amount: 103, Date: day(1), BillVerified: false}},
		verifyErr: &lounge.APIError{Op: "verify bill", Status: http.StatusInternalServerError, Message: "db down"},
		gate:      make(chan struct{}),
	}
	board := newTestBoard(t, client)
	if _, err := board.Load(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("load: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := board.Toggle(context.Background(), "42")
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for !board.Bills()[0].Verified {
		if time.Now().After(deadline) {
			t.Fatalf("expected optimistic flip before backend answered")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := board.Toggle(context.Background(), "42"); !errors.Is(err, billing.ErrConflict) {
		t.Fatalf("expected conflict while toggle in flight, got %v", err)
	}
	close(client.gate)

	err := <-done
	var remoteErr *billing.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.Message != "db down" {
		t.Fatalf("expected remote error, got %v", err)
	}
	if board.Bills()[0].Verified {
		t.Fatalf("expected verification to roll back")
	}
	if len(client.calls) != 1 || client.calls[0] != true {
		t.Fatalf("unexpected verify calls %+v", client.calls)
	}
}

func TestBoard_ToggleSuccessAndAllVerified(t *testing.T) {
	client := &stubClient{rows: []lounge.DailyBill{
		{UserID: "1", Date: day(1), BillVerified: true},
		{UserID: "2", Date: day(1)},
	}}
	board := newTestBoard(t, client)
	if board.AllVerified() {
		t.Fatalf("empty table must not count as verified")
	}
	_, _ = board.Load(context.Background(), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if board.AllVerified() {
		t.Fatalf("expected unverified row")
	}
	bill, err := board.Toggle(context.Background(), "2")
	if err != nil || !bill.Verified {
		t.Fatalf("toggle: %+v %v", bill, err)
	}
	if !board.AllVerified() {
		t.Fatalf("expected all verified")
	}
	if _, err := board.Toggle(context.Background(), "99"); !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBoard_ShiftDay(t *testing.T) {
	client := &stubClient{}
	board := newTestBoard(t, client)
	if _, err := board.ShiftDay(context.Background(), -1); err != nil {
		t.Fatalf("shift: %v", err)
	}
	want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	if !board.Day().Equal(want) || !client.days[0].Equal(want) {
		t.Fatalf("unexpected day %s", board.Day())
	}
}
