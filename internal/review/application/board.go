package application

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	billingapi "lounge-desk/internal/billing/adapters/loungeapi"
	billing "lounge-desk/internal/billing/domain"
	lounge "lounge-desk/internal/loungeapi"
	"lounge-desk/internal/observability/metrics"
)

// Client is the part of the lounge REST client bill review uses.
type Client interface {
	DailyBills(ctx context.Context, day time.Time) ([]lounge.DailyBill, error)
	VerifyBill(ctx context.Context, userID string, verified bool) error
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// Bill is one row of the daily bills table.
type Bill struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Amount   float64   `json:"amount"`
	Date     time.Time `json:"date"`
	Verified bool      `json:"bill_verified"`
}

// Board holds the daily bills table and its verification flags.
type Board struct {
	client Client
	clock  Clock
	logger *log.Logger

	mu      sync.Mutex
	day     time.Time
	bills   []Bill
	pending map[string]bool
}

// NewBoard constructs a review board showing today.
func NewBoard(client Client, clock Clock, logger *log.Logger) (*Board, error) {
	if client == nil {
		return nil, errors.New("review board: nil client")
	}
	if clock == nil {
		return nil, errors.New("review board: nil clock")
	}
	return &Board{
		client:  client,
		clock:   clock,
		logger:  logger,
		day:     dayOf(clock.Now()),
		pending: make(map[string]bool),
	}, nil
}

// Load replaces the table with the bills of day.
func (b *Board) Load(ctx context.Context, day time.Time) ([]Bill, error) {
	day = dayOf(day)
	rows, err := b.client.DailyBills(ctx, day)
	if err != nil {
		return nil, billingapi.MapError("daily bills", err)
	}
	bills := make([]Bill, 0, len(rows))
	for _, row := range rows {
		if !row.Date.IsZero() && !dayOf(row.Date.Time).Equal(day) {
			continue
		}
		bills = append(bills, Bill{
			UserID:   row.UserID.String(),
			Username: row.Username,
			Amount:   float64(row.Amount),
			Date:     row.Date.Time,
			Verified: row.BillVerified,
		})
	}

	b.mu.Lock()
	b.day = day
	b.bills = bills
	b.pending = make(map[string]bool)
	out := append([]Bill(nil), bills...)
	b.mu.Unlock()
	return out, nil
}

// ShiftDay moves the table n days and reloads it.
func (b *Board) ShiftDay(ctx context.Context, n int) ([]Bill, error) {
	b.mu.Lock()
	day := b.day.AddDate(0, 0, n)
	b.mu.Unlock()
	return b.Load(ctx, day)
}

// Day returns the displayed day.
func (b *Board) Day() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.day
}

// Bills returns a copy of the table.
func (b *Board) Bills() []Bill {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Bill(nil), b.bills...)
}

// AllVerified reports whether a non-empty table is fully verified.
func (b *Board) AllVerified() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.bills) == 0 {
		return false
	}
	for _, bill := range b.bills {
		if !bill.Verified {
			return false
		}
	}
	return true
}

// Toggle flips a bill's verification locally, then persists it.
// A failed call restores the previous value.
func (b *Board) Toggle(ctx context.Context, userID string) (Bill, error) {
	b.mu.Lock()
	idx := b.indexLocked(userID)
	if idx < 0 {
		b.mu.Unlock()
		return Bill{}, &billing.NotFoundError{Resource: "bill", ID: userID}
	}
	if b.pending[userID] {
		b.mu.Unlock()
		return Bill{}, &billing.ConflictError{Op: "verify bill", Reason: "toggle already in flight"}
	}
	previous := b.bills[idx].Verified
	b.bills[idx].Verified = !previous
	b.pending[userID] = true
	b.mu.Unlock()

	err := b.client.VerifyBill(ctx, userID, !previous)

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, userID)
	idx = b.indexLocked(userID)
	if err != nil {
		metrics.IncVerification(metrics.ResultError)
		if idx >= 0 {
			b.bills[idx].Verified = previous
		}
		if b.logger != nil {
			b.logger.Printf("bill verification error: user=%s err=%v", userID, err)
		}
		return Bill{}, billingapi.MapError("verify bill", err)
	}
	metrics.IncVerification(metrics.ResultSuccess)
	if idx < 0 {
		return Bill{UserID: userID, Verified: !previous}, nil
	}
	return b.bills[idx], nil
}

func (b *Board) indexLocked(userID string) int {
	for i, bill := range b.bills {
		if bill.UserID == userID {
			return i
		}
	}
	return -1
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
