package application

import (
	"context"
	"time"

	billing "lounge-desk/internal/billing/domain"
)

// Registration is the backend record behind a session id.
type Registration struct {
	SessionID string
	Holder    billing.Holder
	EntryAt   time.Time
}

// BillSnapshot is the authoritative bill returned by finalize.
// Unread marks a finalize that succeeded without a readable bill.
type BillSnapshot struct {
	Stations  []billing.Station
	FoodLines []billing.FoodLine
	Unread    bool
}

// Backend is the slice of the lounge REST API the engine needs.
type Backend interface {
	GetRegistration(ctx context.Context, sessionID string) (Registration, error)
	ListStations(ctx context.Context, sessionID string) ([]billing.Station, error)
	ListFoodLines(ctx context.Context, sessionID string) ([]billing.FoodLine, error)
	StartStation(ctx context.Context, sessionID string, kind billing.Kind, rate float64, startAt time.Time) (billing.Station, error)
	EndStation(ctx context.Context, stationID int64) (billing.Station, error)
	PlaceOrder(ctx context.Context, sessionID string, line billing.FoodLine) (billing.FoodLine, error)
	FinalizeBill(ctx context.Context, sessionID string, discountPct float64) (BillSnapshot, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
