package loungeapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	billingapp "lounge-desk/internal/billing/application"
	billing "lounge-desk/internal/billing/domain"
	lounge "lounge-desk/internal/loungeapi"
)

// Client is the part of the lounge REST client the billing engine uses.
type Client interface {
	GetRegistration(ctx context.Context, sessionID string) (lounge.Registration, error)
	ListSystems(ctx context.Context, sessionID string) ([]lounge.System, error)
	StartSystem(ctx context.Context, sessionID, name string, amount float64, start time.Time) (lounge.System, error)
	EndSystem(ctx context.Context, systemID int64) (lounge.System, error)
	ListOrders(ctx context.Context, sessionID string) ([]lounge.Order, error)
	PlaceOrder(ctx context.Context, sessionID, item string, quantity int, price float64) (lounge.Order, error)
	FinalizeBill(ctx context.Context, sessionID string, discountPct float64) (lounge.BillSnapshot, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Backend maps REST DTOs to billing domain values and failures to RemoteError.
type Backend struct {
	client Client
}

// NewBackend constructs the adapter.
func NewBackend(client Client) (*Backend, error) {
	if client == nil {
		return nil, errors.New("billing backend: nil client")
	}
	return &Backend{client: client}, nil
}

// GetRegistration implements application.Backend.
func (b *Backend) GetRegistration(ctx context.Context, sessionID string) (billingapp.Registration, error) {
	reg, err := b.client.GetRegistration(ctx, sessionID)
	if err != nil {
		if lounge.IsNotFound(err) {
			return billingapp.Registration{}, &billing.NotFoundError{Resource: "session", ID: sessionID}
		}
		return billingapp.Registration{}, MapError("get registration", err)
	}
	return billingapp.Registration{
		SessionID: reg.UserID.String(),
		Holder:    billing.Holder{Name: reg.Name, Phone: reg.PhoneNumber},
		EntryAt:   reg.EnteredAt(),
	}, nil
}

// ListStations implements application.Backend.
func (b *Backend) ListStations(ctx context.Context, sessionID string) ([]billing.Station, error) {
	systems, err := b.client.ListSystems(ctx, sessionID)
	if err != nil {
		return nil, MapError("list stations", err)
	}
	return toStations("list stations", systems)
}

// ListFoodLines implements application.Backend.
func (b *Backend) ListFoodLines(ctx context.Context, sessionID string) ([]billing.FoodLine, error) {
	orders, err := b.client.ListOrders(ctx, sessionID)
	if err != nil {
		return nil, MapError("list orders", err)
	}
	return toFoodLines(orders), nil
}

// StartStation implements application.Backend.
func (b *Backend) StartStation(ctx context.Context, sessionID string, kind billing.Kind, rate float64, startAt time.Time) (billing.Station, error) {
	system, err := b.client.StartSystem(ctx, sessionID, kind.String(), rate, startAt)
	if err != nil {
		return billing.Station{}, MapError("start station", err)
	}
	return toStation("start station", system)
}

// EndStation implements application.Backend.
func (b *Backend) EndStation(ctx context.Context, stationID int64) (billing.Station, error) {
	system, err := b.client.EndSystem(ctx, stationID)
	if err != nil {
		return billing.Station{}, MapError("end station", err)
	}
	return toStation("end station", system)
}

// PlaceOrder implements application.Backend.
func (b *Backend) PlaceOrder(ctx context.Context, sessionID string, line billing.FoodLine) (billing.FoodLine, error) {
	order, err := b.client.PlaceOrder(ctx, sessionID, line.Item, line.Quantity, line.Price)
	if err != nil {
		return billing.FoodLine{}, MapError("place order", err)
	}
	return toFoodLine(order), nil
}

// FinalizeBill implements application.Backend.
func (b *Backend) FinalizeBill(ctx context.Context, sessionID string, discountPct float64) (billingapp.BillSnapshot, error) {
	snapshot, err := b.client.FinalizeBill(ctx, sessionID, discountPct)
	if errors.Is(err, lounge.ErrBillUnread) {
		return billingapp.BillSnapshot{Unread: true}, nil
	}
	if err != nil {
		return billingapp.BillSnapshot{}, MapError("finalize bill", err)
	}
	stations, err := toStations("finalize bill", snapshot.Systems)
	if err != nil {
		return billingapp.BillSnapshot{}, err
	}
	return billingapp.BillSnapshot{Stations: stations, FoodLines: toFoodLines(snapshot.Orders)}, nil
}

// EndSession implements application.Backend.
func (b *Backend) EndSession(ctx context.Context, sessionID string) error {
	if err := b.client.EndSession(ctx, sessionID); err != nil {
		return MapError("end session", err)
	}
	return nil
}

func toStations(op string, systems []lounge.System) ([]billing.Station, error) {
	stations := make([]billing.Station, 0, len(systems))
	for _, system := range systems {
		station, err := toStation(op, system)
		if err != nil {
			return nil, err
		}
		stations = append(stations, station)
	}
	return stations, nil
}

func toStation(op string, system lounge.System) (billing.Station, error) {
	kind, err := billing.ParseKind(system.Name)
	if err != nil {
		return billing.Station{}, malformed(op, fmt.Errorf("system %d: %w", system.ID, err))
	}
	station, err := billing.NewStation(system.ID, kind, float64(system.Amount), system.StartTime.Time, system.EndTime.Ptr())
	if err != nil {
		return billing.Station{}, malformed(op, fmt.Errorf("system %d: %w", system.ID, err))
	}
	return station, nil
}

func toFoodLines(orders []lounge.Order) []billing.FoodLine {
	lines := make([]billing.FoodLine, 0, len(orders))
	for _, order := range orders {
		lines = append(lines, toFoodLine(order))
	}
	return lines
}

func toFoodLine(order lounge.Order) billing.FoodLine {
	return billing.FoodLine{
		ID:       order.ID,
		Item:     order.ItemName,
		Price:    float64(order.Price),
		Quantity: order.Quantity,
	}
}

func malformed(op string, err error) error {
	return billing.NewRemoteError(op, 0, "malformed response", errors.Join(lounge.ErrMalformedResponse, err))
}

// MapError converts client failures into the billing error taxonomy.
func MapError(op string, err error) error {
	if errors.Is(err, lounge.ErrInvalidSessionID) {
		return &billing.ValidationError{Field: "session_id", Reason: "must be a UUID"}
	}
	var apiErr *lounge.APIError
	if errors.As(err, &apiErr) {
		return billing.NewRemoteError(op, apiErr.Status, apiErr.Message, err)
	}
	return billing.NewRemoteError(op, 0, "", err)
}
