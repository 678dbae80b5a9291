package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	billingapi "lounge-desk/internal/billing/adapters/loungeapi"
	billingapp "lounge-desk/internal/billing/application"
	billing "lounge-desk/internal/billing/domain"
	"lounge-desk/internal/deskconfig"
	lounge "lounge-desk/internal/loungeapi"
	"lounge-desk/internal/observability/metrics"
)

// Client is the part of the lounge REST client the front desk uses.
type Client interface {
	CreateRegistration(ctx context.Context, name, phone string, entry time.Time) (lounge.Registration, error)
	TodayRegistrations(ctx context.Context, onlyActive bool) ([]lounge.Registration, error)
	PlaceOrder(ctx context.Context, sessionID, item string, quantity int, price float64) (lounge.Order, error)
}

// Desk finds the engine of a session open for billing.
type Desk interface {
	Get(sessionID string) (*billingapp.Engine, error)
}

// Option configures a Service.
type Option func(*Service)

// WithDesk routes orders for open sessions through their food ledger.
func WithDesk(desk Desk) Option {
	return func(s *Service) {
		s.desk = desk
	}
}

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

// Registration is a customer visit as shown at the front desk.
type Registration struct {
	SessionID string     `json:"session_id"`
	Name      string     `json:"name"`
	Phone     string     `json:"phone_number"`
	EntryAt   time.Time  `json:"entry_time"`
	EndAt     *time.Time `json:"end_time,omitempty"`
	Active    bool       `json:"active"`
}

// OrderLine is one placed line of a batch order.
type OrderLine struct {
	ID       int64   `json:"id"`
	Item     string  `json:"item_name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// BatchResult reports the lines placed by a batch order.
type BatchResult struct {
	Placed []OrderLine `json:"placed"`
}

// BatchError reports the item a batch order stopped at.
type BatchError struct {
	Item   string
	Placed int
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("frontdesk: order for %q failed after %d placed: %v", e.Item, e.Placed, e.Err)
}

// Unwrap returns the underlying failure.
func (e *BatchError) Unwrap() error { return e.Err }

type registerInput struct {
	Name  string `validate:"required,max=120"`
	Phone string `validate:"required,numeric,min=7,max=16"`
}

// Service handles walk-in registration and menu orders.
type Service struct {
	client   Client
	menu     []deskconfig.MenuCategory
	prices   map[string]float64
	clock    Clock
	desk     Desk
	validate *validator.Validate
	logger   *log.Logger
}

// NewService constructs a front desk service.
func NewService(client Client, menu []deskconfig.MenuCategory, clock Clock, logger *log.Logger, opts ...Option) (*Service, error) {
	if client == nil {
		return nil, errors.New("frontdesk: nil client")
	}
	if clock == nil {
		return nil, errors.New("frontdesk: nil clock")
	}
	prices := make(map[string]float64)
	for _, category := range menu {
		for _, item := range category.Items {
			prices[item] = category.Price
		}
	}
	s := &Service{
		client:   client,
		menu:     menu,
		prices:   prices,
		clock:    clock,
		validate: validator.New(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a registration. A zero entry time means now.
func (s *Service) Register(ctx context.Context, name, phone string, entry time.Time) (Registration, error) {
	input := registerInput{Name: strings.TrimSpace(name), Phone: strings.TrimSpace(phone)}
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return Registration{}, &billing.ValidationError{Field: strings.ToLower(fieldErrs[0].Field()), Reason: "failed " + fieldErrs[0].Tag() + " check"}
		}
		return Registration{}, &billing.ValidationError{Reason: err.Error()}
	}
	if entry.IsZero() {
		entry = s.clock.Now()
	}
	reg, err := s.client.CreateRegistration(ctx, input.Name, input.Phone, entry.UTC())
	if err != nil {
		return Registration{}, billingapi.MapError("create registration", err)
	}
	if s.logger != nil {
		s.logger.Printf("registration created: session=%s", reg.UserID)
	}
	return toRegistration(reg), nil
}

// Today lists today's registrations.
func (s *Service) Today(ctx context.Context, onlyActive bool) ([]Registration, error) {
	regs, err := s.client.TodayRegistrations(ctx, onlyActive)
	if err != nil {
		return nil, billingapi.MapError("today registrations", err)
	}
	out := make([]Registration, 0, len(regs))
	for _, reg := range regs {
		out = append(out, toRegistration(reg))
	}
	return out, nil
}

// Menu returns the configured categories.
func (s *Service) Menu() []deskconfig.MenuCategory {
	out := make([]deskconfig.MenuCategory, 0, len(s.menu))
	for _, category := range s.menu {
		category.Items = append([]string(nil), category.Items...)
		out = append(out, category)
	}
	return out
}

// PlaceOrder places one line per item with a positive quantity, in menu order.
// It stops at the first failure and reports the lines placed so far.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, quantities map[string]int) (BatchResult, error) {
	for item, qty := range quantities {
		if _, ok := s.prices[item]; !ok {
			return BatchResult{}, &billing.ValidationError{Field: "item", Reason: fmt.Sprintf("%q is not on the menu", item)}
		}
		if qty < 0 {
			return BatchResult{}, &billing.ValidationError{Field: "quantity", Reason: fmt.Sprintf("%q must not be negative", item)}
		}
	}

	place := s.remotePlacer(sessionID)
	if s.desk != nil {
		if engine, err := s.desk.Get(sessionID); err == nil {
			place = ledgerPlacer(engine)
		}
	}

	result := BatchResult{Placed: []OrderLine{}}
	for _, category := range s.menu {
		for _, item := range category.Items {
			qty := quantities[item]
			if qty <= 0 {
				continue
			}
			line, err := place(ctx, item, qty, category.Price)
			if err != nil {
				metrics.IncFoodOrder(metrics.ResultError)
				if s.logger != nil {
					s.logger.Printf("batch order error: session=%s item=%s placed=%d err=%v", sessionID, item, len(result.Placed), err)
				}
				return result, &BatchError{Item: item, Placed: len(result.Placed), Err: err}
			}
			metrics.IncFoodOrder(metrics.ResultSuccess)
			result.Placed = append(result.Placed, line)
		}
	}
	if len(result.Placed) == 0 {
		return result, &billing.ValidationError{Field: "quantities", Reason: "no items with a positive quantity"}
	}
	return result, nil
}

type placer func(ctx context.Context, item string, quantity int, price float64) (OrderLine, error)

func (s *Service) remotePlacer(sessionID string) placer {
	return func(ctx context.Context, item string, quantity int, price float64) (OrderLine, error) {
		order, err := s.client.PlaceOrder(ctx, sessionID, item, quantity, price)
		if err != nil {
			return OrderLine{}, billingapi.MapError("place order", err)
		}
		return OrderLine{ID: order.ID, Item: order.ItemName, Quantity: order.Quantity, Price: float64(order.Price)}, nil
	}
}

// ledgerPlacer adds lines through the open engine so its totals and stream stay current.
func ledgerPlacer(engine *billingapp.Engine) placer {
	return func(ctx context.Context, item string, quantity int, price float64) (OrderLine, error) {
		line, err := engine.AddLine(ctx, item, price, quantity)
		if err != nil {
			return OrderLine{}, err
		}
		return OrderLine{ID: line.ID, Item: line.Item, Quantity: line.Quantity, Price: line.Price}, nil
	}
}

func toRegistration(reg lounge.Registration) Registration {
	out := Registration{
		SessionID: reg.UserID.String(),
		Name:      reg.Name,
		Phone:     reg.PhoneNumber,
		EntryAt:   reg.EnteredAt(),
		Active:    reg.EndTime.IsZero(),
	}
	if end := reg.EndTime.Ptr(); end != nil {
		out.EndAt = end
	}
	return out
}
