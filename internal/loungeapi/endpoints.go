package loungeapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Metric names an analytics series.
type Metric string

const (
	MetricRegistrations   Metric = "registrations"
	MetricIncome          Metric = "income"
	MetricSessionDuration Metric = "average-session-duration"
)

// CreateRegistration registers a walk-in customer.
func (c *Client) CreateRegistration(ctx context.Context, name, phone string, entry time.Time) (Registration, error) {
	if strings.TrimSpace(name) == "" {
		return Registration{}, errors.New("loungeapi: empty name")
	}
	body := createRegistrationRequest{Name: name, PhoneNumber: phone, EntryTime: NewTimestamp(entry)}
	var resp Registration
	if err := c.doJSON(ctx, "create registration", http.MethodPost, "/registrations", body, &resp); err != nil {
		return Registration{}, err
	}
	return resp, nil
}

// GetRegistration loads the registration behind a session id.
func (c *Client) GetRegistration(ctx context.Context, sessionID string) (Registration, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return Registration{}, err
	}
	var resp Registration
	if err := c.doJSON(ctx, "get registration", http.MethodGet, "/registrations/"+id, nil, &resp); err != nil {
		return Registration{}, err
	}
	return resp, nil
}

// TodayRegistrations lists today's registrations.
func (c *Client) TodayRegistrations(ctx context.Context, onlyActive bool) ([]Registration, error) {
	path := "/registrations/today/?onlyActive=" + strconv.FormatBool(onlyActive)
	var resp []Registration
	if err := c.doJSON(ctx, "today registrations", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []Registration{}
	}
	return resp, nil
}

// ListSystems lists the stations of a session.
func (c *Client) ListSystems(ctx context.Context, sessionID string) ([]System, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	var resp []System
	if err := c.doJSON(ctx, "list systems", http.MethodGet, "/systems/"+id+"/", nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []System{}
	}
	return resp, nil
}

// StartSystem creates a running station.
func (c *Client) StartSystem(ctx context.Context, sessionID, name string, amount float64, start time.Time) (System, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return System{}, err
	}
	body := startSystemRequest{Name: name, Amount: amount, StartTime: NewTimestamp(start)}
	var resp System
	if err := c.doJSON(ctx, "start system", http.MethodPost, "/systems/"+id+"/", body, &resp); err != nil {
		return System{}, err
	}
	return resp, nil
}

// EndSystem stops a station.
func (c *Client) EndSystem(ctx context.Context, systemID int64) (System, error) {
	if systemID <= 0 {
		return System{}, errors.New("loungeapi: invalid system id")
	}
	path := "/systems/" + strconv.FormatInt(systemID, 10) + "/end/"
	var resp System
	if err := c.doJSON(ctx, "end system", http.MethodPut, path, nil, &resp); err != nil {
		return System{}, err
	}
	return resp, nil
}

// ListOrders lists the food orders of a session.
func (c *Client) ListOrders(ctx context.Context, sessionID string) ([]Order, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return nil, err
	}
	var resp []Order
	if err := c.doJSON(ctx, "list orders", http.MethodGet, "/orders/"+id+"/", nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []Order{}
	}
	return resp, nil
}

// PlaceOrder places one food order line.
func (c *Client) PlaceOrder(ctx context.Context, sessionID, item string, quantity int, price float64) (Order, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return Order{}, err
	}
	body := placeOrderRequest{ItemName: item, Quantity: quantity, Price: price}
	var resp Order
	if err := c.doJSON(ctx, "place order", http.MethodPost, "/orders/"+id+"/", body, &resp); err != nil {
		return Order{}, err
	}
	return resp, nil
}

// Bill returns the current bill snapshot.
func (c *Client) Bill(ctx context.Context, sessionID string) (BillSnapshot, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return BillSnapshot{}, err
	}
	var resp BillSnapshot
	if err := c.doJSON(ctx, "get bill", http.MethodGet, "/billing/"+id+"/", nil, &resp); err != nil {
		return BillSnapshot{}, err
	}
	return resp, nil
}

// FinalizeBill finalizes the bill. When the response carries no bill it is re-read.
func (c *Client) FinalizeBill(ctx context.Context, sessionID string, discountPct float64) (BillSnapshot, error) {
	id, err := sessionPath(sessionID)
	if err != nil {
		return BillSnapshot{}, err
	}
	var resp finalizeResponse
	body := finalizeRequest{DiscountPercentage: discountPct}
	if err := c.doJSON(ctx, "finalize bill", http.MethodPost, "/billing/"+id+"/finalize/", body, &resp); err != nil {
		return BillSnapshot{}, err
	}
	if resp.Systems == nil && resp.Orders == nil {
		bill, err := c.Bill(ctx, sessionID)
		if err != nil {
			return BillSnapshot{}, errors.Join(ErrBillUnread, err)
		}
		return bill, nil
	}
	snapshot := BillSnapshot{}
	if resp.Systems != nil {
		snapshot.Systems = *resp.Systems
	}
	if resp.Orders != nil {
		snapshot.Orders = *resp.Orders
	}
	if err := c.check(&snapshot); err != nil {
		return BillSnapshot{}, &APIError{Op: "finalize bill", Status: http.StatusOK, Message: "malformed response", Err: errors.Join(ErrMalformedResponse, err)}
	}
	return snapshot, nil
}

// EndSession closes the customer session.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	id, err := sessionPath(sessionID)
	if err != nil {
		return err
	}
	return c.doJSON(ctx, "end session", http.MethodPost, "/sessions/"+id+"/end/", nil, nil)
}

// DailyBills lists the bills of one day.
func (c *Client) DailyBills(ctx context.Context, day time.Time) ([]DailyBill, error) {
	path := "/billing/daily/?date=" + day.Format("2006-01-02")
	var resp []DailyBill
	if err := c.doJSON(ctx, "daily bills", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []DailyBill{}
	}
	return resp, nil
}

// VerifyBill sets the verification flag of a bill.
func (c *Client) VerifyBill(ctx context.Context, userID string, verified bool) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("loungeapi: empty user id")
	}
	path := "/billing/" + url.PathEscape(userID) + "/verify/"
	return c.doJSON(ctx, "verify bill", http.MethodPut, path, verifyRequest{BillVerified: verified}, nil)
}

// Series returns an analytics series between two days.
func (c *Client) Series(ctx context.Context, metric Metric, start, end time.Time, period string) ([]SeriesPoint, error) {
	switch metric {
	case MetricRegistrations, MetricIncome, MetricSessionDuration:
	default:
		return nil, errors.New("loungeapi: unknown analytics metric")
	}
	query := url.Values{}
	query.Set("start_date", start.Format("2006-01-02"))
	query.Set("end_date", end.Format("2006-01-02"))
	query.Set("period", period)
	var resp []SeriesPoint
	if err := c.doJSON(ctx, "analytics "+string(metric), http.MethodGet, "/analytics/"+string(metric)+"?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = []SeriesPoint{}
	}
	return resp, nil
}

// Activity returns the active vs inactive user split.
func (c *Client) Activity(ctx context.Context) (Activity, error) {
	var resp Activity
	if err := c.doJSON(ctx, "analytics activity", http.MethodGet, "/analytics/activity", nil, &resp); err != nil {
		return Activity{}, err
	}
	return resp, nil
}
