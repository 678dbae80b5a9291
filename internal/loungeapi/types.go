package loungeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FlexID accepts a JSON string or number identifier.
type FlexID string

// UnmarshalJSON reads "abc", 42 or null.
func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		*id = FlexID(strings.TrimSpace(raw))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("loungeapi: id must be a string or number: %w", err)
	}
	*id = FlexID(num.String())
	return nil
}

// String returns the raw id.
func (id FlexID) String() string { return string(id) }

// Amount accepts a JSON number or a decimal string such as "50.00".
type Amount float64

// UnmarshalJSON reads 50, "50.00" or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("loungeapi: invalid decimal %q", raw)
		}
		*a = Amount(parsed)
		return nil
	}
	var parsed float64
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("loungeapi: amount must be numeric: %w", err)
	}
	*a = Amount(parsed)
	return nil
}

// Registration is a customer visit record.
type Registration struct {
	UserID      FlexID    `json:"user_id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	PhoneNumber string    `json:"phone_number"`
	Date        Timestamp `json:"date"`
	EntryTime   Timestamp `json:"entry_time"`
	EndTime     Timestamp `json:"end_time"`
}

// EnteredAt prefers entry_time and falls back to date.
func (r Registration) EnteredAt() time.Time {
	if !r.EntryTime.IsZero() {
		return r.EntryTime.Time
	}
	return r.Date.Time
}

// System is a rented station.
type System struct {
	ID        int64     `json:"id" validate:"required,gt=0"`
	UserID    FlexID    `json:"user_id"`
	Name      string    `json:"name" validate:"required"`
	Amount    Amount    `json:"amount" validate:"gte=0"`
	StartTime Timestamp `json:"start_time" validate:"required"`
	EndTime   Timestamp `json:"end_time"`
}

// Order is one food order line.
type Order struct {
	ID       int64  `json:"id" validate:"required,gt=0"`
	UserID   FlexID `json:"user_id"`
	ItemName string `json:"item_name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Price    Amount `json:"price" validate:"gte=0"`
}

// BillSnapshot is the combined bill of a session.
type BillSnapshot struct {
	Systems []System `json:"systems" validate:"dive"`
	Orders  []Order  `json:"orders" validate:"dive"`
}

// DailyBill is one row of the daily bills table.
type DailyBill struct {
	UserID       FlexID    `json:"user_id" validate:"required"`
	Username     string    `json:"username"`
	Amount       Amount    `json:"amount" validate:"gte=0"`
	Date         Timestamp `json:"date"`
	BillVerified bool      `json:"bill_verified"`
}

// SeriesPoint is one bucket of an analytics series.
type SeriesPoint struct {
	Label string  `json:"label" validate:"required"`
	Value float64 `json:"value"`
}

var seriesLabelKeys = []string{"label", "period", "date", "day", "week", "month"}
var seriesValueKeys = []string{"value", "count", "total", "income", "amount", "average", "average_duration", "duration"}

// UnmarshalJSON picks the first known label and value keys of a bucket.
func (p *SeriesPoint) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("loungeapi: series point must be an object: %w", err)
	}
	*p = SeriesPoint{}
	for _, key := range seriesLabelKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var label string
		if err := json.Unmarshal(value, &label); err != nil {
			var num json.Number
			if err := json.Unmarshal(value, &num); err != nil {
				return fmt.Errorf("loungeapi: series label %q: %w", key, err)
			}
			label = num.String()
		}
		p.Label = label
		break
	}
	for _, key := range seriesValueKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var amount Amount
		if err := json.Unmarshal(value, &amount); err != nil {
			return fmt.Errorf("loungeapi: series value %q: %w", key, err)
		}
		p.Value = float64(amount)
		break
	}
	return nil
}

// Activity is the active vs inactive user split.
type Activity struct {
	Active   int `json:"active" validate:"gte=0"`
	Inactive int `json:"inactive" validate:"gte=0"`
}

type createRegistrationRequest struct {
	Name        string    `json:"name"`
	PhoneNumber string    `json:"phone_number"`
	EntryTime   Timestamp `json:"entry_time"`
}

type startSystemRequest struct {
	Name      string    `json:"name"`
	Amount    float64   `json:"amount"`
	StartTime Timestamp `json:"start_time"`
}

type placeOrderRequest struct {
	ItemName string  `json:"item_name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type finalizeRequest struct {
	DiscountPercentage float64 `json:"discount_percentage"`
}

type finalizeResponse struct {
	Systems *[]System `json:"systems"`
	Orders  *[]Order  `json:"orders"`
}

type verifyRequest struct {
	BillVerified bool `json:"bill_verified"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		ts, ok := field.Interface().(Timestamp)
		if !ok || ts.IsZero() {
			return nil
		}
		return ts.Time
	}, Timestamp{})
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if amount, ok := field.Interface().(Amount); ok {
			return float64(amount)
		}
		return nil
	}, Amount(0))
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if id, ok := field.Interface().(FlexID); ok {
			return string(id)
		}
		return nil
	}, FlexID(""))
	return v
}
