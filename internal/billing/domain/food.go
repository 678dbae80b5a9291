package billing

import (
	"strconv"
	"strings"
)

// FoodLine is one food order placement.
type FoodLine struct {
	ID       int64
	Item     string
	Price    float64
	Quantity int
}

// LineField names a correctable food line column.
type LineField string

const (
	FieldPrice    LineField = "price"
	FieldQuantity LineField = "quantity"
)

// NewFoodLine validates a new placement. Quantity must be positive.
func NewFoodLine(item string, price float64, quantity int) (FoodLine, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return FoodLine{}, &ValidationError{Field: "item_name", Reason: "required"}
	}
	if price < 0 {
		return FoodLine{}, &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if quantity <= 0 {
		return FoodLine{}, &ValidationError{Field: "quantity", Reason: "must be greater than zero"}
	}
	return FoodLine{Item: item, Price: price, Quantity: quantity}, nil
}

// Cost returns price x quantity.
func (l FoodLine) Cost() float64 {
	return l.Price * float64(l.Quantity)
}

// Apply returns the line with field set to value, and false when value does not parse
// to a non-negative number (integer for quantity).
func (l FoodLine) Apply(field LineField, value string) (FoodLine, bool) {
	value = strings.TrimSpace(value)
	switch field {
	case FieldPrice:
		price, ok := ParseAmount(value)
		if !ok {
			return l, false
		}
		l.Price = price
		return l, true
	case FieldQuantity:
		qty, err := strconv.Atoi(value)
		if err != nil || qty < 0 {
			return l, false
		}
		l.Quantity = qty
		return l, true
	default:
		return l, false
	}
}

// ParseLineField validates a correctable column name.
func ParseLineField(value string) (LineField, error) {
	switch field := LineField(strings.ToLower(strings.TrimSpace(value))); field {
	case FieldPrice, FieldQuantity:
		return field, nil
	default:
		return "", &ValidationError{Field: "field", Reason: "must be price or quantity"}
	}
}

// ParseAmount parses a non-negative finite decimal amount.
func ParseAmount(value string) (float64, bool) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || amount < 0 || amount != amount || amount > maxAmount {
		return 0, false
	}
	return amount, true
}

const maxAmount = 1e12
