package application

import (
	"time"

	billing "lounge-desk/internal/billing/domain"
)

// View is the plain-data snapshot handed to the presentation layer.
type View struct {
	SessionID       string         `json:"session_id"`
	HolderName      string         `json:"name"`
	HolderPhone     string         `json:"phone_number"`
	EntryAt         time.Time      `json:"entry_time"`
	EndAt           *time.Time     `json:"end_time,omitempty"`
	State           billing.State  `json:"state"`
	Stations        []StationView  `json:"stations"`
	FoodLines       []LineView     `json:"food"`
	ActiveKinds     []billing.Kind `json:"active_kinds"`
	Discount        float64        `json:"discount_percentage"`
	DiscountOptions []float64      `json:"discount_options"`
	StationTotal    string         `json:"station_total"`
	FoodTotal       string         `json:"food_total"`
	Total           string         `json:"total"`
	Final           string         `json:"final"`
	Finalizing      bool           `json:"finalizing"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// StationView is one station row.
type StationView struct {
	ID      int64        `json:"id"`
	Kind    billing.Kind `json:"kind"`
	Rate    float64      `json:"rate"`
	StartAt time.Time    `json:"start_time"`
	EndAt   *time.Time   `json:"end_time,omitempty"`
	Running bool         `json:"running"`
	Elapsed string       `json:"elapsed"`
	Cost    string       `json:"cost"`
}

// LineView is one food order row.
type LineView struct {
	ID       int64   `json:"id"`
	Item     string  `json:"item_name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Cost     string  `json:"cost"`
}

func buildView(session *billing.Session, now time.Time, options []float64, finalizing bool) View {
	view := View{
		SessionID:       session.ID,
		HolderName:      session.Holder.Name,
		HolderPhone:     session.Holder.Phone,
		EntryAt:         session.EntryAt,
		State:           session.State,
		Stations:        make([]StationView, 0, len(session.Stations)),
		FoodLines:       make([]LineView, 0, len(session.FoodLines)),
		ActiveKinds:     []billing.Kind{},
		Discount:        session.Discount,
		DiscountOptions: append([]float64(nil), options...),
		Finalizing:      finalizing,
		GeneratedAt:     now,
	}
	if session.EndAt != nil {
		end := *session.EndAt
		view.EndAt = &end
	}
	for _, station := range session.Stations {
		elapsed := "00:00"
		if d, err := station.Elapsed(now); err == nil {
			elapsed = billing.FormatElapsed(d)
		}
		row := StationView{
			ID:      station.ID,
			Kind:    station.Kind,
			Rate:    station.Rate,
			StartAt: station.StartAt,
			Running: station.Running(),
			Elapsed: elapsed,
			Cost:    billing.FormatAmount(station.Cost(now)),
		}
		if station.EndAt != nil {
			end := *station.EndAt
			row.EndAt = &end
		}
		view.Stations = append(view.Stations, row)
	}
	for _, kind := range billing.Kinds {
		if _, ok := session.RunningStation(kind); ok {
			view.ActiveKinds = append(view.ActiveKinds, kind)
		}
	}
	for _, line := range session.FoodLines {
		view.FoodLines = append(view.FoodLines, LineView{
			ID:       line.ID,
			Item:     line.Item,
			Price:    line.Price,
			Quantity: line.Quantity,
			Cost:     billing.FormatAmount(line.Cost()),
		})
	}
	stationTotal := session.StationTotal(now)
	foodTotal := session.FoodTotal()
	total := stationTotal + foodTotal
	final, err := billing.ApplyDiscount(total, session.Discount)
	if err != nil {
		final = total
	}
	view.StationTotal = billing.FormatAmount(stationTotal)
	view.FoodTotal = billing.FormatAmount(foodTotal)
	view.Total = billing.FormatAmount(total)
	view.Final = billing.FormatAmount(final)
	return view
}
