package billing

import (
	"fmt"
	"strings"
	"time"
)

// State is the customer session lifecycle state.
type State string

const (
	StateOpen      State = "OPEN"
	StateFinalized State = "FINALIZED"
	StateClosed    State = "CLOSED"
)

// Holder identifies the customer who owns the tab.
type Holder struct {
	Name  string
	Phone string
}

// Session is the desk-side view of one customer visit.
type Session struct {
	ID        string
	Holder    Holder
	EntryAt   time.Time
	EndAt     *time.Time
	State     State
	Discount  float64
	Stations  []Station
	FoodLines []FoodLine
}

// NewSession validates the session identity.
func NewSession(id string, holder Holder, entryAt time.Time) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "required"}
	}
	return &Session{ID: id, Holder: holder, EntryAt: entryAt, State: StateOpen}, nil
}

// RunningStation returns the running station of a kind, if any.
func (s *Session) RunningStation(kind Kind) (Station, bool) {
	for _, station := range s.Stations {
		if station.Kind == kind && station.Running() {
			return station, true
		}
	}
	return Station{}, false
}

// LatestStation returns the most recently started station of a kind.
func (s *Session) LatestStation(kind Kind) (Station, bool) {
	var latest Station
	found := false
	for _, station := range s.Stations {
		if station.Kind != kind {
			continue
		}
		if !found || !station.StartAt.Before(latest.StartAt) {
			latest = station
			found = true
		}
	}
	return latest, found
}

// StationIndex returns the slice index of a station id, or -1.
func (s *Session) StationIndex(id int64) int {
	for i, station := range s.Stations {
		if station.ID == id {
			return i
		}
	}
	return -1
}

// LineIndex returns the slice index of a food line id, or -1.
func (s *Session) LineIndex(id int64) int {
	for i, line := range s.FoodLines {
		if line.ID == id {
			return i
		}
	}
	return -1
}

// CheckRunning verifies at most one running station per kind.
func (s *Session) CheckRunning() error {
	seen := make(map[Kind]int64, len(Kinds))
	for _, station := range s.Stations {
		if !station.Running() {
			continue
		}
		if prev, ok := seen[station.Kind]; ok {
			return &InvariantViolation{Reason: fmt.Sprintf("stations %d and %d of kind %s both running", prev, station.ID, station.Kind)}
		}
		seen[station.Kind] = station.ID
	}
	return nil
}

// CheckStarts verifies no station starts after now.
func (s *Session) CheckStarts(now time.Time) error {
	for _, station := range s.Stations {
		if station.StartAt.After(now) {
			return &InvariantViolation{Reason: fmt.Sprintf("station %d starts in the future", station.ID)}
		}
	}
	return nil
}

// StationTotal sums station costs against now.
func (s *Session) StationTotal(now time.Time) float64 {
	var total float64
	for _, station := range s.Stations {
		total += station.Cost(now)
	}
	return total
}

// FoodTotal sums food line costs.
func (s *Session) FoodTotal() float64 {
	var total float64
	for _, line := range s.FoodLines {
		total += line.Cost()
	}
	return total
}

// Total is the undiscounted bill against now.
func (s *Session) Total(now time.Time) float64 {
	return s.StationTotal(now) + s.FoodTotal()
}

// ApplyDiscount returns total x (1 - pct/100).
func ApplyDiscount(total, pct float64) (float64, error) {
	if err := ValidateDiscount(pct); err != nil {
		return 0, err
	}
	return total * (1 - pct/100), nil
}

// ValidateDiscount accepts any percentage in [0,100].
func ValidateDiscount(pct float64) error {
	if pct != pct || pct < 0 || pct > 100 {
		return &ValidationError{Field: "discount_percentage", Reason: "must be between 0 and 100"}
	}
	return nil
}

// Clone returns a deep copy safe to hand out.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Stations = append([]Station(nil), s.Stations...)
	for i := range out.Stations {
		if end := out.Stations[i].EndAt; end != nil {
			copied := *end
			out.Stations[i].EndAt = &copied
		}
	}
	out.FoodLines = append([]FoodLine(nil), s.FoodLines...)
	if s.EndAt != nil {
		end := *s.EndAt
		out.EndAt = &end
	}
	return &out
}
