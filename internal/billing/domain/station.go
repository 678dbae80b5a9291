package billing

import (
	"fmt"
	"time"
)

// Station is one rented resource (a "system" on the wire).
type Station struct {
	ID      int64
	Kind    Kind
	Rate    float64
	StartAt time.Time
	EndAt   *time.Time
}

// NewStation validates and builds a station record.
func NewStation(id int64, kind Kind, rate float64, startAt time.Time, endAt *time.Time) (Station, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Station{}, err
	}
	if rate < 0 {
		return Station{}, &ValidationError{Field: "rate", Reason: "must not be negative"}
	}
	if startAt.IsZero() {
		return Station{}, &ValidationError{Field: "start_time", Reason: "required"}
	}
	if endAt != nil && endAt.Before(startAt) {
		return Station{}, &InvariantViolation{Reason: fmt.Sprintf("station %d ends before it starts", id)}
	}
	return Station{ID: id, Kind: kind, Rate: rate, StartAt: startAt, EndAt: endAt}, nil
}

// Running reports whether the station has no end timestamp.
func (s Station) Running() bool { return s.EndAt == nil }

// Elapsed returns (end ?? now) - start.
func (s Station) Elapsed(now time.Time) (time.Duration, error) {
	end := now
	if s.EndAt != nil {
		end = *s.EndAt
	}
	if s.StartAt.After(end) {
		return 0, &InvariantViolation{Reason: fmt.Sprintf("station %d starts in the future", s.ID)}
	}
	return end.Sub(s.StartAt), nil
}

// Cost returns rate x elapsed hours at full precision. A future-dated start costs nothing.
func (s Station) Cost(now time.Time) float64 {
	elapsed, err := s.Elapsed(now)
	if err != nil {
		return 0
	}
	return s.Rate * elapsed.Hours()
}

// EndedAt returns a copy of the station closed at the given instant.
func (s Station) EndedAt(at time.Time) Station {
	if at.Before(s.StartAt) {
		at = s.StartAt
	}
	end := at
	s.EndAt = &end
	return s
}
