package application

import (
	"context"
	"errors"
	"strings"
	"time"

	billingapi "lounge-desk/internal/billing/adapters/loungeapi"
	billing "lounge-desk/internal/billing/domain"
	lounge "lounge-desk/internal/loungeapi"
)

// Period is the bucket size of a series.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod validates a period, defaulting to daily.
func ParsePeriod(value string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(value))) {
	case "", PeriodDaily:
		return PeriodDaily, nil
	case PeriodWeekly:
		return PeriodWeekly, nil
	case PeriodMonthly:
		return PeriodMonthly, nil
	}
	return "", &billing.ValidationError{Field: "period", Reason: "must be daily, weekly or monthly"}
}

// Client is the part of the lounge REST client the dashboard uses.
type Client interface {
	Series(ctx context.Context, metric lounge.Metric, start, end time.Time, period string) ([]lounge.SeriesPoint, error)
	Activity(ctx context.Context) (lounge.Activity, error)
}

// Range is an inclusive day range.
type Range struct {
	Start  time.Time
	End    time.Time
	Period Period
}

// NewRange validates that both days are set and start is not after end.
func NewRange(start, end time.Time, period Period) (Range, error) {
	if start.IsZero() {
		return Range{}, &billing.ValidationError{Field: "start_date", Reason: "is required"}
	}
	if end.IsZero() {
		return Range{}, &billing.ValidationError{Field: "end_date", Reason: "is required"}
	}
	if start.After(end) {
		return Range{}, &billing.ValidationError{Field: "start_date", Reason: "must not be after end_date"}
	}
	if period == "" {
		period = PeriodDaily
	}
	return Range{Start: start, End: end, Period: period}, nil
}

// Series is a chart-ready label/value list.
type Series struct {
	Metric string    `json:"metric"`
	Period Period    `json:"period"`
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
	Total  float64   `json:"total"`
}

// Split is the active vs inactive user split.
type Split struct {
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

// Dashboard reads analytics series from the backend.
type Dashboard struct {
	client Client
}

// NewDashboard constructs a dashboard.
func NewDashboard(client Client) (*Dashboard, error) {
	if client == nil {
		return nil, errors.New("analytics dashboard: nil client")
	}
	return &Dashboard{client: client}, nil
}

// Registrations returns registration counts per period.
func (d *Dashboard) Registrations(ctx context.Context, r Range) (Series, error) {
	return d.series(ctx, lounge.MetricRegistrations, r)
}

// Income returns billed income per period.
func (d *Dashboard) Income(ctx context.Context, r Range) (Series, error) {
	return d.series(ctx, lounge.MetricIncome, r)
}

// AverageSessionDuration returns mean session length per period.
func (d *Dashboard) AverageSessionDuration(ctx context.Context, r Range) (Series, error) {
	return d.series(ctx, lounge.MetricSessionDuration, r)
}

// Activity returns active vs inactive users.
func (d *Dashboard) Activity(ctx context.Context) (Split, error) {
	activity, err := d.client.Activity(ctx)
	if err != nil {
		return Split{}, billingapi.MapError("analytics activity", err)
	}
	return Split{Active: activity.Active, Inactive: activity.Inactive}, nil
}

func (d *Dashboard) series(ctx context.Context, metric lounge.Metric, r Range) (Series, error) {
	if _, err := NewRange(r.Start, r.End, r.Period); err != nil {
		return Series{}, err
	}
	period, err := ParsePeriod(string(r.Period))
	if err != nil {
		return Series{}, err
	}
	points, err := d.client.Series(ctx, metric, r.Start, r.End, string(period))
	if err != nil {
		return Series{}, billingapi.MapError("analytics "+string(metric), err)
	}
	out := Series{
		Metric: string(metric),
		Period: period,
		Labels: make([]string, 0, len(points)),
		Values: make([]float64, 0, len(points)),
	}
	for _, point := range points {
		out.Labels = append(out.Labels, point.Label)
		out.Values = append(out.Values, point.Value)
		out.Total += point.Value
	}
	return out, nil
}
