package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	billing "lounge-desk/internal/billing/domain"
	"lounge-desk/internal/observability/metrics"
)

const (
	// DefaultTickInterval is how often a running station refreshes its display.
	DefaultTickInterval = time.Minute
	// DefaultRate is the hourly rate used when the rate card has no entry.
	DefaultRate = 50.0
)

// DefaultDiscountOptions are the selectable discount percentages.
var DefaultDiscountOptions = []float64{0, 5, 10, 15}

// TickListener receives a fresh view on every timer tick and state change.
type TickListener func(View)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithTimerFactory overrides how recurring timers are scheduled.
func WithTimerFactory(timers TimerFactory) Option {
	return func(e *Engine) {
		if timers != nil {
			e.timers = timers
		}
	}
}

// WithTickInterval sets the refresh interval of running stations.
func WithTickInterval(interval time.Duration) Option {
	return func(e *Engine) {
		if interval > 0 {
			e.interval = interval
		}
	}
}

// WithRateCard sets default hourly rates per kind.
func WithRateCard(rates map[billing.Kind]float64) Option {
	return func(e *Engine) {
		for kind, rate := range rates {
			if rate >= 0 {
				e.rates[kind] = rate
			}
		}
	}
}

// WithDiscountOptions sets the selectable discount percentages.
func WithDiscountOptions(options []float64) Option {
	return func(e *Engine) {
		valid := make([]float64, 0, len(options))
		for _, pct := range options {
			if billing.ValidateDiscount(pct) == nil {
				valid = append(valid, pct)
			}
		}
		if len(valid) > 0 {
			e.discounts = valid
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTickListener registers the view listener.
func WithTickListener(listener TickListener) Option {
	return func(e *Engine) {
		e.listener = listener
	}
}

// Engine owns the billing state of one open session view: station timers,
// the food ledger and the bill aggregator. It is safe for concurrent use.
type Engine struct {
	sessionID string
	backend   Backend
	clock     Clock
	timers    TimerFactory
	interval  time.Duration
	rates     map[billing.Kind]float64
	discounts []float64
	logger    *log.Logger
	listener  TickListener

	mu         sync.Mutex
	session    *billing.Session
	handles    map[billing.Kind]Timer
	starting   map[billing.Kind]bool
	stopping   map[billing.Kind]bool
	ordering   int
	finalizing bool
	billUnread bool
	frozenAt   time.Time
	ending     bool
	closed     bool
}

// NewEngine constructs an engine for a session id. Call Refresh to load it.
func NewEngine(sessionID string, backend Backend, opts ...Option) (*Engine, error) {
	if backend == nil {
		return nil, errors.New("billing engine: nil backend")
	}
	session, err := billing.NewSession(sessionID, billing.Holder{}, time.Time{})
	if err != nil {
		return nil, err
	}
	e := &Engine{
		sessionID: sessionID,
		backend:   backend,
		clock:     SystemClock{},
		timers:    TickerFactory{},
		interval:  DefaultTickInterval,
		rates:     make(map[billing.Kind]float64, len(billing.Kinds)),
		discounts: append([]float64(nil), DefaultDiscountOptions...),
		session:   session,
		handles:   make(map[billing.Kind]Timer),
		starting:  make(map[billing.Kind]bool),
		stopping:  make(map[billing.Kind]bool),
	}
	for _, kind := range billing.Kinds {
		e.rates[kind] = DefaultRate
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SessionID returns the session the engine serves.
func (e *Engine) SessionID() string { return e.sessionID }

// DefaultRate returns the configured hourly rate for a kind.
func (e *Engine) DefaultRate(kind billing.Kind) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rate, ok := e.rates[kind]; ok {
		return rate
	}
	return DefaultRate
}

// Start opens a new station of the given kind at the current instant.
func (e *Engine) Start(ctx context.Context, kind billing.Kind, rate float64) (billing.Station, error) {
	kind, err := billing.ParseKind(string(kind))
	if err != nil {
		return billing.Station{}, err
	}
	if rate < 0 || rate != rate {
		return billing.Station{}, &billing.ValidationError{Field: "rate", Reason: "must not be negative"}
	}

	e.mu.Lock()
	if err := e.editableLocked("start station"); err != nil {
		e.mu.Unlock()
		return billing.Station{}, err
	}
	if _, running := e.session.RunningStation(kind); running {
		e.mu.Unlock()
		return billing.Station{}, &billing.ConflictError{Op: "start station", Reason: fmt.Sprintf("%s is already running", kind)}
	}
	if e.starting[kind] {
		e.mu.Unlock()
		return billing.Station{}, &billing.ConflictError{Op: "start station", Reason: fmt.Sprintf("%s start already in flight", kind)}
	}
	e.starting[kind] = true
	startAt := e.clock.Now()
	e.mu.Unlock()

	station, err := e.backend.StartStation(ctx, e.sessionID, kind, rate, startAt)

	e.mu.Lock()
	delete(e.starting, kind)
	if err != nil {
		e.mu.Unlock()
		e.logf("billing start error: session=%s kind=%s err=%v", e.sessionID, kind, err)
		return billing.Station{}, err
	}
	if err := e.editableLocked("start station"); err != nil {
		e.mu.Unlock()
		e.logf("billing start dropped: session=%s kind=%s station=%d err=%v", e.sessionID, kind, station.ID, err)
		return billing.Station{}, err
	}
	station.Kind = kind
	if station.StartAt.IsZero() {
		station.StartAt = startAt
	}
	if idx := e.session.StationIndex(station.ID); idx >= 0 {
		e.session.Stations[idx] = station
	} else {
		e.session.Stations = append(e.session.Stations, station)
	}
	if station.Running() {
		e.armLocked(kind)
	}
	view := e.viewLocked()
	e.mu.Unlock()

	metrics.IncStationEvent(kind.String(), "start")
	e.emit(view)
	return station, nil
}

// End closes the running station of the given kind.
func (e *Engine) End(ctx context.Context, kind billing.Kind) (billing.Station, error) {
	kind, err := billing.ParseKind(string(kind))
	if err != nil {
		return billing.Station{}, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return billing.Station{}, &billing.ConflictError{Op: "end station", Reason: "session view is closed"}
	}
	if e.finalizing {
		e.mu.Unlock()
		return billing.Station{}, &billing.ConflictError{Op: "end station", Reason: "finalize in flight"}
	}
	station, running := e.session.RunningStation(kind)
	if !running {
		e.mu.Unlock()
		return billing.Station{}, &billing.NotFoundError{Resource: "running station", ID: kind.String()}
	}
	if e.stopping[kind] {
		e.mu.Unlock()
		return billing.Station{}, &billing.ConflictError{Op: "end station", Reason: fmt.Sprintf("%s end already in flight", kind)}
	}
	e.stopping[kind] = true
	e.mu.Unlock()

	remote, err := e.backend.EndStation(ctx, station.ID)

	e.mu.Lock()
	delete(e.stopping, kind)
	if err != nil {
		e.mu.Unlock()
		e.logf("billing end error: session=%s kind=%s station=%d err=%v", e.sessionID, kind, station.ID, err)
		return billing.Station{}, err
	}
	endAt := e.clock.Now()
	if remote.EndAt != nil {
		endAt = *remote.EndAt
	}
	ended := station.EndedAt(endAt)
	if idx := e.session.StationIndex(station.ID); idx >= 0 {
		ended = e.session.Stations[idx].EndedAt(endAt)
		e.session.Stations[idx] = ended
	}
	e.disarmLocked(kind)
	view := e.viewLocked()
	e.mu.Unlock()

	metrics.IncStationEvent(kind.String(), "end")
	e.emit(view)
	return ended, nil
}

// Elapsed renders HH:MM for the most recent station of the kind.
func (e *Engine) Elapsed(kind billing.Kind) (string, error) {
	kind, err := billing.ParseKind(string(kind))
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	station, ok := e.session.LatestStation(kind)
	if !ok {
		return "", &billing.NotFoundError{Resource: "station", ID: kind.String()}
	}
	elapsed, err := station.Elapsed(e.clock.Now())
	if err != nil {
		return "", err
	}
	return billing.FormatElapsed(elapsed), nil
}

// ActiveKinds lists the kinds with a running station.
func (e *Engine) ActiveKinds() []billing.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := make([]billing.Kind, 0, len(billing.Kinds))
	for _, kind := range billing.Kinds {
		if _, ok := e.session.RunningStation(kind); ok {
			active = append(active, kind)
		}
	}
	return active
}

// CorrectRate replaces a station's hourly rate. Unparseable values are ignored.
func (e *Engine) CorrectRate(stationID int64, value string) error {
	e.mu.Lock()
	if err := e.editableLocked("correct rate"); err != nil {
		e.mu.Unlock()
		return err
	}
	idx := e.session.StationIndex(stationID)
	if idx < 0 {
		e.mu.Unlock()
		return &billing.NotFoundError{Resource: "station", ID: strconv.FormatInt(stationID, 10)}
	}
	rate, ok := billing.ParseAmount(value)
	if !ok {
		e.mu.Unlock()
		return nil
	}
	e.session.Stations[idx].Rate = rate
	view := e.viewLocked()
	e.mu.Unlock()
	e.emit(view)
	return nil
}

// AddLine places a food order and appends the returned line.
func (e *Engine) AddLine(ctx context.Context, item string, price float64, quantity int) (billing.FoodLine, error) {
	line, err := billing.NewFoodLine(item, price, quantity)
	if err != nil {
		return billing.FoodLine{}, err
	}
	e.mu.Lock()
	if err := e.editableLocked("add food"); err != nil {
		e.mu.Unlock()
		return billing.FoodLine{}, err
	}
	e.ordering++
	e.mu.Unlock()

	placed, err := e.backend.PlaceOrder(ctx, e.sessionID, line)

	e.mu.Lock()
	e.ordering--
	if err != nil {
		e.mu.Unlock()
		e.logf("billing order error: session=%s item=%s err=%v", e.sessionID, line.Item, err)
		return billing.FoodLine{}, err
	}
	if err := e.editableLocked("add food"); err != nil {
		e.mu.Unlock()
		e.logf("billing order dropped: session=%s item=%s line=%d err=%v", e.sessionID, line.Item, placed.ID, err)
		return billing.FoodLine{}, err
	}
	if placed.Item == "" {
		placed.Item = line.Item
	}
	if idx := e.session.LineIndex(placed.ID); idx >= 0 && placed.ID != 0 {
		e.session.FoodLines[idx] = placed
	} else {
		e.session.FoodLines = append(e.session.FoodLines, placed)
	}
	view := e.viewLocked()
	e.mu.Unlock()
	e.emit(view)
	return placed, nil
}

// UpdateLine corrects price or quantity of a line. Unparseable values are ignored.
func (e *Engine) UpdateLine(lineID int64, field string, value string) error {
	parsed, err := billing.ParseLineField(field)
	if err != nil {
		return err
	}
	e.mu.Lock()
	if err := e.editableLocked("update food"); err != nil {
		e.mu.Unlock()
		return err
	}
	idx := e.session.LineIndex(lineID)
	if idx < 0 {
		e.mu.Unlock()
		return &billing.NotFoundError{Resource: "food line", ID: strconv.FormatInt(lineID, 10)}
	}
	updated, ok := e.session.FoodLines[idx].Apply(parsed, value)
	if !ok {
		e.mu.Unlock()
		return nil
	}
	e.session.FoodLines[idx] = updated
	view := e.viewLocked()
	e.mu.Unlock()
	e.emit(view)
	return nil
}

// LineCost returns price x quantity for one line.
func (e *Engine) LineCost(lineID int64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.session.LineIndex(lineID)
	if idx < 0 {
		return 0, &billing.NotFoundError{Resource: "food line", ID: strconv.FormatInt(lineID, 10)}
	}
	return e.session.FoodLines[idx].Cost(), nil
}

// TotalCost sums stations and food against the current clock.
func (e *Engine) TotalCost() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Total(e.clock.Now())
}

// FinalCost applies a discount percentage to TotalCost.
func (e *Engine) FinalCost(discountPct float64) (float64, error) {
	if err := billing.ValidateDiscount(discountPct); err != nil {
		return 0, err
	}
	return billing.ApplyDiscount(e.TotalCost(), discountPct)
}

// SetDiscount selects one of the configured discount options.
func (e *Engine) SetDiscount(discountPct float64) error {
	if err := billing.ValidateDiscount(discountPct); err != nil {
		return err
	}
	e.mu.Lock()
	if err := e.editableLocked("set discount"); err != nil {
		e.mu.Unlock()
		return err
	}
	allowed := false
	for _, option := range e.discounts {
		if option == discountPct {
			allowed = true
			break
		}
	}
	if !allowed {
		e.mu.Unlock()
		return &billing.ValidationError{Field: "discount_percentage", Reason: "not a selectable option"}
	}
	e.session.Discount = discountPct
	view := e.viewLocked()
	e.mu.Unlock()
	e.emit(view)
	return nil
}

// Finalize asks the backend to close the bill with the selected discount.
// Only one call may be in flight.
func (e *Engine) Finalize(ctx context.Context) (View, error) {
	e.mu.Lock()
	if e.closed || e.session.State == billing.StateClosed {
		e.mu.Unlock()
		return View{}, &billing.ConflictError{Op: "finalize", Reason: "session is closed"}
	}
	if e.finalizing {
		e.mu.Unlock()
		return View{}, &billing.ConflictError{Op: "finalize", Reason: "finalize already in flight"}
	}
	if len(e.starting) > 0 || len(e.stopping) > 0 || e.ordering > 0 {
		e.mu.Unlock()
		return View{}, &billing.ConflictError{Op: "finalize", Reason: "station or order change in flight"}
	}
	e.finalizing = true
	discount := e.session.Discount
	e.mu.Unlock()

	start := time.Now()
	snapshot, err := e.backend.FinalizeBill(ctx, e.sessionID, discount)
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveFinalize(result, time.Since(start))

	e.mu.Lock()
	e.finalizing = false
	if err != nil {
		e.mu.Unlock()
		e.logf("billing finalize error: session=%s err=%v", e.sessionID, err)
		return View{}, err
	}
	frozenAt := e.clock.Now()
	if snapshot.Unread {
		e.logf("billing finalize: session=%s bill not re-read, keeping local snapshot until refresh", e.sessionID)
		snapshot.Stations = e.session.Stations
		snapshot.FoodLines = e.session.FoodLines
	} else if err := (&billing.Session{Stations: snapshot.Stations}).CheckStarts(frozenAt); err != nil {
		e.logf("billing finalize snapshot: session=%s err=%v", e.sessionID, err)
	}
	e.session.Stations = freezeStations(snapshot.Stations, frozenAt)
	e.session.FoodLines = append([]billing.FoodLine(nil), snapshot.FoodLines...)
	e.billUnread = snapshot.Unread
	e.frozenAt = frozenAt
	e.session.State = billing.StateFinalized
	e.stopAllLocked()
	view := e.viewLocked()
	e.mu.Unlock()

	e.emit(view)
	return view, nil
}

// EndSession closes the customer session. It requires a finalized bill.
func (e *Engine) EndSession(ctx context.Context) error {
	e.mu.Lock()
	if e.session.State == billing.StateOpen {
		e.mu.Unlock()
		return &billing.ConflictError{Op: "end session", Reason: "bill must be finalized first"}
	}
	if e.ending {
		e.mu.Unlock()
		return &billing.ConflictError{Op: "end session", Reason: "end session already in flight"}
	}
	e.ending = true
	e.mu.Unlock()

	err := e.backend.EndSession(ctx, e.sessionID)

	e.mu.Lock()
	e.ending = false
	if err != nil {
		e.mu.Unlock()
		e.logf("billing end session error: session=%s err=%v", e.sessionID, err)
		return err
	}
	if e.session.EndAt == nil {
		now := e.clock.Now()
		e.session.EndAt = &now
	}
	e.session.State = billing.StateClosed
	e.teardownLocked()
	view := e.viewLocked()
	e.mu.Unlock()

	e.emit(view)
	return nil
}

// Refresh re-reads registration, stations and orders and reconciles timers.
// Failures leave local state untouched.
func (e *Engine) Refresh(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return &billing.ConflictError{Op: "refresh", Reason: "session view is closed"}
	}
	e.mu.Unlock()

	registration, err := e.backend.GetRegistration(ctx, e.sessionID)
	if err != nil {
		e.logf("billing refresh error: session=%s step=registration err=%v", e.sessionID, err)
		return err
	}
	stations, err := e.backend.ListStations(ctx, e.sessionID)
	if err != nil {
		e.logf("billing refresh error: session=%s step=stations err=%v", e.sessionID, err)
		return err
	}
	lines, err := e.backend.ListFoodLines(ctx, e.sessionID)
	if err != nil {
		e.logf("billing refresh error: session=%s step=orders err=%v", e.sessionID, err)
		return err
	}
	candidate := &billing.Session{Stations: stations}
	if err := candidate.CheckRunning(); err != nil {
		e.logf("billing refresh error: session=%s step=check err=%v", e.sessionID, err)
		return err
	}
	if err := candidate.CheckStarts(e.clock.Now()); err != nil {
		e.logf("billing refresh error: session=%s step=check err=%v", e.sessionID, err)
		return err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.session.Holder = registration.Holder
	e.session.EntryAt = registration.EntryAt
	switch {
	case e.session.State == billing.StateOpen:
		e.session.Stations = stations
		e.session.FoodLines = lines
		e.reconcileLocked()
	case e.billUnread:
		e.session.Stations = freezeStations(stations, e.frozenAt)
		e.session.FoodLines = lines
		e.billUnread = false
	}
	view := e.viewLocked()
	e.mu.Unlock()

	e.emit(view)
	return nil
}

// View returns the current snapshot.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

// Session returns a copy of the underlying session.
func (e *Engine) Session() *billing.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone()
}

// Close cancels every remaining timer. Safe to call more than once.
func (e *Engine) Close() {
	e.mu.Lock()
	e.teardownLocked()
	e.mu.Unlock()
}

// Closed reports whether the engine was torn down.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) editableLocked(op string) error {
	if e.closed {
		return &billing.ConflictError{Op: op, Reason: "session view is closed"}
	}
	if e.session.State != billing.StateOpen {
		return &billing.ConflictError{Op: op, Reason: "bill is already finalized"}
	}
	if e.finalizing {
		return &billing.ConflictError{Op: op, Reason: "finalize in flight"}
	}
	return nil
}

func freezeStations(stations []billing.Station, at time.Time) []billing.Station {
	frozen := make([]billing.Station, 0, len(stations))
	for _, station := range stations {
		if station.Running() {
			station = station.EndedAt(at)
		}
		frozen = append(frozen, station)
	}
	return frozen
}

func (e *Engine) armLocked(kind billing.Kind) {
	if _, ok := e.handles[kind]; ok {
		return
	}
	e.handles[kind] = e.timers.Every(e.interval, func() { e.onTick(kind) })
	metrics.AddRunningTimers(1)
}

func (e *Engine) disarmLocked(kind billing.Kind) {
	handle, ok := e.handles[kind]
	if !ok {
		return
	}
	delete(e.handles, kind)
	handle.Stop()
	metrics.AddRunningTimers(-1)
}

func (e *Engine) stopAllLocked() {
	for _, kind := range billing.Kinds {
		e.disarmLocked(kind)
	}
}

func (e *Engine) teardownLocked() {
	e.stopAllLocked()
	e.closed = true
}

func (e *Engine) reconcileLocked() {
	for _, kind := range billing.Kinds {
		_, running := e.session.RunningStation(kind)
		_, armed := e.handles[kind]
		switch {
		case running && !armed:
			e.armLocked(kind)
		case !running && armed:
			e.disarmLocked(kind)
		}
	}
}

func (e *Engine) onTick(kind billing.Kind) {
	e.mu.Lock()
	if _, ok := e.handles[kind]; !ok || e.closed {
		e.mu.Unlock()
		return
	}
	view := e.viewLocked()
	e.mu.Unlock()
	e.emit(view)
}

func (e *Engine) viewLocked() View {
	return buildView(e.session, e.clock.Now(), e.discounts, e.finalizing)
}

func (e *Engine) emit(view View) {
	if e.listener != nil {
		e.listener(view)
	}
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
