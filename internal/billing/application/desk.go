package application

import (
	"context"
	"errors"
	"log"
	"sync"

	billing "lounge-desk/internal/billing/domain"
	"lounge-desk/internal/observability/metrics"
)

// ViewPublisher fans engine views out to subscribers.
type ViewPublisher interface {
	PublishView(view View)
}

// Desk keeps one engine per open session view.
type Desk struct {
	backend   Backend
	publisher ViewPublisher
	options   []Option
	logger    *log.Logger

	mu      sync.Mutex
	engines map[string]*Engine
	opening map[string]*openCall
}

type openCall struct {
	done   chan struct{}
	engine *Engine
	err    error
}

// NewDesk constructs a desk. Engine options are applied to every engine it opens.
func NewDesk(backend Backend, publisher ViewPublisher, logger *log.Logger, opts ...Option) (*Desk, error) {
	if backend == nil {
		return nil, errors.New("session desk: nil backend")
	}
	return &Desk{
		backend:   backend,
		publisher: publisher,
		options:   opts,
		logger:    logger,
		engines:   make(map[string]*Engine),
		opening:   make(map[string]*openCall),
	}, nil
}

// Open loads a session view, reusing the engine when it is already open.
func (d *Desk) Open(ctx context.Context, sessionID string) (*Engine, error) {
	d.mu.Lock()
	if engine, ok := d.engines[sessionID]; ok && !engine.Closed() {
		d.mu.Unlock()
		return engine, nil
	}
	if call, ok := d.opening[sessionID]; ok {
		d.mu.Unlock()
		select {
		case <-call.done:
			return call.engine, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	call := &openCall{done: make(chan struct{})}
	d.opening[sessionID] = call
	d.mu.Unlock()

	call.engine, call.err = d.load(ctx, sessionID)

	d.mu.Lock()
	delete(d.opening, sessionID)
	if call.err == nil {
		d.engines[sessionID] = call.engine
	}
	open := len(d.engines)
	d.mu.Unlock()
	close(call.done)

	metrics.SetOpenSessions(open)
	return call.engine, call.err
}

func (d *Desk) load(ctx context.Context, sessionID string) (*Engine, error) {
	opts := append([]Option{}, d.options...)
	if d.publisher != nil {
		opts = append(opts, WithTickListener(d.publisher.PublishView))
	}
	engine, err := NewEngine(sessionID, d.backend, opts...)
	if err != nil {
		return nil, err
	}
	if err := engine.Refresh(ctx); err != nil {
		engine.Close()
		return nil, err
	}
	if d.logger != nil {
		d.logger.Printf("session opened: session=%s", sessionID)
	}
	return engine, nil
}

// Get returns an open engine.
func (d *Desk) Get(sessionID string) (*Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	engine, ok := d.engines[sessionID]
	if !ok || engine.Closed() {
		return nil, &billing.NotFoundError{Resource: "open session", ID: sessionID}
	}
	return engine, nil
}

// Close tears down one session view.
func (d *Desk) Close(sessionID string) error {
	d.mu.Lock()
	engine, ok := d.engines[sessionID]
	delete(d.engines, sessionID)
	open := len(d.engines)
	d.mu.Unlock()
	if !ok {
		return &billing.NotFoundError{Resource: "open session", ID: sessionID}
	}
	engine.Close()
	metrics.SetOpenSessions(open)
	if d.logger != nil {
		d.logger.Printf("session view closed: session=%s", sessionID)
	}
	return nil
}

// Forget drops a session whose engine already tore itself down.
func (d *Desk) Forget(sessionID string) {
	d.mu.Lock()
	if engine, ok := d.engines[sessionID]; ok && engine.Closed() {
		delete(d.engines, sessionID)
	}
	open := len(d.engines)
	d.mu.Unlock()
	metrics.SetOpenSessions(open)
}

// Shutdown tears down every open engine.
func (d *Desk) Shutdown() {
	d.mu.Lock()
	engines := make([]*Engine, 0, len(d.engines))
	for id, engine := range d.engines {
		engines = append(engines, engine)
		delete(d.engines, id)
	}
	d.mu.Unlock()
	for _, engine := range engines {
		engine.Close()
	}
	metrics.SetOpenSessions(0)
}

// OpenSessions lists the ids of open session views.
func (d *Desk) OpenSessions() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.engines))
	for id := range d.engines {
		ids = append(ids, id)
	}
	return ids
}
