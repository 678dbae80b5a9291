package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	billing "lounge-desk/internal/billing/domain"
)

type recordingPublisher struct {
	mu    sync.Mutex
	views []View
}

func (p *recordingPublisher) PublishView(view View) {
	p.mu.Lock()
	p.views = append(p.views, view)
	p.mu.Unlock()
}

func TestDesk_OpenReusesEngine(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	timers := &manualTimers{}
	backend := newFakeBackend(clock)
	publisher := &recordingPublisher{}
	desk, err := NewDesk(backend, publisher, nil, WithClock(clock), WithTimerFactory(timers))
	if err != nil {
		t.Fatalf("new desk: %v", err)
	}
	ctx := context.Background()
	first, err := desk.Open(ctx, "sess-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := desk.Open(ctx, "sess-1")
	if err != nil || first != second {
		t.Fatalf("expected same engine, got %p %p (%v)", first, second, err)
	}
	if first.View().HolderName != "Asha" {
		t.Fatalf("expected registration loaded")
	}

	if _, err := first.Start(ctx, billing.KindLounge, 50); err != nil {
		t.Fatalf("start: %v", err)
	}
	publisher.mu.Lock()
	published := len(publisher.views)
	publisher.mu.Unlock()
	if published == 0 {
		t.Fatalf("expected views published")
	}
}

func TestDesk_ShutdownTearsDownEngines(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	timers := &manualTimers{}
	backend := newFakeBackend(clock)
	desk, _ := NewDesk(backend, nil, nil, WithClock(clock), WithTimerFactory(timers))
	ctx := context.Background()

	engine, err := desk.Open(ctx, "sess-1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_, _ = engine.Start(ctx, billing.KindConsole, 50)
	desk.Shutdown()

	if !engine.Closed() {
		t.Fatalf("expected engine closed")
	}
	if timers.all()[0].stops != 1 {
		t.Fatalf("expected timer stopped once")
	}
	if _, err := desk.Get("sess-1"); !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected not found after shutdown, got %v", err)
	}
	if err := desk.Close("sess-1"); !errors.Is(err, billing.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDesk_OpenFailure(t *testing.T) {
	clock := &manualClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	backend := newFakeBackend(clock)
	backend.listErr = billing.NewRemoteError("list stations", 502, "", nil)
	desk, _ := NewDesk(backend, nil, nil, WithClock(clock), WithTimerFactory(&manualTimers{}))
	if _, err := desk.Open(context.Background(), "sess-1"); !errors.Is(err, billing.ErrRemote) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if len(desk.OpenSessions()) != 0 {
		t.Fatalf("failed open must not register an engine")
	}
}
