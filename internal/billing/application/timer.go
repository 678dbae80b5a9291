package application

import (
	"sync"
	"time"
)

// Timer is a cancellable recurring callback.
type Timer interface {
	Stop()
}

// TimerFactory schedules recurring callbacks.
type TimerFactory interface {
	Every(interval time.Duration, fn func()) Timer
}

// TickerFactory runs callbacks from a time.Ticker goroutine.
type TickerFactory struct{}

// Every starts a ticker loop until Stop is called.
func (TickerFactory) Every(interval time.Duration, fn func()) Timer {
	if interval <= 0 {
		interval = time.Minute
	}
	t := &tickerTimer{done: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return t
}

type tickerTimer struct {
	once sync.Once
	done chan struct{}
}

func (t *tickerTimer) Stop() {
	t.once.Do(func() { close(t.done) })
}
