package interfaces

import (
	"encoding/json"
	"net/http"
	"sync"

	billingapp "lounge-desk/internal/billing/application"
)

// SSEBroker fans session views out to connected clients, keyed by session id.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[string]map[chan []byte]struct{}
}

// NewSSEBroker constructs a broker.
func NewSSEBroker() *SSEBroker {
	return &SSEBroker{clients: make(map[string]map[chan []byte]struct{})}
}

// PublishView implements application.ViewPublisher.
func (b *SSEBroker) PublishView(view billingapp.View) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(view)
	if err != nil {
		return
	}
	b.broadcast(view.SessionID, payload)
}

// Subscribe registers a new client channel for one session.
func (b *SSEBroker) Subscribe(sessionID string) chan []byte {
	if b == nil {
		return nil
	}
	ch := make(chan []byte, 16)
	b.mu.Lock()
	set, ok := b.clients[sessionID]
	if !ok {
		set = make(map[chan []byte]struct{})
		b.clients[sessionID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a client channel.
func (b *SSEBroker) Unsubscribe(sessionID string, ch chan []byte) {
	if b == nil || ch == nil {
		return
	}
	b.mu.Lock()
	set, ok := b.clients[sessionID]
	if ok {
		if _, subscribed := set[ch]; subscribed {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(b.clients, sessionID)
		}
	}
	b.mu.Unlock()
}

// CloseSession disconnects every client of a session.
func (b *SSEBroker) CloseSession(sessionID string) {
	if b == nil {
		return
	}
	b.mu.Lock()
	set := b.clients[sessionID]
	delete(b.clients, sessionID)
	b.mu.Unlock()
	for ch := range set {
		close(ch)
	}
}

// Subscribers reports how many clients follow a session.
func (b *SSEBroker) Subscribers(sessionID string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients[sessionID])
}

func (b *SSEBroker) broadcast(sessionID string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients[sessionID] {
		select {
		case ch <- payload:
		default:
		}
	}
}

func (h *SessionHandler) handleStream(w http.ResponseWriter, r *http.Request, sessionID string) {
	if h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	engine, err := h.desk.Get(sessionID)
	if err != nil {
		RespondError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.broker.Subscribe(sessionID)
	defer h.broker.Unsubscribe(sessionID, ch)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	if snapshot, err := json.Marshal(engine.View()); err == nil {
		writeEvent(w, "view", snapshot)
	}
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case payload, ok := <-ch:
			if !ok {
				_, _ = w.Write([]byte("event: closed\ndata: {}\n\n"))
				flusher.Flush()
				return
			}
			writeEvent(w, "view", payload)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, payload []byte) {
	_, _ = w.Write([]byte("event: " + event + "\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
