// Package bridge pushes pipeline events to connected WebSocket clients.
//
// The bridge is best effort: when a client cannot keep up, events for that
// client are dropped rather than slowing the pipeline down. Clients receive
// JSON events of the form
//
//	{"type":"translated","text":"...","pair_id":"...","timestamp":"2026-01-02T15:04:05Z"}
package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Event types published by the pipeline.
const (
	EventRecognized = "recognized"
	EventTranslated = "translated"
	EventStatus     = "status"
	EventError      = "error"
)

// clientBuffer is the per-client event queue size. Events beyond this are
// dropped for that client.
const clientBuffer = 64

// Event is one pipeline notification.
type Event struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	PairID    string    `json:"pair_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge fans pipeline events out to WebSocket subscribers. The zero value
// is not usable; use [New].
type Bridge struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	closed  bool
}

// New creates an empty bridge with no connected clients.
func New() *Bridge {
	return &Bridge{clients: make(map[chan Event]struct{})}
}

// Publish delivers ev to all connected clients. It never blocks: clients
// with a full queue miss the event.
func (b *Bridge) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// ClientCount reports the number of connected clients.
func (b *Bridge) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects all clients. Publish becomes a no-op.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.clients {
		close(ch)
	}
	b.clients = nil
	return nil
}

func (b *Bridge) subscribe() (chan Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan Event, clientBuffer)
	b.clients[ch] = struct{}{}
	return ch, true
}

func (b *Bridge) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and streams
// events until the client disconnects or the bridge closes.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("bridge: websocket accept failed", "error", err)
		return
	}

	ch, ok := b.subscribe()
	if !ok {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer b.unsubscribe(ch)

	ctx := r.Context()
	// Reads are discarded; the bridge is publish-only. The read loop exists
	// to notice client disconnects.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "done")
			return
		case ev, open := <-ch:
			if !open {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				slog.Warn("bridge: marshal event failed", "error", err)
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
