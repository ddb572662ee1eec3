package approval

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// statusEvent is one line pushed to every /ws/status subscriber: either a
// tick completing or a command reaching a terminal status.
type statusEvent struct {
	Type       string    `json:"type"` // "tick" or "command"
	Tick       string    `json:"tick,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	CommandID  string    `json:"command_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	At         time.Time `json:"at"`
}

// statusHub fans status events out to every connected websocket client.
// Slow or dead clients are dropped rather than blocking the broadcaster.
type statusHub struct {
	mu      sync.Mutex
	clients map[chan statusEvent]struct{}
}

func newStatusHub() *statusHub {
	return &statusHub{clients: make(map[chan statusEvent]struct{})}
}

func (h *statusHub) subscribe() chan statusEvent {
	ch := make(chan statusEvent, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *statusHub) unsubscribe(ch chan statusEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *statusHub) broadcast(ev statusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- ev:
		default: // slow client, drop this event rather than block the tick
		}
	}
}

func (h *statusHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

// handleWSStatus upgrades the connection and streams statusEvents until
// the client disconnects or the server shuts down.
func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.Logger.Error("approval: websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "request context done")
			return
		}
	}
}
