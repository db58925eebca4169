package push

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/bz888/gab/internal/logger"
)

// Push event names delivered over the /events websocket.
const (
	EventCanceled        = "canceled"
	EventStreamError     = "stream_error"
	EventCompleted       = "completed"
	EventCompletionError = "completion_error"
)

// Event is one out-of-band notification frame. RequestID names the reply
// slot the event belongs to, never the task id; the client coordinator keys
// its bookkeeping on request ids.
type Event struct {
	Event     string `json:"event"`
	RequestID string `json:"requestId"`
}

// Hub fans push events out to every connected websocket client. Connections
// that fail a write are dropped on the spot.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]struct{}),
	}
}

func (h *Hub) Add(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Remove(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	h.mu.Lock()
	delete(h.conns, conn)
	h.mu.Unlock()
	conn.Close()
}

// Publish broadcasts one event frame to all clients.
func (h *Hub) Publish(event, requestID string) {
	localLogger := logger.NewLogger("push hub")

	data, err := json.Marshal(Event{Event: event, RequestID: requestID})
	if err != nil {
		localLogger.Error("Failed to encode push event:", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			localLogger.Warn("Push write failed, dropping connection:", err)
			delete(h.conns, conn)
			conn.Close()
		}
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		conn.Close()
		delete(h.conns, conn)
	}
}
