// Package realtime maintains the set of WebSocket subscribers and
// fans out host/container/graph/deployment/alert events to them as a
// JSON envelope (C11, §4.11). Failed or slow sends evict the
// subscriber; there is no backpressure policy.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/infra-mapper/infra-mapper/internal/logging"
	"github.com/infra-mapper/infra-mapper/internal/metrics"
)

// Event types broadcast to subscribers (§4.11).
const (
	EventHostUpdate           = "host_update"
	EventContainerChanged     = "container_changed"
	EventGraphRefresh         = "graph_refresh"
	EventDeploymentProgressed = "deployment_progressed"
	EventAlertFired           = "alert_fired"
	EventAlertResolved        = "alert_resolved"
)

// envelope is the wire shape of every broadcast message.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// sendBufferSize bounds how far a subscriber may fall behind before
// it is treated as unresponsive and evicted.
const sendBufferSize = 32

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected WebSocket subscribers and broadcasts events to
// them. Satisfies internal/ingest's Broadcaster and internal/alert's
// Broadcaster interfaces (both just `Broadcast(eventType string, data any)`).
type Hub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	next uint64
	log  *logging.Logger
}

// New creates an empty Hub.
func New(log *logging.Logger) *Hub {
	return &Hub{subs: make(map[uint64]*subscriber), log: log}
}

// Broadcast marshals data into a {type, data} envelope and pushes it
// to every connected subscriber. A subscriber whose send buffer is
// full is evicted rather than blocking the broadcaster.
func (h *Hub) Broadcast(eventType string, data any) {
	body, err := json.Marshal(envelope{Type: eventType, Data: data})
	if err != nil {
		h.log.Warn("realtime: marshal broadcast failed", "event_type", eventType, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		targets = append(targets, id)
	}
	h.mu.RUnlock()

	for _, id := range targets {
		h.mu.RLock()
		s, ok := h.subs[id]
		h.mu.RUnlock()
		if !ok {
			continue
		}
		select {
		case s.send <- body:
		default:
			h.evict(id) // can't keep up: drop it (§4.11 no backpressure policy)
		}
	}
}

// ServeWS upgrades the request to a WebSocket connection and
// registers it as a subscriber until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("realtime: upgrade failed", "error", err)
		return
	}

	s := &subscriber{conn: conn, send: make(chan []byte, sendBufferSize)}
	id := h.register(s)
	defer h.evict(id)

	done := make(chan struct{})
	go h.writePump(s, done)
	h.readPump(s) // blocks until the client disconnects
	close(done)
}

func (h *Hub) register(s *subscriber) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = s
	metrics.WebSocketSubscribers.Set(float64(len(h.subs)))
	return id
}

func (h *Hub) evict(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	metrics.WebSocketSubscribers.Set(float64(len(h.subs)))
	h.mu.Unlock()
	if ok {
		close(s.send)
		_ = s.conn.Close()
	}
}

// readPump handles client-initiated pings (the spec's "ping frames
// receive pong") and keeps the connection's read deadline alive via
// the standard WebSocket control-frame pong handler. It returns when
// the client disconnects.
func (h *Hub) readPump(s *subscriber) {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.TextMessage && string(data) == "ping" {
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte("pong")); err != nil {
				return
			}
		}
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	}
}

// writePump drains the subscriber's send buffer onto the socket and
// issues periodic control-frame pings to detect dead connections.
func (h *Hub) writePump(s *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case body, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
