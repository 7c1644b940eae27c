// Package progress streams population evaluation progress to websocket clients.
package progress

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"creaturelab/internal/evo"
	"creaturelab/internal/logging"
)

const writeWait = 2 * time.Second

// Event is one progress update. Completed increases by one per finished creature.
type Event struct {
	RunID      string `json:"runId,omitempty"`
	Generation int    `json:"generation"`
	Completed  int    `json:"completed"`
	Total      int    `json:"total"`
	Done       bool   `json:"done,omitempty"`
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans progress events out to every connected client. New clients
// receive the latest event straight away.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	nextID      atomic.Uint64
	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	last        []byte
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subscribers: make(map[uint64]*subscriber),
	}
}

// Handler upgrades requests to websocket subscriptions.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		id := h.nextID.Add(1)
		sub := &subscriber{conn: conn}
		h.mu.Lock()
		h.subscribers[id] = sub
		last := h.last
		h.mu.Unlock()
		h.logger.Debug("progress subscriber connected", "subscriber", id)

		if last != nil {
			if err := sub.write(last); err != nil {
				h.drop(id)
				return
			}
		}

		// Clients never send anything meaningful; reading detects disconnects.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(id)
				return
			}
		}
	})
}

// Publish sends ev to every subscriber, dropping the ones that fail.
func (h *Hub) Publish(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal progress event", "error", err)
		return
	}

	h.mu.Lock()
	h.last = data
	subs := make(map[uint64]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.write(data); err != nil {
			h.logger.Debug("failed to send progress", "subscriber", id, "error", err)
			h.drop(id)
		}
	}
}

// Reporter adapts the hub to the batch simulator's progress callback.
func (h *Hub) Reporter(runID string, generation int) evo.ProgressFunc {
	return func(completed, total int) {
		h.Publish(Event{
			RunID:      runID,
			Generation: generation,
			Completed:  completed,
			Total:      total,
			Done:       completed == total,
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subscribers
	h.subscribers = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = sub.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		_ = sub.conn.Close()
		sub.mu.Unlock()
	}
}

func (h *Hub) drop(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	delete(h.subscribers, id)
	h.mu.Unlock()
	if ok {
		_ = sub.conn.Close()
		h.logger.Debug("progress subscriber disconnected", "subscriber", id)
	}
}
