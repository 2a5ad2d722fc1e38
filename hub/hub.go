// Package hub provides per-run fan-out of live events to subscribers.
//
// Delivery is best-effort for the lifetime of a subscription; durable history
// is served by the store, not the hub.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runforge/runforge/metrics"
)

// Subscriber is one live consumer of a run's event stream. Messages arrive on
// Send; the channel is closed when the subscriber is removed.
type Subscriber struct {
	ID    string
	RunID string
	Send  chan []byte
}

// Hub manages rooms of subscribers keyed by run id.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]*Subscriber
	buffer int
	logger *zap.Logger
}

// New creates a Hub whose subscribers buffer up to buffer pending messages.
func New(logger *zap.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		rooms:  make(map[string]map[string]*Subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe joins the room for runID.
func (h *Hub) Subscribe(runID string) *Subscriber {
	sub := &Subscriber{
		ID:    uuid.New().String(),
		RunID: runID,
		Send:  make(chan []byte, h.buffer),
	}

	h.mu.Lock()
	room := h.rooms[runID]
	if room == nil {
		room = make(map[string]*Subscriber)
		h.rooms[runID] = room
	}
	room[sub.ID] = sub
	h.mu.Unlock()

	metrics.LiveSubscribers.Inc()
	h.logger.Debug("subscriber joined", zap.String("run_id", runID), zap.String("subscriber_id", sub.ID))
	return sub
}

// Unsubscribe removes a subscriber and discards its room once empty.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	room, ok := h.rooms[sub.RunID]
	if ok {
		if _, member := room[sub.ID]; member {
			delete(room, sub.ID)
			close(sub.Send)
			metrics.LiveSubscribers.Dec()
		}
		if len(room) == 0 {
			delete(h.rooms, sub.RunID)
		}
	}
	h.mu.Unlock()
}

// Broadcast sends data to every subscriber in the run's room. A subscriber
// that cannot keep up is dropped rather than blocking the insert path.
func (h *Hub) Broadcast(runID string, data []byte) {
	h.mu.RLock()
	var stalled []*Subscriber
	for _, sub := range h.rooms[runID] {
		select {
		case sub.Send <- data:
			metrics.LiveBroadcasts.Inc()
		default:
			stalled = append(stalled, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range stalled {
		h.logger.Warn("subscriber buffer full, dropping",
			zap.String("run_id", runID), zap.String("subscriber_id", sub.ID))
		h.Unsubscribe(sub)
	}
}

// BroadcastJSON sends a JSON-encoded message to the run's room.
func (h *Hub) BroadcastJSON(runID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(runID, data)
	return nil
}

// DropRoom removes every subscriber for a run. Used when a run's history is
// purged.
func (h *Hub) DropRoom(runID string) {
	h.mu.Lock()
	room := h.rooms[runID]
	delete(h.rooms, runID)
	h.mu.Unlock()

	for _, sub := range room {
		close(sub.Send)
		metrics.LiveSubscribers.Dec()
	}
}

// DropAll removes every subscriber from every room.
func (h *Hub) DropAll() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[string]*Subscriber)
	h.mu.Unlock()

	for _, room := range rooms {
		for _, sub := range room {
			close(sub.Send)
			metrics.LiveSubscribers.Dec()
		}
	}
}

// RoomSize returns the number of subscribers for a run.
func (h *Hub) RoomSize(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[runID])
}
