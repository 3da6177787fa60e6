// Package stream provides WebSocket event broadcasting for real-time
// contest updates: new questions, merges, removals and rank changes.
package stream

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event types pushed to subscribed clients.
const (
	EventQuestionSubmitted = "question_submitted"
	EventQuestionMerged    = "question_merged"
	EventQuestionUnmerged  = "question_unmerged"
	EventQuestionRemoved   = "question_removed"
	EventRankChanged       = "rank_changed"
)

// Event is a contest update pushed to WebSocket subscribers. Clients use it
// as an invalidation signal and re-fetch the top list rather than patching
// local state.
type Event struct {
	Type       string    `json:"type"`
	ContestID  string    `json:"contest_id"`
	QuestionID string    `json:"question_id,omitempty"`
	ClusterID  string    `json:"cluster_id,omitempty"`
	At         time.Time `json:"at"`
}

// EventBroadcaster manages WebSocket connections and broadcasts contest events.
type EventBroadcaster struct {
	mu          sync.RWMutex
	connections map[string]map[*websocket.Conn]bool // contestID -> connections
	metrics     *Metrics
}

// NewEventBroadcaster creates a new event broadcaster. Metrics may be nil.
func NewEventBroadcaster(metrics *Metrics) *EventBroadcaster {
	return &EventBroadcaster{
		connections: make(map[string]map[*websocket.Conn]bool),
		metrics:     metrics,
	}
}

// Subscribe registers a WebSocket connection for a contest.
func (b *EventBroadcaster) Subscribe(contestID string, conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connections[contestID] == nil {
		b.connections[contestID] = make(map[*websocket.Conn]bool)
	}
	b.connections[contestID][conn] = true
	if b.metrics != nil {
		b.metrics.IncSubscribers()
	}
}

// Unsubscribe removes a WebSocket connection from all contests.
func (b *EventBroadcaster) Unsubscribe(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := false
	for contestID, conns := range b.connections {
		if conns[conn] {
			removed = true
		}
		delete(conns, conn)
		if len(conns) == 0 {
			delete(b.connections, contestID)
		}
	}
	if removed && b.metrics != nil {
		b.metrics.DecSubscribers()
	}
}

// Broadcast sends an event to all subscribers of a contest. Write failures
// are logged and left for the reader loop to clean up on disconnect.
func (b *EventBroadcaster) Broadcast(event Event) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	conns, exists := b.connections[event.ContestID]
	if !exists || len(conns) == 0 {
		return
	}

	// Serialize once
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal contest event", "error", err)
		return
	}

	for conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Warn("failed to send message to websocket client",
				"error", err,
				"contest_id", event.ContestID,
			)
			if b.metrics != nil {
				b.metrics.IncBroadcastErrors()
			}
			continue
		}
		if b.metrics != nil {
			b.metrics.IncEventsSent(event.Type)
		}
	}
}

// ConnectionCount returns the number of active WebSocket connections for a contest.
func (b *EventBroadcaster) ConnectionCount(contestID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if conns, exists := b.connections[contestID]; exists {
		return len(conns)
	}
	return 0
}
