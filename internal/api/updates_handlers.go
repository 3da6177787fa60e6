package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/opencivics/hustings/internal/middleware"
	"github.com/opencivics/hustings/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the frontend domains are final
		return true
	},
}

// publishEvent broadcasts a contest event if a broadcaster is configured.
func publishEvent(b *stream.EventBroadcaster, eventType, contestID, questionID string) {
	if b == nil || contestID == "" {
		return
	}
	b.Broadcast(stream.Event{
		Type:       eventType,
		ContestID:  contestID,
		QuestionID: questionID,
	})
}

// UpdatesHandlers holds dependencies for the contest updates WebSocket.
type UpdatesHandlers struct {
	broadcaster *stream.EventBroadcaster
}

// NewUpdatesHandlers creates a new UpdatesHandlers instance.
func NewUpdatesHandlers(broadcaster *stream.EventBroadcaster) *UpdatesHandlers {
	return &UpdatesHandlers{broadcaster: broadcaster}
}

// SubscribeToContestUpdates handles GET /contests/{contest_id}/updates.
// Clients receive invalidation events (submissions, merges, removals, rank
// changes) and are expected to re-fetch the top list.
func (h *UpdatesHandlers) SubscribeToContestUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	contestID, err := extractPathID(r.URL.Path, "/contests/")
	if err != nil {
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Contest ID is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection",
			"error", err,
			"contest_id", contestID,
		)
		return
	}

	h.broadcaster.Subscribe(contestID, conn)

	requestID := middleware.GetRequestID(ctx)
	slog.InfoContext(ctx, "websocket client subscribed to contest updates",
		"contest_id", contestID,
		"request_id", requestID,
	)

	defer func() {
		h.broadcaster.Unsubscribe(conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed",
			"contest_id", contestID,
			"request_id", requestID,
		)
	}()

	// Clients don't send messages; read only to detect disconnection.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly",
					"error", err,
					"contest_id", contestID,
				)
			}
			break
		}
	}
}
