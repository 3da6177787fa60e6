package api

import (
	"log/slog"
	"net/http"

	"github.com/opencivics/hustings/internal/ranking"
)

// TopListHandlers holds dependencies for the top-list endpoint.
type TopListHandlers struct {
	engine *ranking.Engine
}

// NewTopListHandlers creates a new TopListHandlers instance.
func NewTopListHandlers(engine *ranking.Engine) *TopListHandlers {
	return &TopListHandlers{engine: engine}
}

// TopListResponse represents the JSON response for the top-list endpoint.
type TopListResponse struct {
	ContestID string             `json:"contest_id"`
	Entries   []ranking.TopEntry `json:"entries"`
}

// GetTopQuestions handles GET /contests/{contest_id}/top - the ranked,
// quota-balanced selection of cluster representatives.
func (h *TopListHandlers) GetTopQuestions(w http.ResponseWriter, r *http.Request) {
	contestID, err := extractPathID(r.URL.Path, "/contests/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Contest ID is required")
		return
	}

	entries, err := h.engine.TopN(r.Context(), contestID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to build top list", "error", err, "contest_id", contestID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to build top list")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, TopListResponse{
		ContestID: contestID,
		Entries:   entries,
	})
}
