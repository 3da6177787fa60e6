package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/stream"
	"github.com/opencivics/hustings/internal/vote"
)

// CastVoteRequest represents the request body for casting a vote.
// Value is 1 (up), -1 (down) or 0 (retract). DeviceRiskScore is the
// client-attested risk signal in [0, 1]; the fraud model treats it as one
// input, never a verdict.
type CastVoteRequest struct {
	Value           int     `json:"value"`
	DeviceRiskScore float64 `json:"device_risk_score,omitempty"`
}

// VoteHandlers holds dependencies for vote HTTP handlers.
type VoteHandlers struct {
	ledger *vote.Ledger
	events *stream.EventBroadcaster
}

// NewVoteHandlers creates a new VoteHandlers instance.
// events may be nil; updates are then not broadcast.
func NewVoteHandlers(ledger *vote.Ledger, events *stream.EventBroadcaster) *VoteHandlers {
	return &VoteHandlers{ledger: ledger, events: events}
}

// CastVote handles POST /questions/{id}/vote. Casting again with a new
// value replaces the previous vote; value 0 retracts it.
func (h *VoteHandlers) CastVote(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	result, err := h.ledger.Cast(r.Context(), actor, questionID, req.Value, req.DeviceRiskScore)
	if err != nil {
		switch {
		case errors.Is(err, vote.ErrInvalidValue):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Vote value must be -1, 0 or 1")
		case errors.Is(err, vote.ErrNotVerified):
			WriteError(w, r.Context(), http.StatusForbidden, ErrCodeNotVerified, "Voting requires a verified account")
		case errors.Is(err, question.ErrNotFound):
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Question not found")
		case errors.Is(err, vote.ErrNotVotable):
			// Removed and merged questions are gone as vote targets; votes
			// belong on the cluster representative.
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Question is not accepting votes; vote on its cluster representative")
		case errors.Is(err, vote.ErrConflict):
			WriteError(w, r.Context(), http.StatusConflict, ErrCodeConflict, "Vote could not be recorded due to concurrent updates, retry")
		default:
			slog.ErrorContext(r.Context(), "failed to cast vote", "error", err, "question_id", questionID)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to cast vote")
		}
		return
	}

	publishEvent(h.events, stream.EventRankChanged, result.ContestID, questionID)
	WriteJSON(w, r.Context(), http.StatusOK, result)
}
