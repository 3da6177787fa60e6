package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/stream"
)

// SubmitQuestionRequest represents the request body for submitting a question.
type SubmitQuestionRequest struct {
	Text string   `json:"text"`
	Tags []string `json:"tags,omitempty"`
}

// EditQuestionRequest represents the request body for editing a question.
type EditQuestionRequest struct {
	Text   string `json:"text"`
	Reason string `json:"reason,omitempty"`
}

// QuestionHandlers holds dependencies for question HTTP handlers.
type QuestionHandlers struct {
	engine *question.Engine
	repo   question.Repository
	events *stream.EventBroadcaster
}

// NewQuestionHandlers creates a new QuestionHandlers instance.
// events may be nil; updates are then not broadcast.
func NewQuestionHandlers(engine *question.Engine, repo question.Repository, events *stream.EventBroadcaster) *QuestionHandlers {
	return &QuestionHandlers{
		engine: engine,
		repo:   repo,
		events: events,
	}
}

// extractPathID extracts the id segment following the given prefix, e.g.
// extractPathID("/questions/abc/vote", "/questions/") returns "abc".
func extractPathID(path, prefix string) (string, error) {
	parts := strings.Split(strings.TrimPrefix(path, prefix), "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", fmt.Errorf("id segment missing from path")
	}
	return parts[0], nil
}

// SubmitQuestion handles POST /contests/{contest_id}/questions.
func (h *QuestionHandlers) SubmitQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	contestID, err := extractPathID(r.URL.Path, "/contests/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Contest ID is required")
		return
	}

	var req SubmitQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	q, err := h.engine.Submit(r.Context(), contestID, actor, req.Text, req.Tags)
	if err != nil {
		switch {
		case errors.Is(err, question.ErrTextLength):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
				fmt.Sprintf("Question text must be %d-%d characters", question.MinTextLength, question.MaxTextLength))
		case errors.Is(err, question.ErrTextInvalid):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
				"Question text contains invalid characters")
		case errors.Is(err, question.ErrTooManyTags):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
				fmt.Sprintf("At most %d tags are allowed", question.MaxTags))
		case errors.Is(err, question.ErrBadTag):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
				"Issue tags must be non-empty lowercase slugs")
		default:
			slog.ErrorContext(r.Context(), "failed to submit question", "error", err, "contest_id", contestID)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to submit question")
		}
		return
	}

	publishEvent(h.events, stream.EventQuestionSubmitted, contestID, q.ID)
	WriteJSON(w, r.Context(), http.StatusCreated, q)
}

// GetQuestion handles GET /questions/{id}.
func (h *QuestionHandlers) GetQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	q, err := h.repo.GetByID(r.Context(), questionID)
	if err != nil {
		if errors.Is(err, question.ErrNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Question not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve question", "error", err, "question_id", questionID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve question")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, q)
}

// ListQuestions handles GET /contests/{contest_id}/questions. Removed
// questions are excluded; merged members are included so clients can render
// "asked as part of" affordances.
func (h *QuestionHandlers) ListQuestions(w http.ResponseWriter, r *http.Request) {
	contestID, err := extractPathID(r.URL.Path, "/contests/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Contest ID is required")
		return
	}

	questions, err := h.repo.ListByContest(r.Context(), contestID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list questions", "error", err, "contest_id", contestID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list questions")
		return
	}

	visible := make([]*question.Question, 0, len(questions))
	for _, q := range questions {
		if q.Status != question.StatusRemoved {
			visible = append(visible, q)
		}
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"questions": visible})
}

// EditQuestion handles PATCH /questions/{id}. Only the author or a
// moderator may edit; every edit appends an immutable version.
func (h *QuestionHandlers) EditQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	var req EditQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	version, err := h.engine.Edit(r.Context(), questionID, actor, req.Text, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, question.ErrNotFound):
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Question not found")
		case errors.Is(err, question.ErrTextLength):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
				fmt.Sprintf("Question text must be %d-%d characters", question.MinTextLength, question.MaxTextLength))
		case errors.Is(err, question.ErrTextInvalid):
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation,
				"Question text contains invalid characters")
		case errors.Is(err, question.ErrNotEditor):
			WriteError(w, r.Context(), http.StatusForbidden, ErrCodeForbidden, "Only the author or a moderator may edit a question")
		case errors.Is(err, question.ErrTerminalStatus):
			WriteError(w, r.Context(), http.StatusConflict, ErrCodeTerminalStatus, "Removed questions cannot be edited")
		default:
			slog.ErrorContext(r.Context(), "failed to edit question", "error", err, "question_id", questionID)
			WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to edit question")
		}
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, version)
}

// ListVersions handles GET /questions/{id}/versions - the immutable edit
// history, oldest first.
func (h *QuestionHandlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	if _, err := h.repo.GetByID(r.Context(), questionID); err != nil {
		if errors.Is(err, question.ErrNotFound) {
			WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Question not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to retrieve question", "error", err, "question_id", questionID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to retrieve question")
		return
	}

	versions, err := h.repo.ListVersions(r.Context(), questionID)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list versions", "error", err, "question_id", questionID)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Failed to list versions")
		return
	}

	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"versions": versions})
}
