package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/opencivics/hustings/internal/moderation"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/stream"
)

// FlagRequest represents the request body for flagging a question.
type FlagRequest struct {
	Flagged bool `json:"flagged"`
}

// MergeRequest represents the request body for a manual merge.
type MergeRequest struct {
	TargetID string `json:"target_id"`
}

// FileReportRequest represents the request body for filing a report.
type FileReportRequest struct {
	Target moderation.TargetRef `json:"target"`
	Reason string               `json:"reason"`
}

// ResolveReportRequest represents the request body for resolving a report.
type ResolveReportRequest struct {
	Dismiss bool `json:"dismiss"`
}

// ModerationHandlers holds dependencies for moderation HTTP handlers.
type ModerationHandlers struct {
	service *moderation.Service
	events  *stream.EventBroadcaster
}

// NewModerationHandlers creates a new ModerationHandlers instance.
// events may be nil; updates are then not broadcast.
func NewModerationHandlers(service *moderation.Service, events *stream.EventBroadcaster) *ModerationHandlers {
	return &ModerationHandlers{service: service, events: events}
}

// writeModerationError maps moderation service errors to responses.
func writeModerationError(w http.ResponseWriter, r *http.Request, err error, action string) {
	switch {
	case errors.Is(err, moderation.ErrForbidden):
		WriteError(w, r.Context(), http.StatusForbidden, ErrCodeForbidden, "Moderator role required")
	case errors.Is(err, question.ErrNotFound):
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Question not found")
	case errors.Is(err, moderation.ErrNotFound):
		WriteError(w, r.Context(), http.StatusNotFound, ErrCodeNotFound, "Report not found")
	case errors.Is(err, moderation.ErrSameQuestion):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeSameQuestion, "A question cannot be merged into itself")
	case errors.Is(err, moderation.ErrNotMerged):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeNotMerged, "Question is not merged")
	case errors.Is(err, moderation.ErrNotPending):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeConflict, "Question is not awaiting review")
	case errors.Is(err, moderation.ErrReportClosed):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeConflict, "Report is already resolved")
	case errors.Is(err, question.ErrTerminalStatus):
		WriteError(w, r.Context(), http.StatusConflict, ErrCodeTerminalStatus, "Removed questions cannot be merged")
	case errors.Is(err, moderation.ErrInvalidTarget):
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeInvalidTarget, "Report target is invalid")
	case errors.Is(err, moderation.ErrInvalidReason):
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Report reason must be 1-1000 characters")
	default:
		slog.ErrorContext(r.Context(), "moderation action failed", "error", err, "action", action)
		WriteError(w, r.Context(), http.StatusInternalServerError, ErrCodeInternal, "Moderation action failed")
	}
}

// FlagQuestion handles POST /questions/{id}/flag.
func (h *ModerationHandlers) FlagQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	var req FlagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := h.service.Flag(r.Context(), actor, questionID, req.Flagged); err != nil {
		writeModerationError(w, r, err, "flag")
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"question_id": questionID, "flagged": req.Flagged})
}

// RemoveQuestion handles POST /questions/{id}/remove - the soft delete.
func (h *ModerationHandlers) RemoveQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	contestID, err := h.service.Remove(r.Context(), actor, questionID)
	if err != nil {
		writeModerationError(w, r, err, "remove")
		return
	}
	publishEvent(h.events, stream.EventQuestionRemoved, contestID, questionID)
	w.WriteHeader(http.StatusNoContent)
}

// MergeQuestion handles POST /questions/{id}/merge - the manual merge
// override for a duplicate the automatic check missed.
func (h *ModerationHandlers) MergeQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetID == "" {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "target_id is required")
		return
	}

	contestID, err := h.service.Merge(r.Context(), actor, questionID, req.TargetID)
	if err != nil {
		writeModerationError(w, r, err, "merge")
		return
	}
	publishEvent(h.events, stream.EventQuestionMerged, contestID, questionID)
	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"question_id": questionID, "merged_into": req.TargetID})
}

// UnmergeQuestion handles POST /questions/{id}/unmerge - breaks a
// false-positive merge apart.
func (h *ModerationHandlers) UnmergeQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	q, err := h.service.Unmerge(r.Context(), actor, questionID)
	if err != nil {
		writeModerationError(w, r, err, "unmerge")
		return
	}
	publishEvent(h.events, stream.EventQuestionUnmerged, q.ContestID, questionID)
	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"question_id": questionID, "status": q.Status})
}

// ApproveQuestion handles POST /questions/{id}/approve - releases a pending
// question into the live pool.
func (h *ModerationHandlers) ApproveQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	questionID, err := extractPathID(r.URL.Path, "/questions/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Question ID is required")
		return
	}

	contestID, err := h.service.Approve(r.Context(), actor, questionID)
	if err != nil {
		writeModerationError(w, r, err, "approve")
		return
	}
	publishEvent(h.events, stream.EventRankChanged, contestID, questionID)
	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"question_id": questionID, "status": question.StatusApproved})
}

// FileReport handles POST /contests/{contest_id}/reports.
func (h *ModerationHandlers) FileReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	contestID, err := extractPathID(r.URL.Path, "/contests/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Contest ID is required")
		return
	}

	var req FileReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	report, err := h.service.FileReport(r.Context(), actor, contestID, req.Target, req.Reason)
	if err != nil {
		writeModerationError(w, r, err, "file_report")
		return
	}
	WriteJSON(w, r.Context(), http.StatusCreated, report)
}

// ListReports handles GET /contests/{contest_id}/reports - the moderation
// queue, oldest first. Moderator only.
func (h *ModerationHandlers) ListReports(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	contestID, err := extractPathID(r.URL.Path, "/contests/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Contest ID is required")
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeValidation, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	reports, err := h.service.OpenReports(r.Context(), actor, contestID, limit)
	if err != nil {
		writeModerationError(w, r, err, "list_reports")
		return
	}
	WriteJSON(w, r.Context(), http.StatusOK, map[string]any{"reports": reports})
}

// ResolveReport handles POST /reports/{id}/resolve.
func (h *ModerationHandlers) ResolveReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	reportID, err := extractPathID(r.URL.Path, "/reports/")
	if err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Report ID is required")
		return
	}

	var req ResolveReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, r.Context(), http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	if err := h.service.ResolveReport(r.Context(), actor, reportID, req.Dismiss); err != nil {
		writeModerationError(w, r, err, "resolve_report")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
