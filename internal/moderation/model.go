// Package moderation provides the moderator control surface: flagging,
// soft removal, manual merge overrides, and user-filed reports.
package moderation

import (
	"errors"
	"time"

	"github.com/opencivics/hustings/internal/validate"
)

// Sentinel errors for moderation operations.
var (
	ErrNotFound      = errors.New("report not found")
	ErrForbidden     = errors.New("moderator role required")
	ErrInvalidTarget = errors.New("invalid report target")
	ErrInvalidReason = errors.New("reason must be 1-1000 characters")
	ErrSameQuestion  = errors.New("cannot merge a question into itself")
	ErrNotMerged     = errors.New("question is not merged")
	ErrNotPending    = errors.New("question is not awaiting review")
	ErrReportClosed  = errors.New("report already resolved")
)

// TargetKind discriminates what a report points at. Answers and rebuttals
// are candidate-side content that shares the reporting pipeline.
type TargetKind string

const (
	TargetQuestion TargetKind = "question"
	TargetAnswer   TargetKind = "answer"
	TargetRebuttal TargetKind = "rebuttal"
)

// TargetRef is a tagged reference to reportable content.
type TargetRef struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// Validate checks the kind tag and that an ID is present.
func (t TargetRef) Validate() error {
	switch t.Kind {
	case TargetQuestion, TargetAnswer, TargetRebuttal:
	default:
		return ErrInvalidTarget
	}
	if t.ID == "" {
		return ErrInvalidTarget
	}
	return nil
}

// ReportStatus tracks a report through triage.
type ReportStatus string

const (
	ReportOpen      ReportStatus = "open"
	ReportResolved  ReportStatus = "resolved"
	ReportDismissed ReportStatus = "dismissed"
)

// Report is a user-filed complaint about a piece of content.
type Report struct {
	ID         string       `json:"id"`
	ContestID  string       `json:"contest_id"`
	Target     TargetRef    `json:"target"`
	ReporterID string       `json:"reporter_id"`
	Reason     string       `json:"reason"`
	Status     ReportStatus `json:"status"`
	ResolverID string       `json:"resolver_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// MaxReasonLength bounds the free-text reason.
const MaxReasonLength = 1000

// ValidateReason checks the free-text reason length in runes.
func ValidateReason(reason string) error {
	if _, err := validate.ReportReason(reason, MaxReasonLength); err != nil {
		return ErrInvalidReason
	}
	return nil
}
