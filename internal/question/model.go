// Package question provides the question and version models, their
// repositories, and the versioning engine that owns submission and edits.
package question

import (
	"errors"
	"fmt"
	"time"

	"github.com/opencivics/hustings/internal/validate"
)

// Status is the lifecycle state of a question.
type Status string

// Question lifecycle states. Questions are never hard-deleted; removal is a
// status transition so the audit trail survives moderation.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusMerged   Status = "merged"
	StatusRemoved  Status = "removed"
)

// Text and tag constraints enforced on submission and edit.
const (
	MinTextLength = 10
	MaxTextLength = 500
	MaxTags       = 5
	MaxTagLength  = 50
)

// Common errors for question operations.
var (
	ErrNotFound        = errors.New("question not found")
	ErrVersionNotFound = errors.New("question version not found")
	ErrTextLength      = errors.New("question text must be between 10 and 500 characters")
	ErrTextInvalid     = errors.New("question text contains invalid characters")
	ErrTooManyTags     = errors.New("a question may carry at most 5 issue tags")
	ErrBadTag          = errors.New("issue tags must be non-empty lowercase slugs")
	ErrNotEditor       = errors.New("only the original author or a moderator may edit")
	ErrTerminalStatus  = errors.New("question is in a terminal status")
)

// Question is a voter-submitted question within a contest.
//
// A merged question points at another question's cluster and is excluded from
// top-N selection, but its votes still feed the cluster aggregate. Embedding
// is nil when the embedding provider was unavailable at write time; the
// reconciler backfills it later.
type Question struct {
	ID               string    `json:"id"`
	ContestID        string    `json:"contest_id"`
	AuthorID         *string   `json:"author_id,omitempty"` // nil once the author account is deleted
	CurrentVersionID string    `json:"current_version_id"`
	Text             string    `json:"text"` // cache of the current version's text
	Tags             []string  `json:"issue_tags,omitempty"`
	Status           Status    `json:"status"`
	ClusterID        string    `json:"cluster_id,omitempty"`
	Embedding        []float32 `json:"-"`
	Upvotes          int64     `json:"upvotes"`
	Downvotes        int64     `json:"downvotes"`
	RankScore        float64   `json:"rank_score"`
	Flagged          bool      `json:"is_flagged"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Live reports whether the question still participates in vote aggregates.
func (q *Question) Live() bool {
	return q.Status != StatusRemoved
}

// Votable reports whether votes may target this question directly. Votes on
// merged members must go to the cluster representative instead.
func (q *Question) Votable() bool {
	return q.Status == StatusPending || q.Status == StatusApproved
}

// Version is an immutable snapshot of question text. Candidate answers bind
// to a version id, so later edits cannot change what was answered.
type Version struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"question_id"`
	Number     int       `json:"version_number"` // monotonic, starts at 1
	Text       string    `json:"text"`
	EditorID   string    `json:"edit_author_id"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ValidateText checks the text constraints, counting runes rather than
// bytes so multibyte scripts get the full budget.
func ValidateText(text string) error {
	_, err := validate.QuestionText(text, MinTextLength, MaxTextLength)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, validate.ErrEmpty),
		errors.Is(err, validate.ErrStringTooShort),
		errors.Is(err, validate.ErrStringTooLong):
		return ErrTextLength
	default:
		return ErrTextInvalid
	}
}

// ValidateTags checks the tag-count constraint and that each tag is a
// lowercase slug.
func ValidateTags(tags []string) error {
	if len(tags) > MaxTags {
		return ErrTooManyTags
	}
	for _, tag := range tags {
		if _, err := validate.Tag(tag, MaxTagLength); err != nil {
			return fmt.Errorf("%w: %q", ErrBadTag, tag)
		}
	}
	return nil
}
