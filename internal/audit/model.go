// Package audit records moderator actions in a tamper-evident log for
// compliance review and dispute handling.
package audit

import (
	"time"
)

// Outcome values for audit records.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is a single committed audit event. PreviousHash chains each record
// to its predecessor so after-the-fact edits are detectable.
type Record struct {
	ID         string
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string
	CreatedAt  time.Time

	// Optional request metadata
	RequestID string
	IPAddress string
	UserAgent string

	// Tamper detection
	PreviousHash string // SHA-256 hash of the previous record
}

// Entry is the input for appending an audit record.
type Entry struct {
	ActorID    string
	EntityType string
	EntityID   string
	Action     string
	Outcome    string // empty defaults to success

	// Optional request metadata
	RequestID string
	IPAddress string
	UserAgent string
}
