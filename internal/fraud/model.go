// Package fraud attenuates vote weight for accounts that look automated
// or coordinated. Scores are multipliers in [0, 1]: a risky vote still
// counts, just proportionally less.
package fraud

import (
	"errors"
	"sync"
	"time"
)

// Validation errors
var (
	ErrInvalidWeight    = errors.New("invalid weight: must be between 0.0 and 1.0")
	ErrInvalidRiskScore = errors.New("invalid risk score: must be between 0.0 and 1.0")
)

// ValidateWeight checks if a vote weight is within valid bounds (0.0-1.0).
// Returns ErrInvalidWeight if the weight is out of bounds.
func ValidateWeight(weight float64) error {
	if weight < 0.0 || weight > 1.0 {
		return ErrInvalidWeight
	}
	return nil
}

// ValidateRiskScore checks if a device risk score is within valid bounds
// (0.0-1.0). Returns ErrInvalidRiskScore if the score is out of bounds.
func ValidateRiskScore(score float64) error {
	if score < 0.0 || score > 1.0 {
		return ErrInvalidRiskScore
	}
	return nil
}

// ActivityTracker tracks recent vote timestamps per user so the scorer can
// detect burst voting. Thread-safe via RWMutex.
type ActivityTracker struct {
	mu    sync.RWMutex
	votes map[string][]time.Time // userID -> recent vote times
}

// NewActivityTracker creates a new ActivityTracker instance.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{
		votes: make(map[string][]time.Time),
	}
}

// RecordVote records a vote by the user at the given time. Entries older
// than the retention window are pruned on the way in.
func (t *ActivityTracker) RecordVote(userID string, at time.Time, retain time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := at.Add(-retain)
	kept := t.votes[userID][:0]
	for _, v := range t.votes[userID] {
		if v.After(cutoff) {
			kept = append(kept, v)
		}
	}
	t.votes[userID] = append(kept, at)
}

// CountSince returns how many votes the user cast after the given time.
func (t *ActivityTracker) CountSince(userID string, since time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, v := range t.votes[userID] {
		if v.After(since) {
			count++
		}
	}
	return count
}

// TrackedUsers returns the number of users with recorded activity.
func (t *ActivityTracker) TrackedUsers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.votes)
}

// Forget drops all recorded activity for a user.
func (t *ActivityTracker) Forget(userID string) {
	t.mu.Lock()
	delete(t.votes, userID)
	t.mu.Unlock()
}
