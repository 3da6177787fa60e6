// Package vote provides the vote ledger: one fraud-weighted vote per user
// and question, with compare-and-swap counter updates and synchronous rank
// recomputation.
package vote

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Vote values.
const (
	ValueDown   = -1
	ValueRetract = 0
	ValueUp     = 1
)

// Common errors for vote operations.
var (
	ErrInvalidValue = errors.New("vote value must be -1, 0, or 1")
	ErrNotVerified  = errors.New("only identity-verified users may vote")
	ErrNotVotable   = errors.New("question is removed or merged; vote the cluster representative")
	ErrNotFound     = errors.New("vote not found")
	ErrConflict     = errors.New("vote counters contended, retries exhausted")
)

// Vote is one user's live vote on a question. At most one row exists per
// (user, question); re-voting updates it and retracting deletes it.
type Vote struct {
	UserID          string    `json:"user_id"`
	QuestionID      string    `json:"question_id"`
	Value           int       `json:"value"` // -1 or +1; 0 never persists
	Weight          float64   `json:"weight"`
	DeviceRiskScore float64   `json:"device_risk_score"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Repository defines storage operations for votes. Implementations must
// guarantee uniqueness on (user_id, question_id).
type Repository interface {
	// Get retrieves the live vote for (user, question), or ErrNotFound.
	Get(ctx context.Context, userID, questionID string) (*Vote, error)

	// Put inserts or updates the vote for (user, question).
	Put(ctx context.Context, v *Vote) error

	// Delete removes the vote for (user, question), or ErrNotFound.
	Delete(ctx context.Context, userID, questionID string) error

	// ListByQuestion retrieves all live votes on a question.
	ListByQuestion(ctx context.Context, questionID string) ([]*Vote, error)
}

// InMemoryRepository is a thread-safe in-memory Repository for tests and
// local development.
type InMemoryRepository struct {
	mu    sync.RWMutex
	votes map[string]*Vote // userID + "\x00" + questionID
}

// NewInMemoryRepository creates an empty in-memory vote repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{votes: make(map[string]*Vote)}
}

func voteKey(userID, questionID string) string {
	return userID + "\x00" + questionID
}

// Get retrieves the live vote for (user, question).
func (r *InMemoryRepository) Get(ctx context.Context, userID, questionID string) (*Vote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.votes[voteKey(userID, questionID)]
	if !ok {
		return nil, ErrNotFound
	}
	out := *v
	return &out, nil
}

// Put inserts or updates the vote.
func (r *InMemoryRepository) Put(ctx context.Context, v *Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := *v
	key := voteKey(v.UserID, v.QuestionID)
	if prev, ok := r.votes[key]; ok {
		stored.CreatedAt = prev.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.votes[key] = &stored
	return nil
}

// Delete removes the vote.
func (r *InMemoryRepository) Delete(ctx context.Context, userID, questionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := voteKey(userID, questionID)
	if _, ok := r.votes[key]; !ok {
		return ErrNotFound
	}
	delete(r.votes, key)
	return nil
}

// ListByQuestion retrieves all live votes on a question.
func (r *InMemoryRepository) ListByQuestion(ctx context.Context, questionID string) ([]*Vote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Vote
	for _, v := range r.votes {
		if v.QuestionID == questionID {
			c := *v
			out = append(out, &c)
		}
	}
	return out, nil
}
