package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	// Append commits an audit record, chaining it to the previous one.
	// Returns the created record.
	Append(entry Entry) (*Record, error)

	// QueryByEntity retrieves records for a specific entity, newest first.
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByEntity(entityType, entityID string, limit int) ([]*Record, error)

	// QueryByActor retrieves records for a specific actor, newest first.
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByActor(actorID string, limit int) ([]*Record, error)

	// ListAll retrieves every record, oldest first.
	ListAll() ([]*Record, error)

	// GetLastHash returns the hash of the newest record, or "" when empty.
	GetLastHash() (string, error)

	// VerifyHashChain walks the chain and reports whether it is intact.
	VerifyHashChain() (bool, error)

	// AnonymizeIPsBefore blanks the subnet-identifying part of IP addresses
	// on records older than the cutoff. Returns how many were changed.
	AnonymizeIPsBefore(cutoff time.Time) (int, error)
}

// recordHash computes the chain hash of a record. The hash covers every
// field that must be tamper-evident, including the predecessor's hash.
func recordHash(r *Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s|%d|%s|%s",
		r.ID, r.ActorID, r.EntityType, r.EntityID, r.Action, r.Outcome,
		r.CreatedAt.UnixNano(), r.RequestID, r.PreviousHash)
	return hex.EncodeToString(h.Sum(nil))
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs map[string]*Record
	// Insertion order doubles as chain order.
	order []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		logs:  make(map[string]*Record),
		order: make([]string, 0),
	}
}

// Append commits an audit record, chaining it to the previous one.
func (r *InMemoryRepository) Append(entry Entry) (*Record, error) {
	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &Record{
		ID:           uuid.New().String(),
		ActorID:      entry.ActorID,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Action:       entry.Action,
		Outcome:      outcome,
		CreatedAt:    time.Now().UTC(),
		RequestID:    entry.RequestID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		PreviousHash: r.lastHashLocked(),
	}

	r.logs[rec.ID] = rec
	r.order = append(r.order, rec.ID)

	// Return a copy to prevent external modification
	out := *rec
	return &out, nil
}

func (r *InMemoryRepository) lastHashLocked() string {
	if len(r.order) == 0 {
		return ""
	}
	return recordHash(r.logs[r.order[len(r.order)-1]])
}

// QueryByEntity retrieves records for a specific entity, newest first.
func (r *InMemoryRepository) QueryByEntity(entityType, entityID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.logs[r.order[i]]
		if rec.EntityType == entityType && rec.EntityID == entityID {
			out := *rec
			results = append(results, &out)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// QueryByActor retrieves records for a specific actor, newest first.
func (r *InMemoryRepository) QueryByActor(actorID string, limit int) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.logs[r.order[i]]
		if rec.ActorID == actorID {
			out := *rec
			results = append(results, &out)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// ListAll retrieves every record, oldest first.
func (r *InMemoryRepository) ListAll() ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		out := *r.logs[id]
		results = append(results, &out)
	}
	return results, nil
}

// GetLastHash returns the hash of the newest record, or "" when empty.
func (r *InMemoryRepository) GetLastHash() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastHashLocked(), nil
}

// VerifyHashChain walks the chain and reports whether it is intact.
func (r *InMemoryRepository) VerifyHashChain() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prev := ""
	for _, id := range r.order {
		rec := r.logs[id]
		if rec.PreviousHash != prev {
			return false, nil
		}
		prev = recordHash(rec)
	}
	return true, nil
}

// AnonymizeIPsBefore blanks the host part of IP addresses on records older
// than the cutoff. IP addresses are metadata, not chained fields, so this
// does not break chain verification.
func (r *InMemoryRepository) AnonymizeIPsBefore(cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := 0
	for _, id := range r.order {
		rec := r.logs[id]
		if rec.IPAddress == "" || !rec.CreatedAt.Before(cutoff) {
			continue
		}
		anonymized := AnonymizeIP(rec.IPAddress)
		if anonymized != rec.IPAddress {
			rec.IPAddress = anonymized
			changed++
		}
	}
	return changed, nil
}
