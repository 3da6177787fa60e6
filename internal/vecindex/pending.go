package vecindex

import (
	"sync"
	"time"
)

// PendingTracker records question ids whose embedding or index entry is
// missing. The index is updated out-of-band from the storage transaction, so
// a freshly written question can be dedup-blind for a moment; entries stay
// here until the reconciliation job repairs them. Thread-safe.
type PendingTracker struct {
	mu      sync.RWMutex
	pending map[string]time.Time // questionID -> time enqueued
}

// NewPendingTracker creates an empty tracker.
func NewPendingTracker() *PendingTracker {
	return &PendingTracker{pending: make(map[string]time.Time)}
}

// Enqueue marks a question as needing index reconciliation. Re-enqueueing
// keeps the original timestamp.
func (t *PendingTracker) Enqueue(questionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[questionID]; !ok {
		t.pending[questionID] = time.Now()
	}
}

// Done clears a question after successful reconciliation.
func (t *PendingTracker) Done(questionID string) {
	t.mu.Lock()
	delete(t.pending, questionID)
	t.mu.Unlock()
}

// List returns the pending question ids, oldest first.
func (t *PendingTracker) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(t.pending))
	for id, at := range t.pending {
		entries = append(entries, entry{id, at})
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].at.Before(entries[j-1].at); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// Contains reports whether a question is awaiting reconciliation.
func (t *PendingTracker) Contains(questionID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.pending[questionID]
	return ok
}

// Count returns the number of pending questions.
func (t *PendingTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}
