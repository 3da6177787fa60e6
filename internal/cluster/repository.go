package cluster

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines storage operations for clusters.
type Repository interface {
	// Create inserts a new cluster.
	Create(ctx context.Context, c *Cluster) error

	// GetByID retrieves a cluster by id.
	GetByID(ctx context.Context, id string) (*Cluster, error)

	// GetByMember retrieves the cluster containing the given question.
	GetByMember(ctx context.Context, questionID string) (*Cluster, error)

	// ListByContest retrieves all clusters for a contest, oldest first.
	ListByContest(ctx context.Context, contestID string) ([]*Cluster, error)

	// ListContestIDs returns the distinct contest ids that have clusters.
	ListContestIDs(ctx context.Context) ([]string, error)

	// Update persists membership, representative, and aggregate changes.
	Update(ctx context.Context, c *Cluster) error

	// Delete removes a cluster; only valid once it has no members left.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository is a thread-safe in-memory Repository for tests and
// local development.
type InMemoryRepository struct {
	mu       sync.RWMutex
	clusters map[string]*Cluster
}

// NewInMemoryRepository creates an empty in-memory cluster repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{clusters: make(map[string]*Cluster)}
}

func copyCluster(c *Cluster) *Cluster {
	out := *c
	out.MemberIDs = append([]string(nil), c.MemberIDs...)
	return &out
}

// Create inserts a new cluster.
func (r *InMemoryRepository) Create(ctx context.Context, c *Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyCluster(c)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.UpdatedAt = stored.CreatedAt
	r.clusters[stored.ID] = stored
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

// GetByID retrieves a cluster by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clusters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCluster(c), nil
}

// GetByMember retrieves the cluster containing the given question.
func (r *InMemoryRepository) GetByMember(ctx context.Context, questionID string) (*Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clusters {
		if c.HasMember(questionID) {
			return copyCluster(c), nil
		}
	}
	return nil, ErrNotFound
}

// ListByContest retrieves all clusters for a contest, oldest first.
func (r *InMemoryRepository) ListByContest(ctx context.Context, contestID string) ([]*Cluster, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Cluster
	for _, c := range r.clusters {
		if c.ContestID == contestID {
			out = append(out, copyCluster(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListContestIDs returns the distinct contest ids that have clusters.
func (r *InMemoryRepository) ListContestIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, c := range r.clusters {
		if !seen[c.ContestID] {
			seen[c.ContestID] = true
			out = append(out, c.ContestID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Update persists cluster changes.
func (r *InMemoryRepository) Update(ctx context.Context, c *Cluster) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clusters[c.ID]; !ok {
		return ErrNotFound
	}
	stored := copyCluster(c)
	stored.UpdatedAt = time.Now()
	r.clusters[c.ID] = stored
	c.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete removes a cluster.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clusters[id]; !ok {
		return ErrNotFound
	}
	delete(r.clusters, id)
	return nil
}
