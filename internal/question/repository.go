package question

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Repository defines storage operations for questions and their versions.
//
// Implementations must make Create and AddVersion atomic (question row and
// version row commit together or not at all) and must implement
// CompareAndSwapCounts as a single conditional write so concurrent vote
// updates cannot be lost.
type Repository interface {
	// Create inserts a question together with its initial version.
	Create(ctx context.Context, q *Question, v *Version) error

	// GetByID retrieves a question by id, including removed and merged ones.
	GetByID(ctx context.Context, id string) (*Question, error)

	// ListByContest retrieves all questions for a contest.
	ListByContest(ctx context.Context, contestID string) ([]*Question, error)

	// AddVersion inserts a new version and updates the question's
	// current_version_id and cached text in the same transaction.
	AddVersion(ctx context.Context, v *Version) error

	// GetVersion retrieves a single version by its id.
	GetVersion(ctx context.Context, versionID string) (*Version, error)

	// ListVersions retrieves all versions of a question ordered by number.
	ListVersions(ctx context.Context, questionID string) ([]*Version, error)

	// SetStatus transitions the question's status.
	SetStatus(ctx context.Context, id string, status Status) error

	// SetFlagged sets or clears the moderation flag.
	SetFlagged(ctx context.Context, id string, flagged bool) error

	// SetCluster moves the question into a cluster, updating status with it.
	SetCluster(ctx context.Context, id, clusterID string, status Status) error

	// SetEmbedding stores a (re)computed embedding vector.
	SetEmbedding(ctx context.Context, id string, embedding []float32) error

	// SetRankScore stores a recomputed rank score.
	SetRankScore(ctx context.Context, id string, score float64) error

	// CompareAndSwapCounts updates the vote counters only if they still hold
	// the expected values. Returns false without error when the swap lost.
	CompareAndSwapCounts(ctx context.Context, id string, oldUp, oldDown, newUp, newDown int64) (bool, error)

	// ListUnembedded returns questions whose embedding is missing and whose
	// status is not removed, oldest first, up to limit.
	ListUnembedded(ctx context.Context, limit int) ([]*Question, error)
}

// InMemoryRepository is a thread-safe in-memory Repository used by unit tests
// and local development.
type InMemoryRepository struct {
	mu        sync.RWMutex
	questions map[string]*Question
	versions  map[string]*Version // version id -> version
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		questions: make(map[string]*Question),
		versions:  make(map[string]*Version),
	}
}

func copyQuestion(q *Question) *Question {
	out := *q
	if q.Tags != nil {
		out.Tags = append([]string(nil), q.Tags...)
	}
	if q.Embedding != nil {
		out.Embedding = append([]float32(nil), q.Embedding...)
	}
	return &out
}

func copyVersion(v *Version) *Version {
	out := *v
	return &out
}

// Create inserts a question and its initial version atomically.
func (r *InMemoryRepository) Create(ctx context.Context, q *Question, v *Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := copyQuestion(q)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = stored.CreatedAt

	sv := copyVersion(v)
	if sv.CreatedAt.IsZero() {
		sv.CreatedAt = now
	}
	stored.CurrentVersionID = sv.ID
	stored.Text = sv.Text

	r.questions[stored.ID] = stored
	r.versions[sv.ID] = sv

	q.CreatedAt = stored.CreatedAt
	q.UpdatedAt = stored.UpdatedAt
	q.CurrentVersionID = stored.CurrentVersionID
	return nil
}

// GetByID retrieves a question by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q, ok := r.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyQuestion(q), nil
}

// ListByContest retrieves all questions for a contest, oldest first.
func (r *InMemoryRepository) ListByContest(ctx context.Context, contestID string) ([]*Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Question
	for _, q := range r.questions {
		if q.ContestID == contestID {
			out = append(out, copyQuestion(q))
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

// AddVersion appends a version and updates the cached current text.
func (r *InMemoryRepository) AddVersion(ctx context.Context, v *Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[v.QuestionID]
	if !ok {
		return ErrNotFound
	}

	sv := copyVersion(v)
	if sv.CreatedAt.IsZero() {
		sv.CreatedAt = time.Now()
	}
	r.versions[sv.ID] = sv

	q.CurrentVersionID = sv.ID
	q.Text = sv.Text
	q.UpdatedAt = sv.CreatedAt
	return nil
}

// GetVersion retrieves a single version by id.
func (r *InMemoryRepository) GetVersion(ctx context.Context, versionID string) (*Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.versions[versionID]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return copyVersion(v), nil
}

// ListVersions retrieves all versions of a question ordered by number.
func (r *InMemoryRepository) ListVersions(ctx context.Context, questionID string) ([]*Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.questions[questionID]; !ok {
		return nil, ErrNotFound
	}

	var out []*Version
	for _, v := range r.versions {
		if v.QuestionID == questionID {
			out = append(out, copyVersion(v))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// SetStatus transitions the question's status.
func (r *InMemoryRepository) SetStatus(ctx context.Context, id string, status Status) error {
	return r.mutate(id, func(q *Question) {
		q.Status = status
	})
}

// SetFlagged sets or clears the moderation flag.
func (r *InMemoryRepository) SetFlagged(ctx context.Context, id string, flagged bool) error {
	return r.mutate(id, func(q *Question) {
		q.Flagged = flagged
	})
}

// SetCluster moves the question into a cluster.
func (r *InMemoryRepository) SetCluster(ctx context.Context, id, clusterID string, status Status) error {
	return r.mutate(id, func(q *Question) {
		q.ClusterID = clusterID
		q.Status = status
	})
}

// SetEmbedding stores a recomputed embedding.
func (r *InMemoryRepository) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	return r.mutate(id, func(q *Question) {
		q.Embedding = append([]float32(nil), embedding...)
	})
}

// SetRankScore stores a recomputed rank score.
func (r *InMemoryRepository) SetRankScore(ctx context.Context, id string, score float64) error {
	return r.mutate(id, func(q *Question) {
		q.RankScore = score
	})
}

// CompareAndSwapCounts conditionally updates the vote counters.
func (r *InMemoryRepository) CompareAndSwapCounts(ctx context.Context, id string, oldUp, oldDown, newUp, newDown int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[id]
	if !ok {
		return false, ErrNotFound
	}
	if q.Upvotes != oldUp || q.Downvotes != oldDown {
		return false, nil
	}
	q.Upvotes = newUp
	q.Downvotes = newDown
	q.UpdatedAt = time.Now()
	return true, nil
}

// ListUnembedded returns live questions with a missing embedding, oldest first.
func (r *InMemoryRepository) ListUnembedded(ctx context.Context, limit int) ([]*Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Question
	for _, q := range r.questions {
		if q.Embedding == nil && q.Status != StatusRemoved {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *InMemoryRepository) mutate(id string, fn func(q *Question)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.questions[id]
	if !ok {
		return ErrNotFound
	}
	fn(q)
	q.UpdatedAt = time.Now()
	return nil
}
