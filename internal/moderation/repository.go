package moderation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ReportRepository stores user-filed reports.
type ReportRepository interface {
	// Create stores a new report.
	Create(ctx context.Context, r *Report) error
	// GetByID retrieves a report.
	GetByID(ctx context.Context, id string) (*Report, error)
	// ListOpen retrieves open reports for a contest, oldest first, up to
	// limit (0 means no limit).
	ListOpen(ctx context.Context, contestID string, limit int) ([]*Report, error)
	// Resolve closes a report with the given status and resolver.
	Resolve(ctx context.Context, id string, status ReportStatus, resolverID string, at time.Time) error
}

// InMemoryRepository is an in-memory ReportRepository for tests and
// development.
type InMemoryRepository struct {
	mu      sync.RWMutex
	reports map[string]*Report
}

// NewInMemoryRepository creates an empty in-memory report repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{reports: make(map[string]*Report)}
}

// Create stores a new report.
func (r *InMemoryRepository) Create(ctx context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rep
	r.reports[rep.ID] = &cp
	return nil
}

// GetByID retrieves a report.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rep
	return &cp, nil
}

// ListOpen retrieves open reports for a contest, oldest first.
func (r *InMemoryRepository) ListOpen(ctx context.Context, contestID string, limit int) ([]*Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Report
	for _, rep := range r.reports {
		if rep.ContestID != contestID || rep.Status != ReportOpen {
			continue
		}
		cp := *rep
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Resolve closes a report.
func (r *InMemoryRepository) Resolve(ctx context.Context, id string, status ReportStatus, resolverID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return ErrNotFound
	}
	if rep.Status != ReportOpen {
		return ErrReportClosed
	}
	rep.Status = status
	rep.ResolverID = resolverID
	rep.ResolvedAt = &at
	return nil
}
