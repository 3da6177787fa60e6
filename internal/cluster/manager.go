package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opencivics/hustings/internal/question"
)

// Manager owns cluster membership, representative election, and the
// aggregate-counter invariant. It implements question.ClusterService.
type Manager struct {
	repo      Repository
	questions question.Repository
	logger    *slog.Logger
}

// NewManager creates a cluster manager.
func NewManager(repo Repository, questions question.Repository, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{repo: repo, questions: questions, logger: logger}
}

// CreateSingleton creates a cluster containing only q, with q as its
// representative, and points the question at it.
func (m *Manager) CreateSingleton(ctx context.Context, q *question.Question) (string, error) {
	c := &Cluster{
		ID:               uuid.New().String(),
		ContestID:        q.ContestID,
		RepresentativeID: q.ID,
		MemberIDs:        []string{q.ID},
		AggUpvotes:       q.Upvotes,
		AggDownvotes:     q.Downvotes,
		CreatedAt:        time.Now(),
	}
	if err := m.repo.Create(ctx, c); err != nil {
		return "", fmt.Errorf("create cluster: %w", err)
	}
	if err := m.questions.SetCluster(ctx, q.ID, c.ID, q.Status); err != nil {
		return "", fmt.Errorf("link question to cluster: %w", err)
	}
	return c.ID, nil
}

// AttachMerged adds q to the cluster of the matched question, marking q as a
// merged (non-representative) member. Its votes contribute to the cluster
// aggregate from here on.
func (m *Manager) AttachMerged(ctx context.Context, matchedQuestionID string, q *question.Question) error {
	c, err := m.clusterOf(ctx, matchedQuestionID)
	if err != nil {
		return err
	}
	if err := m.questions.SetCluster(ctx, q.ID, c.ID, question.StatusMerged); err != nil {
		return fmt.Errorf("mark question merged: %w", err)
	}
	return m.Attach(ctx, c.ID, q.ID)
}

// Attach adds a member to the cluster and refreshes aggregates and the
// representative.
func (m *Manager) Attach(ctx context.Context, clusterID, questionID string) error {
	c, err := m.repo.GetByID(ctx, clusterID)
	if err != nil {
		return err
	}
	if !c.HasMember(questionID) {
		c.MemberIDs = append(c.MemberIDs, questionID)
	}
	if err := m.refresh(ctx, c); err != nil {
		return err
	}
	return m.repo.Update(ctx, c)
}

// ElectRepresentative recomputes the representative of the cluster: the live
// member with the highest rank score, ties broken by earliest creation time.
// Returns the elected question id.
func (m *Manager) ElectRepresentative(ctx context.Context, clusterID string) (string, error) {
	c, err := m.repo.GetByID(ctx, clusterID)
	if err != nil {
		return "", err
	}
	if err := m.refresh(ctx, c); err != nil {
		return "", err
	}
	if err := m.repo.Update(ctx, c); err != nil {
		return "", err
	}
	return c.RepresentativeID, nil
}

// DetachOnRemoval reacts to a question being moderated to removed: the
// member stops contributing to aggregates and, if it was the representative,
// a new one is elected.
func (m *Manager) DetachOnRemoval(ctx context.Context, questionID string) error {
	c, err := m.repo.GetByMember(ctx, questionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Question was never clustered (embed outage); nothing to do.
			return nil
		}
		return err
	}
	if err := m.refresh(ctx, c); err != nil {
		return err
	}
	return m.repo.Update(ctx, c)
}

// Detach removes a member from its cluster and rebuilds the remainder,
// deleting the cluster when the detached question was its last member.
// Used by the manual unmerge moderation action.
func (m *Manager) Detach(ctx context.Context, questionID string) error {
	c, err := m.repo.GetByMember(ctx, questionID)
	if err != nil {
		return err
	}
	if !c.HasMember(questionID) {
		return ErrNotMember
	}

	members := make([]string, 0, len(c.MemberIDs)-1)
	for _, id := range c.MemberIDs {
		if id != questionID {
			members = append(members, id)
		}
	}
	c.MemberIDs = members

	if len(members) == 0 {
		return m.repo.Delete(ctx, c.ID)
	}
	if err := m.refresh(ctx, c); err != nil {
		return err
	}
	return m.repo.Update(ctx, c)
}

// Reclassify moves an edited question between clusters based on the latest
// duplicate verdict.
func (m *Manager) Reclassify(ctx context.Context, q *question.Question, verdict *question.Verdict) error {
	cur, err := m.repo.GetByMember(ctx, q.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if verdict.IsDuplicate {
		target, err := m.clusterOf(ctx, verdict.QuestionID)
		if err != nil {
			return err
		}
		if cur != nil && cur.ID == target.ID {
			return nil
		}
		if cur != nil && cur.RepresentativeID == q.ID && len(cur.MemberIDs) > 1 {
			// Moving a representative would strand its merged members;
			// leave the cluster intact and let a moderator merge manually.
			m.logger.Warn("edit made a multi-member representative a duplicate, skipping auto-merge",
				"question_id", q.ID, "matched_question_id", verdict.QuestionID)
			return nil
		}
		if cur != nil {
			if err := m.Detach(ctx, q.ID); err != nil {
				return err
			}
		}
		if err := m.questions.SetCluster(ctx, q.ID, target.ID, question.StatusMerged); err != nil {
			return err
		}
		return m.Attach(ctx, target.ID, q.ID)
	}

	// No longer a duplicate: a merged member breaks out into its own cluster.
	if q.Status != question.StatusMerged {
		return nil
	}
	if cur != nil {
		if err := m.Detach(ctx, q.ID); err != nil {
			return err
		}
	}
	if err := m.questions.SetStatus(ctx, q.ID, question.StatusApproved); err != nil {
		return err
	}
	fresh, err := m.questions.GetByID(ctx, q.ID)
	if err != nil {
		return err
	}
	_, err = m.CreateSingleton(ctx, fresh)
	return err
}

// Reconcile verifies the aggregate-counter invariant for a cluster: the
// aggregates must equal the sum of live member counters. A mismatch is
// logged and repaired. Returns true when the stored aggregates were already
// consistent.
func (m *Manager) Reconcile(ctx context.Context, clusterID string) (bool, error) {
	c, err := m.repo.GetByID(ctx, clusterID)
	if err != nil {
		return false, err
	}
	up, down := c.AggUpvotes, c.AggDownvotes
	if err := m.refresh(ctx, c); err != nil {
		return false, err
	}
	consistent := up == c.AggUpvotes && down == c.AggDownvotes
	if !consistent {
		m.logger.Warn("cluster aggregates drifted, repairing",
			"cluster_id", clusterID,
			"stored_up", up, "actual_up", c.AggUpvotes,
			"stored_down", down, "actual_down", c.AggDownvotes)
	}
	if err := m.repo.Update(ctx, c); err != nil {
		return consistent, err
	}
	return consistent, nil
}

// RecomputeAggregates refreshes a cluster's aggregates and representative
// after a vote lands on one of its members.
func (m *Manager) RecomputeAggregates(ctx context.Context, clusterID string) error {
	c, err := m.repo.GetByID(ctx, clusterID)
	if err != nil {
		return err
	}
	if err := m.refresh(ctx, c); err != nil {
		return err
	}
	return m.repo.Update(ctx, c)
}

// clusterOf returns the cluster containing the question, creating a
// singleton cluster when the question was never clustered.
func (m *Manager) clusterOf(ctx context.Context, questionID string) (*Cluster, error) {
	c, err := m.repo.GetByMember(ctx, questionID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	q, err := m.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	id, err := m.CreateSingleton(ctx, q)
	if err != nil {
		return nil, err
	}
	return m.repo.GetByID(ctx, id)
}

// refresh recomputes aggregates and the representative from member state.
// When the elected representative changes, member statuses follow: the new
// representative becomes approved and a displaced live representative is
// marked merged so it no longer appears in listings.
func (m *Manager) refresh(ctx context.Context, c *Cluster) error {
	var (
		aggUp, aggDown int64
		best           *question.Question
	)
	for _, id := range c.MemberIDs {
		q, err := m.questions.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load member %s: %w", id, err)
		}
		if !q.Live() {
			continue
		}
		aggUp += q.Upvotes
		aggDown += q.Downvotes
		if best == nil || betterRepresentative(q, best) {
			best = q
		}
	}
	c.AggUpvotes = aggUp
	c.AggDownvotes = aggDown
	if best == nil {
		// All members removed; keep the last representative for audit reads.
		return nil
	}

	if best.ID != c.RepresentativeID {
		prevID := c.RepresentativeID
		c.RepresentativeID = best.ID
		if best.Status == question.StatusMerged {
			if err := m.questions.SetStatus(ctx, best.ID, question.StatusApproved); err != nil {
				return err
			}
		}
		if prevID != "" && prevID != best.ID {
			prev, err := m.questions.GetByID(ctx, prevID)
			if err == nil && prev.Live() && c.HasMember(prevID) && prev.Status != question.StatusMerged {
				if err := m.questions.SetStatus(ctx, prevID, question.StatusMerged); err != nil {
					return err
				}
			}
		}
	} else if best.Status == question.StatusMerged {
		if err := m.questions.SetStatus(ctx, best.ID, question.StatusApproved); err != nil {
			return err
		}
	}
	return nil
}

func betterRepresentative(a, b *question.Question) bool {
	if a.RankScore != b.RankScore {
		return a.RankScore > b.RankScore
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
