package ranking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/opencivics/hustings/internal/cluster"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/vote"
)

// RepresentativeElector re-elects a cluster's representative after member
// scores change. The cluster manager implements this.
type RepresentativeElector interface {
	ElectRepresentative(ctx context.Context, clusterID string) (string, error)
}

// Engine recomputes rank scores and assembles the top list. It satisfies
// the vote ledger's Recomputer, so every accepted vote lands with a fresh
// score before the response goes out.
type Engine struct {
	questions question.Repository
	clusters  cluster.Repository
	votes     vote.Repository
	elector   RepresentativeElector
	strategy  ScoreStrategy
	selection Selection
	logger    *slog.Logger
}

// NewEngine creates a ranking engine. A nil strategy selects WeightedNet;
// a zero selection selects DefaultSelection.
func NewEngine(questions question.Repository, clusters cluster.Repository, votes vote.Repository, elector RepresentativeElector, strategy ScoreStrategy, selection Selection, logger *slog.Logger) *Engine {
	if strategy == nil {
		strategy = WeightedNet{}
	}
	if selection.TopCount == 0 {
		selection = DefaultSelection()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		questions: questions,
		clusters:  clusters,
		votes:     votes,
		elector:   elector,
		strategy:  strategy,
		selection: selection,
		logger:    logger,
	}
}

// Selection returns the active selection configuration.
func (e *Engine) Selection() Selection {
	return e.selection
}

// Recompute recalculates the question's rank score from its live votes,
// persists it, and re-elects the question's cluster representative since a
// score change can shift which member leads.
func (e *Engine) Recompute(ctx context.Context, questionID string) (float64, error) {
	q, err := e.questions.GetByID(ctx, questionID)
	if err != nil {
		return 0, err
	}

	votes, err := e.votes.ListByQuestion(ctx, questionID)
	if err != nil {
		return 0, fmt.Errorf("list votes for score: %w", err)
	}

	score := e.strategy.Score(votes)
	if err := e.questions.SetRankScore(ctx, questionID, score); err != nil {
		return 0, fmt.Errorf("store rank score: %w", err)
	}

	if q.ClusterID != "" && e.elector != nil {
		if _, err := e.elector.ElectRepresentative(ctx, q.ClusterID); err != nil {
			// The cluster may have been deleted between the read and the
			// election; the score itself is already durable.
			if !errors.Is(err, cluster.ErrNotFound) {
				return 0, fmt.Errorf("re-elect representative: %w", err)
			}
			e.logger.Debug("cluster vanished before re-election",
				"question_id", questionID,
				"cluster_id", q.ClusterID)
		}
	}

	return score, nil
}

// RecomputeContest recalculates scores for every live question in the
// contest. Used by the reconciler after calibration changes.
func (e *Engine) RecomputeContest(ctx context.Context, contestID string) (int, error) {
	questions, err := e.questions.ListByContest(ctx, contestID)
	if err != nil {
		return 0, fmt.Errorf("list contest questions: %w", err)
	}

	recomputed := 0
	for _, q := range questions {
		if !q.Live() {
			continue
		}
		if _, err := e.Recompute(ctx, q.ID); err != nil {
			return recomputed, fmt.Errorf("recompute %s: %w", q.ID, err)
		}
		recomputed++
	}
	return recomputed, nil
}
