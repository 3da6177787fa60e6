package vote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencivics/hustings/internal/auth"
	"github.com/opencivics/hustings/internal/question"
)

// maxCASRetries bounds how often a lost counter swap is retried before the
// request surfaces a transient conflict.
const maxCASRetries = 5

// Recomputer recalculates a question's rank score from its live votes.
// Ranking implements this; the ledger calls it synchronously so the score is
// never stale relative to the vote that just landed.
type Recomputer interface {
	Recompute(ctx context.Context, questionID string) (float64, error)
}

// AggregateRefresher refreshes cluster aggregates after a member's counters
// change. The cluster manager implements this.
type AggregateRefresher interface {
	RecomputeAggregates(ctx context.Context, clusterID string) error
}

// Result reports the state after a cast.
type Result struct {
	QuestionID string  `json:"question_id"`
	ContestID  string  `json:"contest_id"`
	Value      int     `json:"value"` // 0 when the vote was retracted or absent
	Upvotes    int64   `json:"upvotes"`
	Downvotes  int64   `json:"downvotes"`
	RankScore  float64 `json:"rank_score"`
}

// Ledger records votes, keeps the per-question counters consistent under
// concurrency, and triggers synchronous rank recomputation.
type Ledger struct {
	votes      Repository
	questions  question.Repository
	aggregates AggregateRefresher
	recomputer Recomputer
	weigh      WeightFunc
	metrics    *Metrics
	logger     *slog.Logger
}

// NewLedger creates a vote ledger. A nil weigh selects ConstantWeight;
// metrics may be nil.
func NewLedger(votes Repository, questions question.Repository, aggregates AggregateRefresher, recomputer Recomputer, weigh WeightFunc, metrics *Metrics, logger *slog.Logger) *Ledger {
	if weigh == nil {
		weigh = ConstantWeight
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		votes:      votes,
		questions:  questions,
		aggregates: aggregates,
		recomputer: recomputer,
		weigh:      weigh,
		metrics:    metrics,
		logger:     logger,
	}
}

// Cast records, changes, or retracts (value 0) the actor's vote on a
// question. Only verified users may vote, and only pending or approved
// questions are votable: votes on merged members must target the cluster
// representative.
func (l *Ledger) Cast(ctx context.Context, actor auth.Actor, questionID string, value int, deviceRiskScore float64) (*Result, error) {
	if value < ValueDown || value > ValueUp {
		return nil, ErrInvalidValue
	}
	if !actor.IsVerified() {
		return nil, ErrNotVerified
	}

	q, err := l.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.Votable() {
		return nil, ErrNotVotable
	}

	prev, err := l.votes.Get(ctx, actor.UserID, questionID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load existing vote: %w", err)
	}
	prevValue := 0
	if prev != nil {
		prevValue = prev.Value
	}

	if value == ValueRetract {
		if prev == nil {
			// Retracting a vote that does not exist is a no-op.
			return l.result(ctx, q, 0)
		}
		if err := l.votes.Delete(ctx, actor.UserID, questionID); err != nil {
			return nil, fmt.Errorf("delete vote: %w", err)
		}
	} else {
		weight := clampWeight(l.weigh(ctx, actor.UserID, questionID, deviceRiskScore))
		v := &Vote{
			UserID:          actor.UserID,
			QuestionID:      questionID,
			Value:           value,
			Weight:          weight,
			DeviceRiskScore: deviceRiskScore,
		}
		if err := l.votes.Put(ctx, v); err != nil {
			return nil, fmt.Errorf("store vote: %w", err)
		}
	}

	q, err = l.applyCounterDelta(ctx, questionID, prevValue, value)
	if err != nil {
		return nil, err
	}

	if q.ClusterID != "" && l.aggregates != nil {
		if err := l.aggregates.RecomputeAggregates(ctx, q.ClusterID); err != nil {
			return nil, fmt.Errorf("refresh cluster aggregates: %w", err)
		}
	}

	if l.metrics != nil {
		l.metrics.IncCast(value)
	}
	return l.result(ctx, q, value)
}

// applyCounterDelta moves the question's counters from the previous vote
// value to the new one via compare-and-swap, retrying lost swaps so two
// concurrent votes by different users are both reflected.
func (l *Ledger) applyCounterDelta(ctx context.Context, questionID string, prevValue, newValue int) (*question.Question, error) {
	if prevValue == newValue {
		return l.questions.GetByID(ctx, questionID)
	}

	for attempt := 0; attempt <= maxCASRetries; attempt++ {
		q, err := l.questions.GetByID(ctx, questionID)
		if err != nil {
			return nil, err
		}

		newUp, newDown := q.Upvotes, q.Downvotes
		switch prevValue {
		case ValueUp:
			newUp--
		case ValueDown:
			newDown--
		}
		switch newValue {
		case ValueUp:
			newUp++
		case ValueDown:
			newDown++
		}
		if newUp < 0 {
			newUp = 0
		}
		if newDown < 0 {
			newDown = 0
		}

		swapped, err := l.questions.CompareAndSwapCounts(ctx, questionID, q.Upvotes, q.Downvotes, newUp, newDown)
		if err != nil {
			return nil, fmt.Errorf("swap vote counters: %w", err)
		}
		if swapped {
			q.Upvotes = newUp
			q.Downvotes = newDown
			return q, nil
		}
		if l.metrics != nil {
			l.metrics.IncCASRetry()
		}
		// Brief backoff keeps retries from re-colliding in lockstep.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Millisecond):
		}
	}

	if l.metrics != nil {
		l.metrics.IncConflict()
	}
	return nil, ErrConflict
}

// result recomputes the rank score synchronously and assembles the response.
func (l *Ledger) result(ctx context.Context, q *question.Question, value int) (*Result, error) {
	score := q.RankScore
	if l.recomputer != nil {
		var err error
		score, err = l.recomputer.Recompute(ctx, q.ID)
		if err != nil {
			return nil, fmt.Errorf("recompute rank score: %w", err)
		}
	}
	return &Result{
		QuestionID: q.ID,
		ContestID:  q.ContestID,
		Value:      value,
		Upvotes:    q.Upvotes,
		Downvotes:  q.Downvotes,
		RankScore:  score,
	}, nil
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
