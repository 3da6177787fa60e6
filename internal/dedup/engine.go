// Package dedup decides whether a newly submitted or edited question
// duplicates an existing cluster, using cosine similarity over embeddings.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/opencivics/hustings/internal/embed"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/vecindex"
)

// DefaultThreshold is the cosine-similarity cutoff above which two questions
// are treated as duplicates.
const DefaultThreshold = 0.85

// defaultCandidates is how many neighbors are pulled from the index per
// check. More than one so removed and excluded questions can be skipped
// without losing the true nearest live neighbor.
const defaultCandidates = 8

// Engine implements question.DuplicateChecker.
type Engine struct {
	embedder  embed.Provider
	index     *vecindex.Index
	questions question.Repository
	threshold float64
	metrics   *Metrics
	logger    *slog.Logger
}

// NewEngine creates a deduplication engine. A non-positive threshold selects
// DefaultThreshold. Metrics may be nil.
func NewEngine(embedder embed.Provider, index *vecindex.Index, questions question.Repository, threshold float64, metrics *Metrics, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		index:     index,
		questions: questions,
		threshold: threshold,
		metrics:   metrics,
		logger:    logger,
	}
}

// Check embeds the text and looks for its nearest live neighbor in the
// contest. excludeID is skipped so an edited question never matches itself.
//
// When the embedding provider is down the check fails open: the verdict is
// "not a duplicate" with a nil embedding, submission proceeds, and the
// reconciler re-embeds and re-clusters later. A caller-canceled context is
// the one case that still fails the request.
func (e *Engine) Check(ctx context.Context, contestID, text, excludeID string) (*question.Verdict, error) {
	vector, err := e.embedder.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("embedding unavailable, failing open",
			"contest_id", contestID, "error", err)
		if e.metrics != nil {
			e.metrics.IncFailOpen()
		}
		return &question.Verdict{}, nil
	}

	verdict := &question.Verdict{Embedding: vector}

	start := time.Now()
	matches, err := e.index.Query(contestID, vector, defaultCandidates)
	if err != nil {
		e.logger.Warn("index query failed, failing open",
			"contest_id", contestID, "error", err)
		if e.metrics != nil {
			e.metrics.IncFailOpen()
		}
		return verdict, nil
	}
	if e.metrics != nil {
		e.metrics.ObserveQuery(time.Since(start).Seconds())
	}

	best, bestSim := e.selectCanonical(ctx, matches, excludeID)
	if best != nil {
		verdict.IsDuplicate = true
		verdict.QuestionID = best.ID
		verdict.Similarity = bestSim
	}
	if e.metrics != nil {
		e.metrics.IncCheck(verdict.IsDuplicate)
	}
	return verdict, nil
}

// selectCanonical picks the duplicate target among index hits at or above
// the threshold: highest similarity first, and among equally similar
// candidates the oldest question wins as canonical.
func (e *Engine) selectCanonical(ctx context.Context, matches []vecindex.Match, excludeID string) (*question.Question, float64) {
	var (
		best    *question.Question
		bestSim float64
	)
	for _, m := range matches {
		if m.Similarity < e.threshold {
			break // matches are ordered by similarity
		}
		if m.QuestionID == excludeID {
			continue
		}
		q, err := e.questions.GetByID(ctx, m.QuestionID)
		if err != nil {
			// Index entry without a stored question: stale, skip it.
			e.logger.Warn("index hit has no stored question", "question_id", m.QuestionID)
			continue
		}
		if q.Status == question.StatusRemoved {
			continue
		}
		if best == nil || m.Similarity > bestSim ||
			(m.Similarity == bestSim && olderThan(q, best)) {
			best = q
			bestSim = m.Similarity
		}
	}
	return best, bestSim
}

func olderThan(a, b *question.Question) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
