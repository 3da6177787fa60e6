package question

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opencivics/hustings/internal/auth"
)

// Verdict is the outcome of a duplicate check. Embedding carries the vector
// computed during the check so callers do not embed the same text twice; it
// is nil when the embedding provider was unavailable (fail-open).
type Verdict struct {
	IsDuplicate bool
	QuestionID  string
	Similarity  float64
	Embedding   []float32
}

// DuplicateChecker decides whether text duplicates an existing question in
// the contest. excludeID is skipped during matching so an edited question is
// never matched against itself.
type DuplicateChecker interface {
	Check(ctx context.Context, contestID, text, excludeID string) (*Verdict, error)
}

// ClusterService owns cluster membership changes driven by submission and
// edit outcomes.
type ClusterService interface {
	// CreateSingleton creates a new cluster containing only q and returns its id.
	CreateSingleton(ctx context.Context, q *Question) (string, error)

	// AttachMerged adds q to the cluster of the matched question, marking q merged.
	AttachMerged(ctx context.Context, matchedQuestionID string, q *Question) error

	// Reclassify moves an edited question between clusters based on the new
	// verdict: into the matched cluster when verdict.IsDuplicate, or out into
	// a fresh singleton cluster when it no longer duplicates anything.
	Reclassify(ctx context.Context, q *Question, verdict *Verdict) error
}

// VectorUpserter mirrors question embeddings into the similarity index.
// Index writes are best-effort; failures are queued for the reconciler.
type VectorUpserter interface {
	Upsert(contestID, questionID string, vector []float32) error
}

// BackfillQueue receives question ids whose embedding or index entry is
// missing and must be repaired by the reconciliation job.
type BackfillQueue interface {
	Enqueue(questionID string)
}

// Engine is the question versioning engine. It owns submission and edits,
// delegating duplicate detection and cluster membership to its collaborators.
type Engine struct {
	repo     Repository
	dedup    DuplicateChecker
	clusters ClusterService
	index    VectorUpserter
	backfill BackfillQueue
	screen   IntakeScreen
	logger   *slog.Logger
}

// NewEngine creates a versioning engine. A nil screen approves every
// submission immediately.
func NewEngine(repo Repository, dedup DuplicateChecker, clusters ClusterService, index VectorUpserter, backfill BackfillQueue, screen IntakeScreen, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if screen == nil {
		screen = approveAll{}
	}
	return &Engine{
		repo:     repo,
		dedup:    dedup,
		clusters: clusters,
		index:    index,
		backfill: backfill,
		screen:   screen,
		logger:   logger,
	}
}

// Submit validates and stores a new question.
//
// The text is checked against the contest's existing questions first: a
// duplicate is attached to the matched question's cluster as a merged member
// rather than created as an independent question. Non-duplicates enter the
// pool with the status the intake screen assigns: approved, or pending when
// the text needs moderator review first. The submitter is not auto-credited
// a vote either way.
func (e *Engine) Submit(ctx context.Context, contestID string, actor auth.Actor, text string, tags []string) (*Question, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}
	if err := ValidateTags(tags); err != nil {
		return nil, err
	}

	verdict, err := e.dedup.Check(ctx, contestID, text, "")
	if err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	}

	status := e.screen.Screen(text)
	authorID := actor.UserID
	q := &Question{
		ID:        uuid.New().String(),
		ContestID: contestID,
		AuthorID:  &authorID,
		Text:      text,
		Tags:      append([]string(nil), tags...),
		Status:    status,
		Embedding: verdict.Embedding,
		CreatedAt: time.Now(),
	}
	v := &Version{
		ID:         uuid.New().String(),
		QuestionID: q.ID,
		Number:     1,
		Text:       text,
		EditorID:   actor.UserID,
		CreatedAt:  q.CreatedAt,
	}
	if err := e.repo.Create(ctx, q, v); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}

	if verdict.IsDuplicate {
		if err := e.clusters.AttachMerged(ctx, verdict.QuestionID, q); err != nil {
			return nil, fmt.Errorf("attach duplicate to cluster: %w", err)
		}
		e.logger.Info("question merged on submission",
			"question_id", q.ID,
			"matched_question_id", verdict.QuestionID,
			"similarity", verdict.Similarity)
		return e.repo.GetByID(ctx, q.ID)
	}

	clusterID, err := e.clusters.CreateSingleton(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("create cluster: %w", err)
	}
	q.ClusterID = clusterID

	if status == StatusPending {
		e.logger.Info("question held for review",
			"question_id", q.ID,
			"contest_id", contestID)
	}
	e.syncIndex(q)
	return e.repo.GetByID(ctx, q.ID)
}

// Edit creates the next immutable version of a question. Only the original
// author or a moderator may edit. Prior versions and answers bound to them
// are untouched; the new text is re-embedded and re-checked for duplicates
// against the current cluster landscape, excluding the question itself.
func (e *Engine) Edit(ctx context.Context, questionID string, actor auth.Actor, newText, reason string) (*Version, error) {
	if err := ValidateText(newText); err != nil {
		return nil, err
	}

	q, err := e.repo.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status == StatusRemoved {
		return nil, ErrTerminalStatus
	}
	if !canEdit(q, actor) {
		return nil, ErrNotEditor
	}

	versions, err := e.repo.ListVersions(ctx, questionID)
	if err != nil {
		return nil, err
	}
	next := 1
	if n := len(versions); n > 0 {
		next = versions[n-1].Number + 1
	}

	v := &Version{
		ID:         uuid.New().String(),
		QuestionID: questionID,
		Number:     next,
		Text:       newText,
		EditorID:   actor.UserID,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
	if err := e.repo.AddVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("add version: %w", err)
	}

	verdict, err := e.dedup.Check(ctx, q.ContestID, newText, questionID)
	if err != nil {
		return nil, fmt.Errorf("duplicate re-check: %w", err)
	}

	if verdict.Embedding != nil {
		if err := e.repo.SetEmbedding(ctx, questionID, verdict.Embedding); err != nil {
			return nil, fmt.Errorf("store embedding: %w", err)
		}
	}

	q, err = e.repo.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := e.clusters.Reclassify(ctx, q, verdict); err != nil {
		return nil, fmt.Errorf("reclassify after edit: %w", err)
	}

	e.syncIndex(q)
	return v, nil
}

// syncIndex pushes the question's embedding into the vector index. The index
// is eventually consistent with storage: a failed or impossible write is
// queued for the reconciler instead of failing the request.
func (e *Engine) syncIndex(q *Question) {
	if q.Embedding == nil {
		e.backfill.Enqueue(q.ID)
		return
	}
	if err := e.index.Upsert(q.ContestID, q.ID, q.Embedding); err != nil {
		e.logger.Warn("vector index upsert failed, queued for reconciliation",
			"question_id", q.ID, "error", err)
		e.backfill.Enqueue(q.ID)
	}
}

func canEdit(q *Question, actor auth.Actor) bool {
	if actor.IsModerator() {
		return true
	}
	return q.AuthorID != nil && *q.AuthorID == actor.UserID
}
