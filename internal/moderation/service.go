package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opencivics/hustings/internal/audit"
	"github.com/opencivics/hustings/internal/auth"
	"github.com/opencivics/hustings/internal/question"
)

// ClusterOps is the slice of cluster management that moderation actions
// drive. The cluster manager implements this.
type ClusterOps interface {
	DetachOnRemoval(ctx context.Context, questionID string) error
	Detach(ctx context.Context, questionID string) error
	AttachMerged(ctx context.Context, matchedQuestionID string, q *question.Question) error
	CreateSingleton(ctx context.Context, q *question.Question) (string, error)
}

// IndexSync keeps the vector index in step with moderation outcomes:
// removed content stops matching future submissions, and an unmerged
// question becomes matchable again.
type IndexSync interface {
	Remove(questionID string)
	Upsert(contestID, questionID string, vector []float32) error
}

// Service carries out moderator actions and report intake.
type Service struct {
	questions question.Repository
	clusters  ClusterOps
	index     IndexSync
	reports   ReportRepository
	dedup     question.DuplicateChecker
	backfill  question.BackfillQueue
	auditLog  audit.Repository
	metrics   *Metrics
	logger    *slog.Logger
}

// NewService creates a moderation service. dedup, backfill, auditLog and
// metrics may be nil: unmerged questions are then not re-checked for
// duplicates, missing embeddings are not queued for repair, and actions are
// not audit-logged or counted.
func NewService(questions question.Repository, clusters ClusterOps, index IndexSync, reports ReportRepository, dedup question.DuplicateChecker, backfill question.BackfillQueue, auditLog audit.Repository, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		questions: questions,
		clusters:  clusters,
		index:     index,
		reports:   reports,
		dedup:     dedup,
		backfill:  backfill,
		auditLog:  auditLog,
		metrics:   metrics,
		logger:    logger,
	}
}

// recordAudit appends a moderator action to the audit log. The action has
// already happened, so a failed append is logged rather than returned.
func (s *Service) recordAudit(ctx context.Context, actor auth.Actor, entityType, entityID, action string) {
	if s.auditLog == nil {
		return
	}
	if err := audit.RecordAction(ctx, s.auditLog, actor.UserID, entityType, entityID, action, audit.OutcomeSuccess); err != nil {
		s.logger.Error("failed to append audit record",
			"action", action,
			"entity_id", entityID,
			"error", err)
	}
}

// Flag sets or clears the review flag on a question. Moderator only.
func (s *Service) Flag(ctx context.Context, actor auth.Actor, questionID string, flagged bool) error {
	if !actor.IsModerator() {
		return ErrForbidden
	}
	if err := s.questions.SetFlagged(ctx, questionID, flagged); err != nil {
		return err
	}
	s.count(ActionFlag)
	auditAction := audit.ActionFlagQuestion
	if !flagged {
		auditAction = audit.ActionUnflagQuestion
	}
	s.recordAudit(ctx, actor, audit.EntityQuestion, questionID, auditAction)
	s.logger.Info("question flag updated",
		"question_id", questionID,
		"flagged", flagged,
		"moderator_id", actor.UserID)
	return nil
}

// Remove soft-deletes a question: the record and its versions stay for
// audit, but it leaves the vector index, stops contributing to its
// cluster, and never appears in listings again. Idempotent. Moderator
// only. Returns the question's contest ID so callers can notify contest
// subscribers.
func (s *Service) Remove(ctx context.Context, actor auth.Actor, questionID string) (string, error) {
	if !actor.IsModerator() {
		return "", ErrForbidden
	}
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return "", err
	}
	if q.Status == question.StatusRemoved {
		return q.ContestID, nil
	}
	if err := s.questions.SetStatus(ctx, questionID, question.StatusRemoved); err != nil {
		return "", err
	}
	if s.index != nil {
		s.index.Remove(questionID)
	}
	if err := s.clusters.DetachOnRemoval(ctx, questionID); err != nil {
		return "", fmt.Errorf("detach removed question: %w", err)
	}
	s.count(ActionRemove)
	s.recordAudit(ctx, actor, audit.EntityQuestion, questionID, audit.ActionRemoveQuestion)
	s.logger.Info("question removed",
		"question_id", questionID,
		"moderator_id", actor.UserID)
	return q.ContestID, nil
}

// Merge is the manual override for a missed duplicate: the source question
// leaves its current cluster and joins the target's cluster as a merged
// member. Moderator only. Returns the contest ID of the merged pair.
func (s *Service) Merge(ctx context.Context, actor auth.Actor, sourceID, targetID string) (string, error) {
	if !actor.IsModerator() {
		return "", ErrForbidden
	}
	if sourceID == targetID {
		return "", ErrSameQuestion
	}
	src, err := s.questions.GetByID(ctx, sourceID)
	if err != nil {
		return "", err
	}
	if !src.Live() {
		return "", question.ErrTerminalStatus
	}
	target, err := s.questions.GetByID(ctx, targetID)
	if err != nil {
		return "", err
	}
	if !target.Live() {
		return "", question.ErrTerminalStatus
	}

	if src.ClusterID != "" {
		if err := s.clusters.Detach(ctx, sourceID); err != nil {
			return "", fmt.Errorf("detach from current cluster: %w", err)
		}
	}
	if err := s.clusters.AttachMerged(ctx, targetID, src); err != nil {
		return "", fmt.Errorf("attach to target cluster: %w", err)
	}
	s.count(ActionMerge)
	s.recordAudit(ctx, actor, audit.EntityQuestion, sourceID, audit.ActionMergeQuestion)
	s.logger.Info("questions merged manually",
		"source_id", sourceID,
		"target_id", targetID,
		"moderator_id", actor.UserID)
	return src.ContestID, nil
}

// Unmerge is the manual override for a false-positive merge: the question
// leaves its cluster, is re-embedded and re-checked against the contest's
// current questions, and either becomes the approved representative of a
// fresh singleton or joins a different matching cluster. Its vote counters
// come with it either way. A re-check match inside the old cluster is
// ignored, since the moderator just ruled that pairing wrong. Moderator
// only. Returns the question in its post-unmerge state.
func (s *Service) Unmerge(ctx context.Context, actor auth.Actor, questionID string) (*question.Question, error) {
	if !actor.IsModerator() {
		return nil, ErrForbidden
	}
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status != question.StatusMerged {
		return nil, ErrNotMerged
	}
	oldClusterID := q.ClusterID
	if err := s.clusters.Detach(ctx, questionID); err != nil {
		return nil, fmt.Errorf("detach merged question: %w", err)
	}
	if err := s.questions.SetStatus(ctx, questionID, question.StatusApproved); err != nil {
		return nil, err
	}

	verdict := &question.Verdict{}
	if s.dedup != nil {
		verdict, err = s.dedup.Check(ctx, q.ContestID, q.Text, questionID)
		if err != nil {
			return nil, fmt.Errorf("duplicate re-check: %w", err)
		}
	}
	if verdict.IsDuplicate {
		match, err := s.questions.GetByID(ctx, verdict.QuestionID)
		if err != nil {
			return nil, fmt.Errorf("load re-check match: %w", err)
		}
		if match.ClusterID == oldClusterID {
			verdict = &question.Verdict{Embedding: verdict.Embedding}
		}
	}
	if verdict.Embedding != nil {
		if err := s.questions.SetEmbedding(ctx, questionID, verdict.Embedding); err != nil {
			return nil, fmt.Errorf("store embedding: %w", err)
		}
	}

	fresh, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if verdict.IsDuplicate {
		if err := s.clusters.AttachMerged(ctx, verdict.QuestionID, fresh); err != nil {
			return nil, fmt.Errorf("attach to matched cluster: %w", err)
		}
	} else {
		if _, err := s.clusters.CreateSingleton(ctx, fresh); err != nil {
			return nil, fmt.Errorf("create singleton cluster: %w", err)
		}
		s.syncIndex(fresh)
	}

	s.count(ActionUnmerge)
	s.recordAudit(ctx, actor, audit.EntityQuestion, questionID, audit.ActionUnmergeQuestion)
	s.logger.Info("question unmerged",
		"question_id", questionID,
		"rematched", verdict.IsDuplicate,
		"moderator_id", actor.UserID)
	return s.questions.GetByID(ctx, questionID)
}

// Approve releases a question held pending by the intake screen into the
// live pool. Idempotent for already-approved questions. Moderator only.
// Returns the question's contest ID.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, questionID string) (string, error) {
	if !actor.IsModerator() {
		return "", ErrForbidden
	}
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return "", err
	}
	switch q.Status {
	case question.StatusApproved:
		return q.ContestID, nil
	case question.StatusPending:
	default:
		return "", ErrNotPending
	}
	if err := s.questions.SetStatus(ctx, questionID, question.StatusApproved); err != nil {
		return "", err
	}
	s.count(ActionApprove)
	s.recordAudit(ctx, actor, audit.EntityQuestion, questionID, audit.ActionApproveQuestion)
	s.logger.Info("question approved",
		"question_id", questionID,
		"moderator_id", actor.UserID)
	return q.ContestID, nil
}

// syncIndex restores a question's index entry after it re-enters the live
// pool. Missing embeddings and failed writes are queued for the reconciler.
func (s *Service) syncIndex(q *question.Question) {
	if q.Embedding == nil || s.index == nil {
		s.enqueueBackfill(q.ID)
		return
	}
	if err := s.index.Upsert(q.ContestID, q.ID, q.Embedding); err != nil {
		s.logger.Warn("vector index upsert failed, queued for reconciliation",
			"question_id", q.ID,
			"error", err)
		s.enqueueBackfill(q.ID)
	}
}

func (s *Service) enqueueBackfill(questionID string) {
	if s.backfill != nil {
		s.backfill.Enqueue(questionID)
	}
}

// FileReport records a complaint about a piece of content. Any
// authenticated user may file one. Question targets are checked for
// existence; answer and rebuttal targets live in a different service and
// are accepted as opaque ids.
func (s *Service) FileReport(ctx context.Context, actor auth.Actor, contestID string, target TargetRef, reason string) (*Report, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateReason(reason); err != nil {
		return nil, err
	}
	if target.Kind == TargetQuestion {
		if _, err := s.questions.GetByID(ctx, target.ID); err != nil {
			if errors.Is(err, question.ErrNotFound) {
				return nil, ErrInvalidTarget
			}
			return nil, err
		}
	}
	rep := &Report{
		ID:         uuid.New().String(),
		ContestID:  contestID,
		Target:     target,
		ReporterID: actor.UserID,
		Reason:     reason,
		Status:     ReportOpen,
		CreatedAt:  time.Now(),
	}
	if err := s.reports.Create(ctx, rep); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	if s.metrics != nil {
		s.metrics.IncReport(string(target.Kind))
	}
	s.recordAudit(ctx, actor, audit.EntityReport, rep.ID, audit.ActionFileReport)
	return rep, nil
}

// OpenReports lists a contest's open reports for the moderation queue,
// oldest first. Moderator only.
func (s *Service) OpenReports(ctx context.Context, actor auth.Actor, contestID string, limit int) ([]*Report, error) {
	if !actor.IsModerator() {
		return nil, ErrForbidden
	}
	return s.reports.ListOpen(ctx, contestID, limit)
}

// ResolveReport closes a report as resolved or dismissed. Moderator only.
func (s *Service) ResolveReport(ctx context.Context, actor auth.Actor, reportID string, dismiss bool) error {
	if !actor.IsModerator() {
		return ErrForbidden
	}
	status := ReportResolved
	if dismiss {
		status = ReportDismissed
	}
	if err := s.reports.Resolve(ctx, reportID, status, actor.UserID, time.Now()); err != nil {
		return err
	}
	s.count(ActionResolveReport)
	auditAction := audit.ActionResolveReport
	if dismiss {
		auditAction = audit.ActionDismissReport
	}
	s.recordAudit(ctx, actor, audit.EntityReport, reportID, auditAction)
	return nil
}

func (s *Service) count(action string) {
	if s.metrics != nil {
		s.metrics.IncAction(action)
	}
}
