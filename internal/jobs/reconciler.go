package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opencivics/hustings/internal/cluster"
	"github.com/opencivics/hustings/internal/embed"
	"github.com/opencivics/hustings/internal/question"
	"github.com/opencivics/hustings/internal/vecindex"
)

// VectorIndex is the slice of the similarity index the reconciler writes to.
type VectorIndex interface {
	Upsert(contestID, questionID string, vector []float32) error
	Save(path string) error
}

// ClusterReconciler repairs a single cluster's representative and
// aggregates. The cluster manager implements this.
type ClusterReconciler interface {
	Reconcile(ctx context.Context, clusterID string) (bool, error)
}

// ReconcilerConfig configures the reconciliation job.
type ReconcilerConfig struct {
	// Interval is the duration between reconcile cycles.
	Interval time.Duration
	// Timeout bounds a single cycle.
	Timeout time.Duration
	// BatchSize caps how many missing embeddings one cycle repairs.
	BatchSize int
	// SnapshotPath is where the index is persisted after each cycle.
	// Empty disables snapshots.
	SnapshotPath string
	// Logger for job activity.
	Logger *slog.Logger
	// Metrics for job tracking.
	Metrics *Metrics
}

// Reconciler defaults.
const (
	DefaultReconcileInterval = 60 * time.Second
	DefaultReconcileTimeout  = 30 * time.Second
	DefaultBackfillBatchSize = 100
)

// Reconciler is the periodic repair job: it backfills missing embeddings
// into the vector index, re-derives cluster representatives and aggregates,
// and persists an index snapshot.
type Reconciler struct {
	config    ReconcilerConfig
	questions question.Repository
	embedder  embed.Provider
	index     VectorIndex
	pending   *vecindex.PendingTracker
	clusters  cluster.Repository
	manager   ClusterReconciler

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReconciler creates a reconciliation job.
func NewReconciler(
	config ReconcilerConfig,
	questions question.Repository,
	embedder embed.Provider,
	index VectorIndex,
	pending *vecindex.PendingTracker,
	clusters cluster.Repository,
	manager ClusterReconciler,
) *Reconciler {
	if config.Interval == 0 {
		config.Interval = DefaultReconcileInterval
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultReconcileTimeout
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBackfillBatchSize
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Reconciler{
		config:    config,
		questions: questions,
		embedder:  embedder,
		index:     index,
		pending:   pending,
		clusters:  clusters,
		manager:   manager,
	}
}

// Start begins the periodic reconcile job.
// Returns immediately; the job runs in a background goroutine.
func (j *Reconciler) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	go j.run(ctx)
	return nil
}

// Stop signals the job to stop and waits for it to finish.
func (j *Reconciler) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	stopCh := j.stopCh
	doneCh := j.doneCh
	j.mu.Unlock()

	close(stopCh)
	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()
}

// IsRunning returns whether the job is currently running.
func (j *Reconciler) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *Reconciler) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.config.Logger.Info("reconciler stopping due to context cancellation")
			return
		case <-j.stopCh:
			j.config.Logger.Info("reconciler stopping due to stop signal")
			return
		case <-ticker.C:
			j.runCycle(ctx)
		}
	}
}

// RunOnce runs a single reconcile cycle immediately without waiting for the
// ticker. Useful for tests and forced repairs.
func (j *Reconciler) RunOnce(ctx context.Context) {
	j.runCycle(ctx)
}

func (j *Reconciler) runCycle(parentCtx context.Context) {
	ctx, cancel := context.WithTimeout(parentCtx, j.config.Timeout)
	defer cancel()

	j.backfillEmbeddings(ctx)
	j.reconcileClusters(ctx)
	j.snapshotIndex()
}

// backfillEmbeddings repairs questions whose embedding or index entry is
// missing: anything the intake path queued after an embedder outage, plus
// whatever a repository scan turns up.
func (j *Reconciler) backfillEmbeddings(ctx context.Context) {
	start := time.Now()
	status := StatusSuccess

	unembedded, err := j.questions.ListUnembedded(ctx, j.config.BatchSize)
	if err != nil {
		j.config.Logger.Error("failed to list unembedded questions", "error", err)
		j.countJob(JobTypeEmbeddingBackfill, StatusFailure, start)
		j.countError(JobTypeEmbeddingBackfill, "list_error")
		return
	}

	// Pending entries may already have an embedding stored but a missing
	// index entry; fold them into the same pass.
	byID := make(map[string]*question.Question, len(unembedded))
	for _, q := range unembedded {
		byID[q.ID] = q
	}
	if j.pending != nil {
		for _, id := range j.pending.List() {
			if _, ok := byID[id]; ok {
				continue
			}
			q, err := j.questions.GetByID(ctx, id)
			if err != nil {
				j.pending.Done(id)
				continue
			}
			byID[id] = q
		}
	}

	var repaired, failed int
	for id, q := range byID {
		if err := ctx.Err(); err != nil {
			j.config.Logger.Error("backfill timeout exceeded",
				"repaired", repaired,
				"remaining", len(byID)-repaired-failed)
			j.countError(JobTypeEmbeddingBackfill, "timeout")
			status = StatusFailure
			break
		}
		if q.Status == question.StatusRemoved {
			j.markDone(id)
			continue
		}

		vector := q.Embedding
		if vector == nil {
			vector, err = j.embedder.Embed(ctx, q.Text)
			if err != nil {
				failed++
				j.countError(JobTypeEmbeddingBackfill, "embed_error")
				continue
			}
			if err := j.questions.SetEmbedding(ctx, id, vector); err != nil {
				failed++
				j.countError(JobTypeEmbeddingBackfill, "store_error")
				continue
			}
		}

		if err := j.index.Upsert(q.ContestID, id, vector); err != nil {
			failed++
			j.countError(JobTypeEmbeddingBackfill, "index_error")
			continue
		}
		j.markDone(id)
		repaired++
	}

	if failed > 0 {
		status = StatusFailure
	}
	if j.config.Metrics != nil && j.pending != nil {
		j.config.Metrics.SetBackfillPending(float64(j.pending.Count()))
	}
	j.countJob(JobTypeEmbeddingBackfill, status, start)

	if repaired > 0 || failed > 0 {
		j.config.Logger.Info("embedding backfill completed",
			"repaired", repaired,
			"failed", failed,
			"duration_seconds", time.Since(start).Seconds())
	}
}

// reconcileClusters re-derives every cluster's representative and vote
// aggregates from its members.
func (j *Reconciler) reconcileClusters(ctx context.Context) {
	start := time.Now()
	status := StatusSuccess

	contestIDs, err := j.clusters.ListContestIDs(ctx)
	if err != nil {
		j.config.Logger.Error("failed to list contests", "error", err)
		j.countJob(JobTypeClusterReconcile, StatusFailure, start)
		j.countError(JobTypeClusterReconcile, "list_error")
		return
	}

	var checked, changed int
	for _, contestID := range contestIDs {
		clusters, err := j.clusters.ListByContest(ctx, contestID)
		if err != nil {
			j.config.Logger.Error("failed to list clusters",
				"contest_id", contestID,
				"error", err)
			j.countError(JobTypeClusterReconcile, "list_error")
			status = StatusFailure
			continue
		}
		for _, c := range clusters {
			if err := ctx.Err(); err != nil {
				j.config.Logger.Error("cluster reconcile timeout exceeded",
					"checked", checked)
				j.countError(JobTypeClusterReconcile, "timeout")
				j.countJob(JobTypeClusterReconcile, StatusFailure, start)
				return
			}
			drifted, err := j.manager.Reconcile(ctx, c.ID)
			if err != nil {
				j.config.Logger.Error("failed to reconcile cluster",
					"cluster_id", c.ID,
					"error", err)
				j.countError(JobTypeClusterReconcile, "reconcile_error")
				status = StatusFailure
				continue
			}
			checked++
			if drifted {
				changed++
			}
		}
	}

	j.countJob(JobTypeClusterReconcile, status, start)
	j.config.Logger.Info("cluster reconcile completed",
		"checked", checked,
		"changed", changed,
		"duration_seconds", time.Since(start).Seconds())
}

// snapshotIndex persists the vector index so a restart resumes from recent
// state instead of an empty index.
func (j *Reconciler) snapshotIndex() {
	if j.config.SnapshotPath == "" {
		return
	}
	start := time.Now()
	if err := j.index.Save(j.config.SnapshotPath); err != nil {
		j.config.Logger.Error("failed to snapshot index",
			"path", j.config.SnapshotPath,
			"error", err)
		j.countJob(JobTypeIndexSnapshot, StatusFailure, start)
		j.countError(JobTypeIndexSnapshot, "write_error")
		return
	}
	j.countJob(JobTypeIndexSnapshot, StatusSuccess, start)
}

func (j *Reconciler) markDone(questionID string) {
	if j.pending != nil {
		j.pending.Done(questionID)
	}
}

func (j *Reconciler) countJob(jobType, status string, start time.Time) {
	if j.config.Metrics == nil {
		return
	}
	j.config.Metrics.IncJobsTotal(jobType, status)
	j.config.Metrics.ObserveJobDuration(jobType, time.Since(start).Seconds())
}

func (j *Reconciler) countError(jobType, errorType string) {
	if j.config.Metrics != nil {
		j.config.Metrics.IncJobErrors(jobType, errorType)
	}
}
