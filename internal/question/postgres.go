package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a Postgres-backed question repository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const questionColumns = `id, contest_id, author_id, current_version_id, text, issue_tags,
	status, cluster_id, embedding, upvotes, downvotes, rank_score, is_flagged,
	created_at, updated_at`

func scanQuestion(row interface{ Scan(...any) error }) (*Question, error) {
	var (
		q         Question
		authorID  sql.NullString
		clusterID sql.NullString
		tags      pq.StringArray
		embedding pq.Float32Array
	)
	err := row.Scan(&q.ID, &q.ContestID, &authorID, &q.CurrentVersionID, &q.Text, &tags,
		&q.Status, &clusterID, &embedding, &q.Upvotes, &q.Downvotes, &q.RankScore,
		&q.Flagged, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if authorID.Valid {
		q.AuthorID = &authorID.String
	}
	if clusterID.Valid {
		q.ClusterID = clusterID.String
	}
	q.Tags = []string(tags)
	if embedding != nil {
		q.Embedding = []float32(embedding)
	}
	return &q, nil
}

// Create inserts the question and its initial version in one transaction.
func (r *PostgresRepository) Create(ctx context.Context, q *Question, v *Version) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("rollback failed", "error", err)
		}
	}()

	var embedding interface{}
	if q.Embedding != nil {
		embedding = pq.Float32Array(q.Embedding)
	}
	var clusterID interface{}
	if q.ClusterID != "" {
		clusterID = q.ClusterID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO questions (id, contest_id, author_id, current_version_id, text,
			issue_tags, status, cluster_id, embedding, upvotes, downvotes, rank_score,
			is_flagged, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, 0, 0, false, $10, $10)`,
		q.ID, q.ContestID, q.AuthorID, v.ID, v.Text, pq.StringArray(q.Tags),
		q.Status, clusterID, embedding, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert question: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO question_versions (id, question_id, version_number, text,
			edit_author_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.QuestionID, v.Number, v.Text, v.EditorID, v.Reason, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID retrieves a question by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Question, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}
	return q, nil
}

// ListByContest retrieves all questions for a contest, oldest first.
func (r *PostgresRepository) ListByContest(ctx context.Context, contestID string) ([]*Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE contest_id = $1 ORDER BY created_at ASC, id ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// AddVersion inserts a version and updates the question's current pointer
// and cached text atomically.
func (r *PostgresRepository) AddVersion(ctx context.Context, v *Version) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			r.logger.Warn("rollback failed", "error", err)
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO question_versions (id, question_id, version_number, text,
			edit_author_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.QuestionID, v.Number, v.Text, v.EditorID, v.Reason, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE questions SET current_version_id = $1, text = $2, updated_at = NOW()
		WHERE id = $3`,
		v.ID, v.Text, v.QuestionID)
	if err != nil {
		return fmt.Errorf("update current version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetVersion retrieves a single version by id.
func (r *PostgresRepository) GetVersion(ctx context.Context, versionID string) (*Version, error) {
	var v Version
	err := r.db.QueryRowContext(ctx, `
		SELECT id, question_id, version_number, text, edit_author_id, reason, created_at
		FROM question_versions WHERE id = $1`, versionID).
		Scan(&v.ID, &v.QuestionID, &v.Number, &v.Text, &v.EditorID, &v.Reason, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return &v, nil
}

// ListVersions retrieves all versions of a question ordered by number.
func (r *PostgresRepository) ListVersions(ctx context.Context, questionID string) ([]*Version, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, question_id, version_number, text, edit_author_id, reason, created_at
		FROM question_versions WHERE question_id = $1 ORDER BY version_number ASC`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []*Version
	for rows.Next() {
		var v Version
		if err := rows.Scan(&v.ID, &v.QuestionID, &v.Number, &v.Text, &v.EditorID,
			&v.Reason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		out = append(out, &v)
	}
	if len(out) == 0 {
		// Distinguish an unknown question from one with no versions; every
		// question has at least version 1.
		return nil, ErrNotFound
	}
	return out, rows.Err()
}

// SetStatus transitions the question's status.
func (r *PostgresRepository) SetStatus(ctx context.Context, id string, status Status) error {
	return r.exec(ctx, `UPDATE questions SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

// SetFlagged sets or clears the moderation flag.
func (r *PostgresRepository) SetFlagged(ctx context.Context, id string, flagged bool) error {
	return r.exec(ctx, `UPDATE questions SET is_flagged = $1, updated_at = NOW() WHERE id = $2`, flagged, id)
}

// SetCluster moves the question into a cluster.
func (r *PostgresRepository) SetCluster(ctx context.Context, id, clusterID string, status Status) error {
	return r.exec(ctx, `UPDATE questions SET cluster_id = $1, status = $2, updated_at = NOW() WHERE id = $3`,
		clusterID, status, id)
}

// SetEmbedding stores a recomputed embedding vector.
func (r *PostgresRepository) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	return r.exec(ctx, `UPDATE questions SET embedding = $1, updated_at = NOW() WHERE id = $2`,
		pq.Float32Array(embedding), id)
}

// SetRankScore stores a recomputed rank score.
func (r *PostgresRepository) SetRankScore(ctx context.Context, id string, score float64) error {
	return r.exec(ctx, `UPDATE questions SET rank_score = $1, updated_at = NOW() WHERE id = $2`, score, id)
}

// CompareAndSwapCounts updates the counters only if they still hold the
// expected values, relying on Postgres row-level locking for atomicity.
func (r *PostgresRepository) CompareAndSwapCounts(ctx context.Context, id string, oldUp, oldDown, newUp, newDown int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE questions SET upvotes = $1, downvotes = $2, updated_at = NOW()
		WHERE id = $3 AND upvotes = $4 AND downvotes = $5`,
		newUp, newDown, id, oldUp, oldDown)
	if err != nil {
		return false, fmt.Errorf("cas vote counts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cas vote counts: %w", err)
	}
	return n == 1, nil
}

// ListUnembedded returns live questions with a missing embedding, oldest first.
func (r *PostgresRepository) ListUnembedded(ctx context.Context, limit int) ([]*Question, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM questions
		 WHERE embedding IS NULL AND status != 'removed'
		 ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unembedded: %w", err)
	}
	defer rows.Close()

	var out []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
