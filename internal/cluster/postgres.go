package cluster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// PostgresRepository implements Repository using PostgreSQL. Membership is
// stored as an id array on the cluster row; the questions table carries the
// back-reference in its cluster_id column.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a Postgres-backed cluster repository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const clusterColumns = `id, contest_id, representative_question_id, member_question_ids,
	aggregate_upvotes, aggregate_downvotes, created_at, updated_at`

func scanCluster(row interface{ Scan(...any) error }) (*Cluster, error) {
	var (
		c       Cluster
		members pq.StringArray
	)
	err := row.Scan(&c.ID, &c.ContestID, &c.RepresentativeID, &members,
		&c.AggUpvotes, &c.AggDownvotes, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.MemberIDs = []string(members)
	return &c, nil
}

// Create inserts a new cluster.
func (r *PostgresRepository) Create(ctx context.Context, c *Cluster) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clusters (id, contest_id, representative_question_id,
			member_question_ids, aggregate_upvotes, aggregate_downvotes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		c.ID, c.ContestID, c.RepresentativeID, pq.StringArray(c.MemberIDs),
		c.AggUpvotes, c.AggDownvotes, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert cluster: %w", err)
	}
	return nil
}

// GetByID retrieves a cluster by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Cluster, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE id = $1`, id)
	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster: %w", err)
	}
	return c, nil
}

// GetByMember retrieves the cluster containing the given question.
func (r *PostgresRepository) GetByMember(ctx context.Context, questionID string) (*Cluster, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+clusterColumns+` FROM clusters WHERE $1 = ANY(member_question_ids)`, questionID)
	c, err := scanCluster(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cluster by member: %w", err)
	}
	return c, nil
}

// ListByContest retrieves all clusters for a contest, oldest first.
func (r *PostgresRepository) ListByContest(ctx context.Context, contestID string) ([]*Cluster, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+clusterColumns+` FROM clusters
		 WHERE contest_id = $1 ORDER BY created_at ASC, id ASC`, contestID)
	if err != nil {
		return nil, fmt.Errorf("list clusters: %w", err)
	}
	defer rows.Close()

	var out []*Cluster
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cluster: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListContestIDs returns the distinct contest ids that have clusters.
func (r *PostgresRepository) ListContestIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT contest_id FROM clusters ORDER BY contest_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list contest ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan contest id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Update persists cluster changes.
func (r *PostgresRepository) Update(ctx context.Context, c *Cluster) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clusters SET representative_question_id = $1, member_question_ids = $2,
			aggregate_upvotes = $3, aggregate_downvotes = $4, updated_at = NOW()
		WHERE id = $5`,
		c.RepresentativeID, pq.StringArray(c.MemberIDs), c.AggUpvotes, c.AggDownvotes, c.ID)
	if err != nil {
		return fmt.Errorf("update cluster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a cluster.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clusters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cluster: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
