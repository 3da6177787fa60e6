package moderation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// PostgresRepository implements ReportRepository using PostgreSQL.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a Postgres-backed report repository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

const reportColumns = `id, contest_id, target_kind, target_id, reporter_id, reason, status, resolver_id, created_at, resolved_at`

func scanReport(row interface{ Scan(...any) error }) (*Report, error) {
	var (
		rep        Report
		resolverID sql.NullString
		resolvedAt sql.NullTime
	)
	err := row.Scan(&rep.ID, &rep.ContestID, &rep.Target.Kind, &rep.Target.ID,
		&rep.ReporterID, &rep.Reason, &rep.Status, &resolverID, &rep.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	if resolverID.Valid {
		rep.ResolverID = resolverID.String
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		rep.ResolvedAt = &t
	}
	return &rep, nil
}

// Create stores a new report.
func (r *PostgresRepository) Create(ctx context.Context, rep *Report) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, contest_id, target_kind, target_id, reporter_id, reason, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rep.ID, rep.ContestID, rep.Target.Kind, rep.Target.ID,
		rep.ReporterID, rep.Reason, rep.Status, rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetByID retrieves a report.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Report, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return rep, nil
}

// ListOpen retrieves open reports for a contest, oldest first.
func (r *PostgresRepository) ListOpen(ctx context.Context, contestID string, limit int) ([]*Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports
		WHERE contest_id = $1 AND status = 'open'
		ORDER BY created_at, id`
	args := []any{contestID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open reports: %w", err)
	}
	defer rows.Close()

	var out []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

// Resolve closes an open report.
func (r *PostgresRepository) Resolve(ctx context.Context, id string, status ReportStatus, resolverID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reports SET status = $1, resolver_id = $2, resolved_at = $3
		WHERE id = $4 AND status = 'open'`,
		status, resolverID, at, id)
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing report from one that was already closed.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrReportClosed
	}
	return nil
}
