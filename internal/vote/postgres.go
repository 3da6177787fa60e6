package vote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
)

// PostgresRepository implements Repository using PostgreSQL. The votes table
// carries a primary key on (user_id, question_id), so uniqueness is enforced
// by the database and Put is a single upsert statement.
type PostgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresRepository creates a Postgres-backed vote repository.
func NewPostgresRepository(db *sql.DB, logger *slog.Logger) *PostgresRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// Get retrieves the live vote for (user, question).
func (r *PostgresRepository) Get(ctx context.Context, userID, questionID string) (*Vote, error) {
	var v Vote
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, question_id, value, weight, device_risk_score, created_at, updated_at
		FROM votes WHERE user_id = $1 AND question_id = $2`, userID, questionID).
		Scan(&v.UserID, &v.QuestionID, &v.Value, &v.Weight, &v.DeviceRiskScore,
			&v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return &v, nil
}

// Put inserts or updates the vote for (user, question).
func (r *PostgresRepository) Put(ctx context.Context, v *Vote) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO votes (user_id, question_id, value, weight, device_risk_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (user_id, question_id)
		DO UPDATE SET value = EXCLUDED.value, weight = EXCLUDED.weight,
			device_risk_score = EXCLUDED.device_risk_score, updated_at = NOW()`,
		v.UserID, v.QuestionID, v.Value, v.Weight, v.DeviceRiskScore)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}
	return nil
}

// Delete removes the vote for (user, question).
func (r *PostgresRepository) Delete(ctx context.Context, userID, questionID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM votes WHERE user_id = $1 AND question_id = $2`, userID, questionID)
	if err != nil {
		return fmt.Errorf("delete vote: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByQuestion retrieves all live votes on a question.
func (r *PostgresRepository) ListByQuestion(ctx context.Context, questionID string) ([]*Vote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, question_id, value, weight, device_risk_score, created_at, updated_at
		FROM votes WHERE question_id = $1`, questionID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.UserID, &v.QuestionID, &v.Value, &v.Weight,
			&v.DeviceRiskScore, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}
