package attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL attempt repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Append(ctx context.Context, attempt Attempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO verification_attempt (id, user_id, method, success, ip_address, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, attempt.ID, attempt.UserID, attempt.Method, attempt.Success, attempt.IPAddress, attempt.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindFailuresSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]Attempt, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, method, success, ip_address, attempted_at
		FROM verification_attempt
		WHERE user_id = $1 AND success = false AND attempted_at >= $2
		ORDER BY attempted_at
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed attempts: %w", err)
	}
	defer rows.Close()

	var failures []Attempt
	for rows.Next() {
		var attempt Attempt
		if err := rows.Scan(&attempt.ID, &attempt.UserID, &attempt.Method, &attempt.Success, &attempt.IPAddress, &attempt.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		failures = append(failures, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read attempts: %w", err)
	}
	return failures, nil
}

func (r *PostgresRepository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM verification_attempt
		WHERE user_id = $1 AND attempted_at >= $2
	`, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) DeleteFailures(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM verification_attempt
		WHERE user_id = $1 AND success = false
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete failed attempts: %w", err)
	}
	return nil
}
