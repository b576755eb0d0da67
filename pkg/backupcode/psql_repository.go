package backupcode

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

// NewPostgresRepository creates a new PostgreSQL backup code repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Replace(ctx context.Context, userID uuid.UUID, hashes []string, createdAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM backup_code WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete previous backup codes: %w", err)
	}

	for _, hash := range hashes {
		_, err = r.db.Exec(ctx, `
			INSERT INTO backup_code (id, user_id, code_hash, created_at)
			VALUES ($1, $2, $3, $4)
		`, uuid.New(), userID, hash, createdAt)
		if err != nil {
			return fmt.Errorf("failed to insert backup code: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, code_hash, created_at, consumed_at
		FROM backup_code
		WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup codes: %w", err)
	}
	defer rows.Close()

	var codes []BackupCode
	for rows.Next() {
		var code BackupCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.CreatedAt, &code.ConsumedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read backup codes: %w", err)
	}
	return codes, nil
}

// MarkConsumed uses a conditional update so exactly one submission of a code
// can ever succeed.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, codeID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE backup_code
		SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL
	`, codeID, at)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM backup_code
		WHERE user_id = $1 AND consumed_at IS NULL
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}
	return count, nil
}

func (r *PostgresRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM backup_code WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}
