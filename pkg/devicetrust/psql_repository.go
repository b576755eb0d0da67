package devicetrust

import (
	"context"
	"errors"
	"fmt"

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

// NewPostgresRepository creates a new PostgreSQL trusted device repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, device TrustedDevice) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO trusted_device (id, user_id, fingerprint, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, fingerprint)
		DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, device.ID, device.UserID, device.Fingerprint, device.CreatedAt, device.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to upsert trusted device: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID uuid.UUID, fingerprint string) (TrustedDevice, error) {
	var device TrustedDevice
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, fingerprint, created_at, expires_at
		FROM trusted_device
		WHERE user_id = $1 AND fingerprint = $2
	`, userID, fingerprint).Scan(&device.ID, &device.UserID, &device.Fingerprint, &device.CreatedAt, &device.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TrustedDevice{}, ErrNotFound
		}
		return TrustedDevice{}, fmt.Errorf("failed to query trusted device: %w", err)
	}
	return device, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, fingerprint, created_at, expires_at
		FROM trusted_device
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trusted devices: %w", err)
	}
	defer rows.Close()

	var devices []TrustedDevice
	for rows.Next() {
		var device TrustedDevice
		if err := rows.Scan(&device.ID, &device.UserID, &device.Fingerprint, &device.CreatedAt, &device.ExpiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan trusted device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trusted devices: %w", err)
	}
	return devices, nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM trusted_device WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete trusted devices: %w", err)
	}
	return nil
}
