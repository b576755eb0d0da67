package enrollment

import (
	"context"
	"errors"
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

// PostgresConfigRepository implements ConfigRepository using PostgreSQL
type PostgresConfigRepository struct {
	db DBTX
}

// NewPostgresConfigRepository creates a new PostgreSQL config repository
func NewPostgresConfigRepository(db DBTX) *PostgresConfigRepository {
	return &PostgresConfigRepository{db: db}
}

func (r *PostgresConfigRepository) Get(ctx context.Context, userID uuid.UUID) (TwoFactorConfig, error) {
	var config TwoFactorConfig
	var method string
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, method, secret, enabled, confirmed, created_at, updated_at
		FROM two_factor_config
		WHERE user_id = $1
	`, userID).Scan(&config.ID, &config.UserID, &method, &config.Secret,
		&config.Enabled, &config.Confirmed, &config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TwoFactorConfig{}, ErrConfigNotFound
		}
		return TwoFactorConfig{}, fmt.Errorf("failed to query two-factor config: %w", err)
	}
	config.Method = Method(method)
	return config, nil
}

func (r *PostgresConfigRepository) Upsert(ctx context.Context, config TwoFactorConfig) error {
	if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO two_factor_config (id, user_id, method, secret, enabled, confirmed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id)
		DO UPDATE SET method = EXCLUDED.method,
			secret = EXCLUDED.secret,
			enabled = EXCLUDED.enabled,
			confirmed = EXCLUDED.confirmed,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`, config.ID, config.UserID, string(config.Method), config.Secret,
		config.Enabled, config.Confirmed, config.CreatedAt, config.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert two-factor config: %w", err)
	}
	return nil
}

func (r *PostgresConfigRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM two_factor_config WHERE user_id = $1
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete two-factor config: %w", err)
	}
	return nil
}

// PostgresDirectiveRepository implements DirectiveRepository using PostgreSQL
type PostgresDirectiveRepository struct {
	db DBTX
}

// NewPostgresDirectiveRepository creates a new PostgreSQL directive repository
func NewPostgresDirectiveRepository(db DBTX) *PostgresDirectiveRepository {
	return &PostgresDirectiveRepository{db: db}
}

func (r *PostgresDirectiveRepository) Create(ctx context.Context, directive Directive) error {
	if directive.ID == uuid.Nil {
		directive.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO enrollment_directive (id, token, email, forced_username, force_2fa, created_at, expires_at, used_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, directive.ID, directive.Token, directive.Email, directive.ForcedUsername,
		string(directive.Force2FA), directive.CreatedAt, directive.ExpiresAt,
		directive.UsedAt, directive.RevokedAt)
	if err != nil {
		return fmt.Errorf("failed to insert directive: %w", err)
	}
	return nil
}

func (r *PostgresDirectiveRepository) GetByToken(ctx context.Context, token string) (Directive, error) {
	directive, err := r.scanDirective(r.db.QueryRow(ctx, `
		SELECT id, token, email, forced_username, force_2fa, created_at, expires_at, used_at, revoked_at
		FROM enrollment_directive
		WHERE token = $1
	`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Directive{}, ErrDirectiveNotFound
		}
		return Directive{}, fmt.Errorf("failed to query directive: %w", err)
	}
	return directive, nil
}

// MarkUsed uses a conditional update so a directive is consumable once
func (r *PostgresDirectiveRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE enrollment_directive
		SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark directive used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresDirectiveRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE enrollment_directive
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("failed to revoke directive: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// already revoked or missing; treat the former as success
		var exists bool
		if err := r.db.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM enrollment_directive WHERE id = $1)
		`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check directive: %w", err)
		}
		if !exists {
			return ErrDirectiveNotFound
		}
	}
	return nil
}

func (r *PostgresDirectiveRepository) ListByEmail(ctx context.Context, email string) ([]Directive, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, token, email, forced_username, force_2fa, created_at, expires_at, used_at, revoked_at
		FROM enrollment_directive
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at
	`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to query directives: %w", err)
	}
	defer rows.Close()

	var directives []Directive
	for rows.Next() {
		directive, err := r.scanDirective(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan directive: %w", err)
		}
		directives = append(directives, directive)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read directives: %w", err)
	}
	return directives, nil
}

// PostgresUserDirectory implements UserDirectory over the app_user table
type PostgresUserDirectory struct {
	db DBTX
}

// NewPostgresUserDirectory creates a new PostgreSQL user directory
func NewPostgresUserDirectory(db DBTX) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: db}
}

func (d *PostgresUserDirectory) GetUser(ctx context.Context, userID uuid.UUID) (DirectoryUser, error) {
	var user DirectoryUser
	err := d.db.QueryRow(ctx, `
		SELECT id, username, email, require_2fa
		FROM app_user
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &user.RequireTwoFactor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DirectoryUser{}, ErrUserNotFound
		}
		return DirectoryUser{}, fmt.Errorf("failed to query user: %w", err)
	}
	return user, nil
}

func (r *PostgresDirectiveRepository) scanDirective(row pgx.Row) (Directive, error) {
	var directive Directive
	var force2fa string
	err := row.Scan(&directive.ID, &directive.Token, &directive.Email,
		&directive.ForcedUsername, &force2fa, &directive.CreatedAt,
		&directive.ExpiresAt, &directive.UsedAt, &directive.RevokedAt)
	if err != nil {
		return Directive{}, err
	}
	directive.Force2FA = Method(force2fa)
	return directive, nil
}
