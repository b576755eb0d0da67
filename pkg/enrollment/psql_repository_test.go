package enrollment

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDatabase(t *testing.T) (*pgxpool.Pool, func()) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithInitScripts(filepath.Join("../../migrations", "mfa_db.sql")),
		postgres.WithDatabase("mfa_db"),
		postgres.WithUsername("mfa"),
		postgres.WithPassword("pwd"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

func TestPostgresConfigRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPostgresConfigRepository(pool)
	userID := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := repo.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrConfigNotFound)

	config := TwoFactorConfig{
		UserID:    userID,
		Method:    MethodTOTP,
		Secret:    "JBSWY3DPEHPK3PXP",
		Enabled:   true,
		Confirmed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Upsert(ctx, config))

	loaded, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, MethodTOTP, loaded.Method)
	assert.Equal(t, config.Secret, loaded.Secret)
	assert.Equal(t, StatePendingSetup, loaded.State())

	// upsert replaces the single row per user
	loaded.Confirmed = true
	require.NoError(t, repo.Upsert(ctx, loaded))

	confirmed, err := repo.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, StateEnrolled, confirmed.State())

	require.NoError(t, repo.Delete(ctx, userID))
	_, err = repo.Get(ctx, userID)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestPostgresDirectiveRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewPostgresDirectiveRepository(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	directive := Directive{
		ID:        uuid.New(),
		Token:     "token-one",
		Email:     "alice@example.com",
		Force2FA:  MethodTOTP,
		CreatedAt: now,
		ExpiresAt: now.Add(72 * time.Hour),
	}
	require.NoError(t, repo.Create(ctx, directive))

	loaded, err := repo.GetByToken(ctx, "token-one")
	require.NoError(t, err)
	assert.Equal(t, directive.Email, loaded.Email)
	assert.Nil(t, loaded.UsedAt)

	// only the first consumption wins
	used, err := repo.MarkUsed(ctx, directive.ID, now)
	require.NoError(t, err)
	assert.True(t, used)

	used, err = repo.MarkUsed(ctx, directive.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, used)

	loaded, err = repo.GetByToken(ctx, "token-one")
	require.NoError(t, err)
	require.NotNil(t, loaded.UsedAt)
	assert.Equal(t, now, loaded.UsedAt.UTC())

	require.NoError(t, repo.Revoke(ctx, directive.ID, now))
	loaded, err = repo.GetByToken(ctx, "token-one")
	require.NoError(t, err)
	assert.NotNil(t, loaded.RevokedAt)

	directives, err := repo.ListByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Len(t, directives, 1)

	err = repo.Revoke(ctx, uuid.New(), now)
	assert.ErrorIs(t, err, ErrDirectiveNotFound)
}

func TestPostgresUserDirectory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pool, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	directory := NewPostgresUserDirectory(pool)
	userID := uuid.New()

	_, err := directory.GetUser(ctx, userID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = pool.Exec(ctx, `
		INSERT INTO app_user (id, username, email, require_2fa)
		VALUES ($1, 'alice', 'alice@example.com', TRUE)
	`, userID)
	require.NoError(t, err)

	user, err := directory.GetUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.True(t, user.RequireTwoFactor)
}
