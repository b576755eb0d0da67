package attempt

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func recordFailures(t *testing.T, ledger *Ledger, userID uuid.UUID, n int, start time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := ledger.Record(context.Background(), RecordParams{
			UserID:    userID,
			Method:    "totp",
			Success:   false,
			IPAddress: "203.0.113.7",
			At:        start.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
}

func TestLockoutAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(5))
	userID := uuid.New()

	recordFailures(t, ledger, userID, 4, t0)

	decision, err := policy.Evaluate(ctx, userID, t0.Add(10*time.Second))
	require.NoError(t, err)
	assert.False(t, decision.Locked)
	assert.Equal(t, 4, decision.Failures)

	recordFailures(t, ledger, userID, 1, t0.Add(10*time.Second))

	decision, err = policy.Evaluate(ctx, userID, t0.Add(11*time.Second))
	require.NoError(t, err)
	assert.True(t, decision.Locked)
	assert.Equal(t, 5, decision.Failures)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
}

func TestLockoutExpiresNaturally(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(5),
		WithWindow(15*time.Minute), WithLockoutDuration(15*time.Minute))
	userID := uuid.New()

	recordFailures(t, ledger, userID, 5, t0)
	lastFailure := t0.Add(4 * time.Second)

	decision, err := policy.Evaluate(ctx, userID, lastFailure.Add(14*time.Minute))
	require.NoError(t, err)
	assert.True(t, decision.Locked)

	// both the lockout duration and the window have passed
	decision, err = policy.Evaluate(ctx, userID, lastFailure.Add(16*time.Minute))
	require.NoError(t, err)
	assert.False(t, decision.Locked)
	assert.Zero(t, decision.RetryAfter)
}

func TestRetryAfterCountsDownFromLastFailure(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(3),
		WithLockoutDuration(10*time.Minute))
	userID := uuid.New()

	recordFailures(t, ledger, userID, 3, t0)
	lastFailure := t0.Add(2 * time.Second)

	decision, err := policy.Evaluate(ctx, userID, lastFailure.Add(4*time.Minute))
	require.NoError(t, err)
	require.True(t, decision.Locked)
	assert.Equal(t, 6*time.Minute, decision.RetryAfter)
}

func TestClearLockoutRestoresAccessImmediately(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(5))
	userID := uuid.New()

	recordFailures(t, ledger, userID, 5, t0)

	decision, err := policy.Evaluate(ctx, userID, t0.Add(5*time.Second))
	require.NoError(t, err)
	require.True(t, decision.Locked)

	require.NoError(t, policy.ClearLockout(ctx, userID))

	decision, err = policy.Evaluate(ctx, userID, t0.Add(6*time.Second))
	require.NoError(t, err)
	assert.False(t, decision.Locked)
	assert.Zero(t, decision.Failures)
}

func TestClearLockoutKeepsSuccessHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo)
	userID := uuid.New()

	require.NoError(t, ledger.Record(ctx, RecordParams{
		UserID: userID, Method: "totp", Success: true, At: t0,
	}))
	recordFailures(t, ledger, userID, 3, t0.Add(time.Minute))

	require.NoError(t, policy.ClearLockout(ctx, userID))

	count, err := ledger.CountSince(ctx, userID, t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestFailuresOutsideWindowIgnored(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(5), WithWindow(15*time.Minute))
	userID := uuid.New()

	// three stale failures and two recent ones never add up to a lockout
	recordFailures(t, ledger, userID, 3, t0.Add(-time.Hour))
	recordFailures(t, ledger, userID, 2, t0)

	decision, err := policy.Evaluate(ctx, userID, t0.Add(5*time.Second))
	require.NoError(t, err)
	assert.False(t, decision.Locked)
	assert.Equal(t, 2, decision.Failures)
}

func TestWindowAndDurationIndependent(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(3),
		WithWindow(30*time.Minute), WithLockoutDuration(5*time.Minute))
	userID := uuid.New()

	recordFailures(t, ledger, userID, 3, t0)
	lastFailure := t0.Add(2 * time.Second)

	// short lockout expires while the failures are still inside the window
	decision, err := policy.Evaluate(ctx, userID, lastFailure.Add(6*time.Minute))
	require.NoError(t, err)
	assert.False(t, decision.Locked)
	assert.Equal(t, 3, decision.Failures)
}

func TestLockoutOutlastsDetectionWindow(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()
	ledger := NewLedger(repo)
	policy := NewLockoutPolicy(repo, WithMaxAttempts(5),
		WithWindow(15*time.Minute), WithLockoutDuration(time.Hour))
	userID := uuid.New()

	recordFailures(t, ledger, userID, 5, t0)
	lastFailure := t0.Add(4 * time.Second)

	// the failures have aged out of the 15m window, but the lock holds for
	// the full hour from the last failure
	decision, err := policy.Evaluate(ctx, userID, lastFailure.Add(20*time.Minute))
	require.NoError(t, err)
	assert.True(t, decision.Locked)
	assert.Equal(t, 5, decision.Failures)
	assert.Equal(t, 40*time.Minute, decision.RetryAfter)

	decision, err = policy.Evaluate(ctx, userID, lastFailure.Add(61*time.Minute))
	require.NoError(t, err)
	assert.False(t, decision.Locked)
	assert.Zero(t, decision.RetryAfter)
}
