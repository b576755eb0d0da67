package attempt

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// InMemoryRepository implements Repository with an in-memory slice per user.
// Suitable for tests and single-process deployments.
type InMemoryRepository struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID][]Attempt
}

// NewInMemoryRepository creates a new in-memory attempt repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		attempts: make(map[uuid.UUID][]Attempt),
	}
}

func (r *InMemoryRepository) Append(ctx context.Context, attempt Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	r.attempts[attempt.UserID] = append(r.attempts[attempt.UserID], attempt)
	return nil
}

func (r *InMemoryRepository) FindFailuresSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var failures []Attempt
	for _, attempt := range r.attempts[userID] {
		if !attempt.Success && !attempt.AttemptedAt.Before(since) {
			failures = append(failures, attempt)
		}
	}
	slices.SortFunc(failures, func(a, b Attempt) int {
		return a.AttemptedAt.Compare(b.AttemptedAt)
	})
	return failures, nil
}

func (r *InMemoryRepository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, attempt := range r.attempts[userID] {
		if !attempt.AttemptedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) DeleteFailures(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.attempts[userID][:0:0]
	for _, attempt := range r.attempts[userID] {
		if attempt.Success {
			kept = append(kept, attempt)
		}
	}
	r.attempts[userID] = kept
	return nil
}
