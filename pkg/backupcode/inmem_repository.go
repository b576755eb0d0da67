package backupcode

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// InMemoryRepository implements Repository with an in-memory map.
// Suitable for tests and single-process deployments.
type InMemoryRepository struct {
	mu    sync.RWMutex
	codes map[uuid.UUID][]*BackupCode
}

// NewInMemoryRepository creates a new in-memory backup code repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		codes: make(map[uuid.UUID][]*BackupCode),
	}
}

func (r *InMemoryRepository) Replace(ctx context.Context, userID uuid.UUID, hashes []string, createdAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make([]*BackupCode, 0, len(hashes))
	for _, hash := range hashes {
		set = append(set, &BackupCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: createdAt,
		})
	}
	r.codes[userID] = set
	return nil
}

func (r *InMemoryRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]BackupCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.codes[userID]
	result := make([]BackupCode, 0, len(set))
	for _, code := range set {
		result = append(result, *code)
	}
	slices.SortFunc(result, func(a, b BackupCode) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) MarkConsumed(ctx context.Context, codeID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, set := range r.codes {
		for _, code := range set {
			if code.ID == codeID {
				if code.ConsumedAt != nil {
					return false, nil
				}
				consumedAt := at
				code.ConsumedAt = &consumedAt
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *InMemoryRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, code := range r.codes[userID] {
		if code.ConsumedAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.codes, userID)
	return nil
}
