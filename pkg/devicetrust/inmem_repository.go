package devicetrust

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

type deviceKey struct {
	userID      uuid.UUID
	fingerprint string
}

// InMemoryRepository implements Repository with an in-memory map.
// Suitable for tests and single-process deployments.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[deviceKey]TrustedDevice
}

// NewInMemoryRepository creates a new in-memory trusted device repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		devices: make(map[deviceKey]TrustedDevice),
	}
}

func (r *InMemoryRepository) Upsert(ctx context.Context, device TrustedDevice) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := deviceKey{userID: device.UserID, fingerprint: device.Fingerprint}
	if existing, ok := r.devices[key]; ok {
		device.ID = existing.ID
		device.CreatedAt = existing.CreatedAt
	} else if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	r.devices[key] = device
	return nil
}

func (r *InMemoryRepository) Find(ctx context.Context, userID uuid.UUID, fingerprint string) (TrustedDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	device, ok := r.devices[deviceKey{userID: userID, fingerprint: fingerprint}]
	if !ok {
		return TrustedDevice{}, ErrNotFound
	}
	return device, nil
}

func (r *InMemoryRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]TrustedDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []TrustedDevice
	for key, device := range r.devices {
		if key.userID == userID {
			devices = append(devices, device)
		}
	}
	slices.SortFunc(devices, func(a, b TrustedDevice) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return devices, nil
}

func (r *InMemoryRepository) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.devices {
		if key.userID == userID {
			delete(r.devices, key)
		}
	}
	return nil
}
