package duo

import (
	"sync"
	"time"
)

// State is a pending redirect's anti-forgery token. Single use: validation
// deletes it whether or not the callback succeeds.
type State struct {
	Value     string
	Username  string
	ExpiresAt time.Time
}

// StateRepository defines the interface for pending state storage
type StateRepository interface {
	StoreState(state State) error
	GetState(value string) (State, bool)
	DeleteState(value string) error
}

// InMemoryStateRepository keeps pending states in a map. States live for
// minutes and never need to survive a restart, so no durable variant exists.
type InMemoryStateRepository struct {
	mu     sync.Mutex
	states map[string]State
}

// NewInMemoryStateRepository creates a new in-memory state repository
func NewInMemoryStateRepository() *InMemoryStateRepository {
	return &InMemoryStateRepository{
		states: make(map[string]State),
	}
}

func (r *InMemoryStateRepository) StoreState(state State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// drop anything already expired while we hold the lock
	now := time.Now()
	for value, pending := range r.states {
		if now.After(pending.ExpiresAt) {
			delete(r.states, value)
		}
	}

	r.states[state.Value] = state
	return nil
}

func (r *InMemoryStateRepository) GetState(value string) (State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.states[value]
	return state, ok
}

func (r *InMemoryStateRepository) DeleteState(value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.states, value)
	return nil
}
