package enrollment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// InMemoryConfigRepository implements ConfigRepository with an in-memory map.
// Suitable for tests and single-process deployments.
type InMemoryConfigRepository struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]TwoFactorConfig
}

// NewInMemoryConfigRepository creates a new in-memory config repository
func NewInMemoryConfigRepository() *InMemoryConfigRepository {
	return &InMemoryConfigRepository{
		configs: make(map[uuid.UUID]TwoFactorConfig),
	}
}

func (r *InMemoryConfigRepository) Get(ctx context.Context, userID uuid.UUID) (TwoFactorConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[userID]
	if !ok {
		return TwoFactorConfig{}, ErrConfigNotFound
	}
	return config, nil
}

func (r *InMemoryConfigRepository) Upsert(ctx context.Context, config TwoFactorConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.configs[config.UserID]; ok {
		config.ID = existing.ID
	} else if config.ID == uuid.Nil {
		config.ID = uuid.New()
	}
	r.configs[config.UserID] = config
	return nil
}

func (r *InMemoryConfigRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.configs, userID)
	return nil
}

// InMemoryDirectiveRepository implements DirectiveRepository with an
// in-memory map keyed by token.
type InMemoryDirectiveRepository struct {
	mu         sync.Mutex
	directives map[string]*Directive
}

// NewInMemoryDirectiveRepository creates a new in-memory directive repository
func NewInMemoryDirectiveRepository() *InMemoryDirectiveRepository {
	return &InMemoryDirectiveRepository{
		directives: make(map[string]*Directive),
	}
}

func (r *InMemoryDirectiveRepository) Create(ctx context.Context, directive Directive) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if directive.ID == uuid.Nil {
		directive.ID = uuid.New()
	}
	stored := directive
	r.directives[directive.Token] = &stored
	return nil
}

func (r *InMemoryDirectiveRepository) GetByToken(ctx context.Context, token string) (Directive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	directive, ok := r.directives[token]
	if !ok {
		return Directive{}, ErrDirectiveNotFound
	}
	return *directive, nil
}

func (r *InMemoryDirectiveRepository) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, directive := range r.directives {
		if directive.ID == id {
			if directive.UsedAt != nil {
				return false, nil
			}
			usedAt := at
			directive.UsedAt = &usedAt
			return true, nil
		}
	}
	return false, nil
}

func (r *InMemoryDirectiveRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, directive := range r.directives {
		if directive.ID == id {
			if directive.RevokedAt == nil {
				revokedAt := at
				directive.RevokedAt = &revokedAt
			}
			return nil
		}
	}
	return ErrDirectiveNotFound
}

func (r *InMemoryDirectiveRepository) ListByEmail(ctx context.Context, email string) ([]Directive, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Directive
	for _, directive := range r.directives {
		if strings.EqualFold(directive.Email, email) {
			result = append(result, *directive)
		}
	}
	slices.SortFunc(result, func(a, b Directive) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

// StaticUserDirectory is an in-memory UserDirectory for tests and the
// in-memory deployment mode.
type StaticUserDirectory struct {
	mu    sync.RWMutex
	users map[uuid.UUID]DirectoryUser
}

// NewStaticUserDirectory creates a directory holding the given users
func NewStaticUserDirectory(users ...DirectoryUser) *StaticUserDirectory {
	directory := &StaticUserDirectory{
		users: make(map[uuid.UUID]DirectoryUser),
	}
	for _, user := range users {
		directory.users[user.ID] = user
	}
	return directory
}

// AddUser registers or replaces a user
func (d *StaticUserDirectory) AddUser(user DirectoryUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

func (d *StaticUserDirectory) GetUser(ctx context.Context, userID uuid.UUID) (DirectoryUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[userID]
	if !ok {
		return DirectoryUser{}, ErrUserNotFound
	}
	return user, nil
}
