package enrollment

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating enrollment repositories
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories
	DB DBTX
}

// NewConfigRepository creates a config repository for the persistence type
func NewConfigRepository(persistenceType string, config RepositoryConfig) (ConfigRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresConfigRepository(config.DB), nil
	case "memory":
		return NewInMemoryConfigRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, memory)", persistenceType)
	}
}

// NewUserDirectory creates a user directory for the persistence type
func NewUserDirectory(persistenceType string, config RepositoryConfig) (UserDirectory, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres directory")
		}
		return NewPostgresUserDirectory(config.DB), nil
	case "memory":
		return NewStaticUserDirectory(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, memory)", persistenceType)
	}
}

// NewDirectiveRepository creates a directive repository for the persistence type
func NewDirectiveRepository(persistenceType string, config RepositoryConfig) (DirectiveRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresDirectiveRepository(config.DB), nil
	case "memory":
		return NewInMemoryDirectiveRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, memory)", persistenceType)
	}
}
