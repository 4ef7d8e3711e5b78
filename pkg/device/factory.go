package device

import (
	"fmt"
)

// RepositoryConfig contains configuration for creating a registry repository
type RepositoryConfig struct {
	// DB is required for PostgreSQL repositories
	DB DBTX
	// DataDir is required for file-based repositories
	DataDir string
}

// NewRegistryRepository creates a registry repository based on the persistence type
func NewRegistryRepository(persistenceType string, config RepositoryConfig) (RegistryRepository, error) {
	switch persistenceType {
	case "postgres", "postgresql":
		if config.DB == nil {
			return nil, fmt.Errorf("db required for postgres repository")
		}
		return NewPostgresRegistryRepository(config.DB), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("dataDir required for file repository")
		}
		return NewFileRegistryRepository(config.DataDir)
	case "inmem", "memory", "":
		return NewInMemRegistryRepository(), nil
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s (supported: postgres, file, inmem)", persistenceType)
	}
}
