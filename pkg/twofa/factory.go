package twofa

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig selects the persistence backend for two-factor profiles.
type RepositoryConfig struct {
	// Type is "postgres" or "file"
	Type string

	// Pool is required when Type is "postgres"
	Pool *pgxpool.Pool

	// DataDir is required when Type is "file"
	DataDir string
}

// NewTwoFactorRepository creates a repository based on the persistence type.
func NewTwoFactorRepository(config RepositoryConfig) (TwoFactorRepository, error) {
	switch config.Type {
	case "postgres":
		if config.Pool == nil {
			return nil, fmt.Errorf("postgres persistence requires a connection pool")
		}
		return NewPostgresTwoFactorRepository(config.Pool), nil
	case "file":
		if config.DataDir == "" {
			return nil, fmt.Errorf("file persistence requires a data directory")
		}
		return NewFileTwoFactorRepository(config.DataDir)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", config.Type)
	}
}
