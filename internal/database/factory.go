package database

import (
	"fmt"

	"songtree/internal/config"
)

// NewStoreFromConfig creates a SQLiteStore based on the database config
// type.
func NewStoreFromConfig(cfg config.DatabaseConfig) (*SQLiteStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		return NewSQLiteStore(cfg.Path, nil)
	case "memory":
		return NewSQLiteStore(":memory:", nil)
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
