package repository

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// Config holds the parameters needed to construct a Repository backend.
type Config struct {
	Backend    string // "memory", "sqlite", "postgres"
	DataDir    string // base data directory, used for the default SQLite path
	SQLitePath string // explicit SQLite path, overrides DataDir default
	Postgres   *PostgresConfig
}

// New constructs the Repository implementation named by cfg.Backend.
//
// Backends:
//   - "memory"   — in-process, non-durable (dev/test only)
//   - "sqlite"   — single-file durable store (single-instance production)
//   - "postgres" — PostgreSQL durable store (multi-instance HA production)
func New(cfg Config, logger *slog.Logger) (Repository, error) {
	switch cfg.Backend {
	case "", "memory":
		logger.Info("repository: using in-memory backend (non-durable)")
		return NewMemoryRepository(), nil

	case "sqlite":
		dbPath := cfg.SQLitePath
		if dbPath == "" {
			if cfg.DataDir == "" {
				return nil, fmt.Errorf("sqlite repository requires sqlite_path or data_dir")
			}
			dbPath = filepath.Join(cfg.DataDir, "docwallet.db")
		}
		logger.Info("repository: using SQLite backend", "path", dbPath)
		return NewSQLiteRepository(dbPath)

	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres repository requires postgres config")
		}
		logger.Info("repository: using PostgreSQL backend", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return NewPostgresRepository(*cfg.Postgres)

	default:
		return nil, fmt.Errorf("unknown repository backend: %q (supported: memory, sqlite, postgres)", cfg.Backend)
	}
}
