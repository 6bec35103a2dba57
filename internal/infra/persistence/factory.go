// Package persistence selects a document store driver from environment
// configuration.
package persistence

import (
	"fmt"
	"os"

	"tokencore/internal/infra/persistence/memory"
	"tokencore/internal/infra/persistence/postgres"
	"tokencore/internal/infra/persistence/sqlite"
	"tokencore/pkg/domain"
)

const (
	// EnvStorageDriver selects the document store backend.
	EnvStorageDriver = "TOKENCORE_STORAGE_DRIVER"
	// EnvSQLitePath points the sqlite driver at a database file.
	EnvSQLitePath = "TOKENCORE_SQLITE_PATH"
	// EnvPostgresDSN provides the postgres connection string.
	EnvPostgresDSN = "TOKENCORE_POSTGRES_DSN"
)

// OpenDocumentStore returns a store for the configured driver. An empty or
// unset driver defaults to the in-memory store.
func OpenDocumentStore() (domain.DocumentStore, error) {
	driver := os.Getenv(EnvStorageDriver)
	switch driver {
	case "", "memory":
		return memory.NewStore(), nil
	case "sqlite":
		return sqlite.NewStore(os.Getenv(EnvSQLitePath))
	case "postgres":
		return postgres.NewStore(os.Getenv(EnvPostgresDSN))
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}
}
