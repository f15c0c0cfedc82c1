package core

import (
	"fmt"
	"os"

	"floracore/internal/infra/persistence/memory"
	"floracore/internal/infra/persistence/postgres"
	"floracore/internal/infra/persistence/sqlite"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	FLORACORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	FLORACORE_SQLITE_PATH: path to sqlite file (default ./floracore.db)
//	FLORACORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("FLORACORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("FLORACORE_SQLITE_PATH")
		ss, err := sqlite.NewStore(path, engine)
		if err != nil {
			return nil, err
		}
		return ss, nil
	case StoragePostgres:
		dsn := os.Getenv("FLORACORE_POSTGRES_DSN")
		ps, err := postgres.NewStore(dsn, engine)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
