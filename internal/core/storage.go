package core

import (
	"context"
	"fmt"
	"io"

	"stepseq/internal/config"
	"stepseq/internal/infra/persistence/memory"
	"stepseq/internal/infra/persistence/postgres"
	"stepseq/internal/infra/persistence/sqlite"
	"stepseq/pkg/domain"
)

// PersistentStore is a domain.Store owning resources released by Close.
type PersistentStore interface {
	domain.Store
	io.Closer
}

type memoryStore struct{ *memory.Store }

func (memoryStore) Close() error { return nil }

// OpenPersistentStore selects a backend from the storage configuration.
func OpenPersistentStore(ctx context.Context, cfg config.Storage) (PersistentStore, error) {
	switch cfg.Driver {
	case config.StorageMemory:
		return memoryStore{memory.NewStore()}, nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
