package home

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kdimtricp/homecam/internal/config"
	"github.com/kdimtricp/homecam/internal/database"
	"github.com/kdimtricp/homecam/internal/storage"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenStore builds the key-value backend selected by cfg. The returned
// closer releases any database connection.
func OpenStore(cfg config.Storage) (storage.Store, io.Closer, error) {
	switch cfg.Type {
	case "memory":
		return storage.NewMemoryStore(), nopCloser{}, nil
	case "file":
		ls, err := storage.NewLocalStorage(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return ls, nopCloser{}, nil
	case "sqlite", "postgres":
		if cfg.Type == "sqlite" && cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := database.NewDB(database.Config{
			Type:       cfg.Type,
			SQLitePath: cfg.Path,
			DSN:        cfg.DSN,
		})
		if err != nil {
			return nil, nil, err
		}
		return database.NewKVRepo(db), db, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
}
