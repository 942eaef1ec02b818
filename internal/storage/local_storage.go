package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// LocalStorage keeps one file per key under basePath.
type LocalStorage struct {
	basePath string
	mu       sync.RWMutex
}

func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

func (ls *LocalStorage) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("invalid key")
	}
	cleanPath := filepath.Clean(key)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) || strings.ContainsRune(cleanPath, os.PathSeparator) {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(ls.basePath, cleanPath+".json"), nil
}

func (ls *LocalStorage) Get(_ context.Context, key string) ([]byte, error) {
	fullPath, err := ls.path(key)
	if err != nil {
		return nil, err
	}

	ls.mu.RLock()
	defer ls.mu.RUnlock()

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes through a temp file and rename so readers never see a partial value.
func (ls *LocalStorage) Put(_ context.Context, key string, value []byte) error {
	fullPath, err := ls.path(key)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	tmp, err := os.CreateTemp(ls.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (ls *LocalStorage) Delete(_ context.Context, key string) error {
	fullPath, err := ls.path(key)
	if err != nil {
		return err
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
