package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/homecam/internal/storage"
)

// KVRepo implements storage.Store on top of the kv_store table.
type KVRepo struct {
	db *DB
}

func NewKVRepo(db *DB) *KVRepo {
	return &KVRepo{db: db}
}

var _ storage.Store = (*KVRepo)(nil)

func (r *KVRepo) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM kv_store WHERE key = ?`
	if r.db.dbType == "postgres" {
		query = `SELECT value FROM kv_store WHERE key = $1`
	}

	var value []byte
	err := r.db.conn.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}

func (r *KVRepo) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`
	if r.db.dbType == "postgres" {
		query = `
		INSERT INTO kv_store (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`
	}

	if value == nil {
		value = []byte{}
	}
	if _, err := r.db.conn.ExecContext(ctx, query, key, value, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

func (r *KVRepo) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE key = ?`
	if r.db.dbType == "postgres" {
		query = `DELETE FROM kv_store WHERE key = $1`
	}
	if _, err := r.db.conn.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (r *KVRepo) Keys(ctx context.Context) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return keys, nil
}
