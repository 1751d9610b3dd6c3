package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/ems-console/internal/infrastructure/database"
)

// SQLiteBackend stores collections as rows of the collections table.
// The table is created by the embedded migrations; the caller owns the
// database handle and closes it.
type SQLiteBackend struct {
	db *database.DB
}

// NewSQLiteBackend creates a backend over a migrated database.
func NewSQLiteBackend(db *database.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, int64, error) {
	var data string
	var version int64
	err := b.db.QueryRowContext(ctx,
		"SELECT data, version FROM collections WHERE key = ?", key,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("querying collection: %w", err)
	}
	return []byte(data), version, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, key string, data []byte, expected int64) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	var current int64
	err = tx.QueryRowContext(ctx, "SELECT version FROM collections WHERE key = ?", key).Scan(&current)
	exists := true
	if errors.Is(err, sql.ErrNoRows) {
		exists = false
		err = nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading collection version: %w", err)
	}

	if expected != AnyVersion && expected != current {
		return 0, fmt.Errorf("%w: %s at version %d, write based on %d", ErrVersionConflict, key, current, expected)
	}

	next := current + 1
	now := time.Now().UTC().Format(time.RFC3339)
	if exists {
		_, err = tx.ExecContext(ctx,
			"UPDATE collections SET data = ?, version = ?, updated_at = ? WHERE key = ?",
			string(data), next, now, key,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO collections (key, data, version, updated_at) VALUES (?, ?, ?, ?)",
			key, string(data), next, now,
		)
	}
	if err != nil {
		return 0, fmt.Errorf("writing collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing collection: %w", err)
	}
	return next, nil
}

// Close is a no-op; the database handle belongs to the caller.
func (b *SQLiteBackend) Close() error {
	return nil
}
