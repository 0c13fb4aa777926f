// Package store persists transcripts and chat turns in an embedded Badger
// database. It stands in for the platform's document store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/timshannon/badgerhold/v4"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("not found")

// DB manages the Badger database connection.
type DB struct {
	store  *badgerhold.Store
	logger *slog.Logger
}

// Open opens (creating if needed) the database directory at path.
func Open(path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // badger's own logger is too chatty

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("Badger database opened", "path", path)
	return &DB{store: store, logger: logger}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Health reports whether the database is open.
func (d *DB) Health(ctx context.Context) error {
	if d.store == nil || d.store.Badger().IsClosed() {
		return errors.New("database closed")
	}
	return nil
}
