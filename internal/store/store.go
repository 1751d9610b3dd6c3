package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Collection keys.
const (
	CollectionDevices   = "ems_devices"
	CollectionRegisters = "ems_registers"
)

// AnyVersion disables the version check on Backend.Put.
const AnyVersion int64 = -1

// Backend is a key-value substrate that stores one byte payload per key
// together with a monotonic version.
type Backend interface {
	// Get returns the payload and version stored under key.
	// A missing key yields nil data, version 0 and no error.
	Get(ctx context.Context, key string) (data []byte, version int64, err error)

	// Put overwrites the payload under key and returns the new version.
	// Unless expected is AnyVersion, the stored version must equal expected
	// or Put fails with ErrVersionConflict.
	Put(ctx context.Context, key string, data []byte, expected int64) (version int64, err error)

	Close() error
}

// Logger defines the logging interface used by the Store.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options controls the read and write policies of a Store.
type Options struct {
	// Strict makes undecodable collections an error instead of an empty result.
	Strict bool

	// ConflictDetection rejects writes based on a stale Snapshot.
	ConflictDetection bool
}

// Snapshot identifies the collection version a read observed.
type Snapshot struct {
	Key     string
	Version int64
}

// Store encodes collections as JSON arrays on top of a Backend.
type Store struct {
	backend Backend
	opts    Options
	logger  Logger
}

// New creates a Store over backend.
func New(backend Backend, opts Options) *Store {
	return &Store{
		backend: backend,
		opts:    opts,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// ReadCollection decodes the collection stored under key.
//
// An absent key is an empty collection. Content that does not decode is
// logged and treated as empty, or returned as a *CorruptionError when the
// store is strict. The returned slice is never nil.
func ReadCollection[T any](ctx context.Context, s *Store, key string) ([]T, Snapshot, error) {
	data, version, err := s.backend.Get(ctx, key)
	snap := Snapshot{Key: key, Version: version}
	if err != nil {
		return nil, snap, fmt.Errorf("reading collection %s: %w", key, err)
	}

	records := []T{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, snap, nil
	}

	if err := json.Unmarshal(data, &records); err != nil {
		if s.opts.Strict {
			return nil, snap, &CorruptionError{Key: key, Err: err}
		}
		s.logger.Warn("discarding unreadable collection",
			"key", key,
			"version", version,
			"error", err,
		)
		return []T{}, snap, nil
	}

	// "null" decodes to a nil slice.
	if records == nil {
		records = []T{}
	}
	return records, snap, nil
}

// WriteCollection serializes records and overwrites the collection under key.
// base is the snapshot the records were derived from; with conflict
// detection enabled a stale base fails with ErrVersionConflict.
func WriteCollection[T any](ctx context.Context, s *Store, key string, records []T, base Snapshot) (Snapshot, error) {
	if records == nil {
		records = []T{}
	}

	data, err := json.Marshal(records)
	if err != nil {
		return base, fmt.Errorf("encoding collection %s: %w", key, err)
	}

	expected := AnyVersion
	if s.opts.ConflictDetection {
		expected = base.Version
	}

	version, err := s.backend.Put(ctx, key, data, expected)
	if err != nil {
		return base, fmt.Errorf("writing collection %s: %w", key, err)
	}

	s.logger.Debug("collection written", "key", key, "records", len(records), "version", version)
	return Snapshot{Key: key, Version: version}, nil
}
