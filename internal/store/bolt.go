package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCollections = []byte("collections")
	bucketVersions    = []byte("versions")
)

// BoltBackend stores collections in a bbolt file. Payloads live in the
// collections bucket and their versions, as big-endian uint64, in the
// versions bucket under the same key.
type BoltBackend struct {
	db *bolt.DB
}

// OpenBolt opens or creates a bbolt database at path.
func OpenBolt(path string, timeout time.Duration) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketVersions} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Get(_ context.Context, key string) ([]byte, int64, error) {
	var data []byte
	var version int64
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketCollections).Get([]byte(key)); v != nil {
			// Values are only valid for the life of the transaction.
			data = append([]byte(nil), v...)
		}
		version = decodeVersion(tx.Bucket(bucketVersions).Get([]byte(key)))
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return data, version, nil
}

func (b *BoltBackend) Put(_ context.Context, key string, data []byte, expected int64) (int64, error) {
	var next int64
	err := b.db.Update(func(tx *bolt.Tx) error {
		versions := tx.Bucket(bucketVersions)
		current := decodeVersion(versions.Get([]byte(key)))
		if expected != AnyVersion && expected != current {
			return fmt.Errorf("%w: %s at version %d, write based on %d", ErrVersionConflict, key, current, expected)
		}

		next = current + 1
		if err := tx.Bucket(bucketCollections).Put([]byte(key), data); err != nil {
			return err
		}
		return versions.Put([]byte(key), encodeVersion(next))
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func encodeVersion(v int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v)) //nolint:gosec // versions are never negative
	return buf
}

func decodeVersion(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b)) //nolint:gosec // written by encodeVersion
}
