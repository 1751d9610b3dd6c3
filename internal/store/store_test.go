package store

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/nerrad567/ems-console/internal/infrastructure/database"
	"github.com/nerrad567/ems-console/migrations"
)

type record struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Scale float64 `json:"scale"`
}

// backends returns one fresh instance of every Backend implementation.
func backends(t *testing.T) map[string]Backend {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	bb, err := OpenBolt(filepath.Join(t.TempDir(), "ems.bolt"), time.Second)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	t.Cleanup(func() { bb.Close() }) //nolint:errcheck // Test cleanup

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": NewSQLiteBackend(db),
		"bolt":   bb,
	}
}

func TestReadCollection_AbsentKey(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(b, Options{})
			got, snap, err := ReadCollection[record](context.Background(), s, CollectionDevices)
			if err != nil {
				t.Fatalf("ReadCollection() error = %v", err)
			}
			if got == nil || len(got) != 0 {
				t.Errorf("ReadCollection() = %#v, want empty non-nil slice", got)
			}
			if snap.Version != 0 {
				t.Errorf("Version = %d, want 0", snap.Version)
			}
		})
	}
}

func TestWriteThenRead_RoundTrip(t *testing.T) {
	want := []record{
		{ID: "a", Name: "V1", Scale: 0.1},
		{ID: "b", Name: "A1", Scale: 1},
	}

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b, Options{ConflictDetection: true})

			_, snap, err := ReadCollection[record](ctx, s, CollectionRegisters)
			if err != nil {
				t.Fatalf("ReadCollection() error = %v", err)
			}
			snap, err = WriteCollection(ctx, s, CollectionRegisters, want, snap)
			if err != nil {
				t.Fatalf("WriteCollection() error = %v", err)
			}
			if snap.Version != 1 {
				t.Errorf("Version after first write = %d, want 1", snap.Version)
			}

			got, snap2, err := ReadCollection[record](ctx, s, CollectionRegisters)
			if err != nil {
				t.Fatalf("ReadCollection() error = %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("ReadCollection() = %+v, want %+v", got, want)
			}
			if snap2 != snap {
				t.Errorf("snapshot = %+v, want %+v", snap2, snap)
			}

			// Writing back what was read leaves the payload byte-identical.
			before, _, _ := b.Get(ctx, CollectionRegisters) //nolint:errcheck // checked above
			if _, err := WriteCollection(ctx, s, CollectionRegisters, got, snap2); err != nil {
				t.Fatalf("WriteCollection() error = %v", err)
			}
			after, _, _ := b.Get(ctx, CollectionRegisters) //nolint:errcheck // checked above
			if string(before) != string(after) {
				t.Errorf("round trip changed payload:\n%s\n%s", before, after)
			}
		})
	}
}

func TestWriteCollection_NilIsEmptyArray(t *testing.T) {
	b := NewMemoryBackend()
	s := New(b, Options{})

	if _, err := WriteCollection[record](context.Background(), s, CollectionDevices, nil, Snapshot{}); err != nil {
		t.Fatalf("WriteCollection() error = %v", err)
	}
	data, _, _ := b.Get(context.Background(), CollectionDevices) //nolint:errcheck // memory backend
	if string(data) != "[]" {
		t.Errorf("payload = %q, want %q", data, "[]")
	}
}

func TestReadCollection_Corruption(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := b.Put(ctx, CollectionDevices, []byte(`{"not":"an array"`), AnyVersion); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			failOpen := New(b, Options{})
			got, snap, err := ReadCollection[record](ctx, failOpen, CollectionDevices)
			if err != nil {
				t.Fatalf("fail-open ReadCollection() error = %v", err)
			}
			if len(got) != 0 {
				t.Errorf("fail-open ReadCollection() = %+v, want empty", got)
			}
			if snap.Version != 1 {
				t.Errorf("fail-open Version = %d, want 1", snap.Version)
			}

			strict := New(b, Options{Strict: true})
			_, _, err = ReadCollection[record](ctx, strict, CollectionDevices)
			if !errors.Is(err, ErrCorrupted) {
				t.Fatalf("strict ReadCollection() error = %v, want ErrCorrupted", err)
			}
			var ce *CorruptionError
			if !errors.As(err, &ce) || ce.Key != CollectionDevices {
				t.Errorf("strict error = %#v, want *CorruptionError for %s", err, CollectionDevices)
			}
		})
	}
}

func TestReadCollection_NullPayload(t *testing.T) {
	b := NewMemoryBackend()
	if _, err := b.Put(context.Background(), CollectionDevices, []byte("null"), AnyVersion); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, _, err := ReadCollection[record](context.Background(), New(b, Options{Strict: true}), CollectionDevices)
	if err != nil {
		t.Fatalf("ReadCollection() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ReadCollection() = %#v, want empty non-nil slice", got)
	}
}

func TestWriteCollection_VersionConflict(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := New(b, Options{ConflictDetection: true})

			_, stale, _ := ReadCollection[record](ctx, s, CollectionDevices) //nolint:errcheck // empty read

			// Another writer gets in first.
			if _, err := WriteCollection(ctx, s, CollectionDevices, []record{{ID: "x"}}, stale); err != nil {
				t.Fatalf("first WriteCollection() error = %v", err)
			}

			_, err := WriteCollection(ctx, s, CollectionDevices, []record{{ID: "y"}}, stale)
			if !errors.Is(err, ErrVersionConflict) {
				t.Fatalf("stale WriteCollection() error = %v, want ErrVersionConflict", err)
			}

			got, _, _ := ReadCollection[record](ctx, s, CollectionDevices) //nolint:errcheck // checked by content
			if len(got) != 1 || got[0].ID != "x" {
				t.Errorf("collection after conflict = %+v, want first write", got)
			}

			// Without detection the last writer wins.
			lww := New(b, Options{})
			if _, err := WriteCollection(ctx, lww, CollectionDevices, []record{{ID: "y"}}, stale); err != nil {
				t.Fatalf("last-writer-wins WriteCollection() error = %v", err)
			}
			got, _, _ = ReadCollection[record](ctx, lww, CollectionDevices) //nolint:errcheck // checked by content
			if len(got) != 1 || got[0].ID != "y" {
				t.Errorf("collection after overwrite = %+v, want last write", got)
			}
		})
	}
}

func TestBoltBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ems.bolt")
	ctx := context.Background()

	b, err := OpenBolt(path, time.Second)
	if err != nil {
		t.Fatalf("OpenBolt() error = %v", err)
	}
	s := New(b, Options{})
	if _, err := WriteCollection(ctx, s, CollectionDevices, []record{{ID: "meter-1"}}, Snapshot{}); err != nil {
		t.Fatalf("WriteCollection() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	b, err = OpenBolt(path, time.Second)
	if err != nil {
		t.Fatalf("reopen OpenBolt() error = %v", err)
	}
	defer b.Close() //nolint:errcheck // Test cleanup

	got, snap, err := ReadCollection[record](ctx, New(b, Options{}), CollectionDevices)
	if err != nil {
		t.Fatalf("ReadCollection() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != "meter-1" {
		t.Errorf("ReadCollection() = %+v, want meter-1", got)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
}

func TestMemoryBackend_Closed(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, _, err := b.Get(context.Background(), CollectionDevices); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
}
