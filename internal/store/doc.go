// Package store persists the console's named collections.
//
// A collection is an ordered list of records serialized as one JSON array
// under a fixed key. The console uses two of them:
//
//	ems_devices    → []device.Device
//	ems_registers  → []register.Register
//
// # Architecture
//
//	┌──────────────────────┐      ┌───────────────────────┐
//	│ device.Repository    │      │ register.Repository   │
//	└──────────┬───────────┘      └───────────┬───────────┘
//	           │ ReadCollection / WriteCollection
//	           ▼                              ▼
//	┌──────────────────────────────────────────────────────┐
//	│ Store (JSON codec, corruption policy, versions)      │
//	└──────────────────────────┬───────────────────────────┘
//	                           │ Backend
//	        ┌──────────────────┼──────────────────┐
//	        ▼                  ▼                  ▼
//	  SQLiteBackend       BoltBackend        MemoryBackend
//	  (collections table) (bbolt buckets)    (map, tests)
//
// Writes replace the whole collection. Writes to different collections are
// not transactional: a crash between writing devices and writing registers
// can leave orphaned registers behind.
//
// # Versions
//
// Every collection carries a monotonic version. ReadCollection returns it in
// a Snapshot; WriteCollection with conflict detection enabled refuses to
// overwrite a collection whose version moved since that snapshot and returns
// ErrVersionConflict. With detection disabled the last writer wins.
//
// # Corruption
//
// Content that does not decode as the expected array is handled by policy.
// Fail-open (the default) logs a warning and yields an empty collection;
// strict returns a *CorruptionError and leaves recovery to the caller.
package store
