// Package database provides SQLite connectivity for the EMS console.
//
// This package manages:
//   - Opening the database file with busy timeout and optional WAL mode
//   - Applying embedded schema migrations in version order
//   - Connection lifecycle and health checks
//
// The console keeps its device and register collections in a single
// "collections" table (see migrations/), so the schema is small and
// additive-only.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
