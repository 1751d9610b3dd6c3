// Package migrations embeds the SQLite schema migrations into the binary.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory. Pass it to
// database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
