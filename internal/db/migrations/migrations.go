// Package migrations embeds the goose SQL migrations applied at startup by
// db.RunMigrations.
package migrations

import "embed"

// FS holds the embedded .sql migration files.
//
//go:embed *.sql
var FS embed.FS
