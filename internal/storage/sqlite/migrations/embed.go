package migrations

import "embed"

// FS contains embedded SQLite migrations for participant storage.
//
//go:embed *.sql
var FS embed.FS
