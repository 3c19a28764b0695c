// Package migrations embeds the PostgreSQL schema migrations so binaries and
// tests can apply them without a checkout of the repository.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files
//
//go:embed *.sql
var FS embed.FS
