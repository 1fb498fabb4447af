// Package migrations holds the SQLite schema of the bridge's state store.
package migrations

import "embed"

// FS contains every *.sql migration, at its root.
//
//go:embed *.sql
var FS embed.FS
