// Package migrations embeds the SQLite schema so the migrate-driven Open
// path in the sibling sqlite package can find it without relying on a
// filesystem layout at runtime.
package migrations

import "embed"

// FS holds the up/down migration pair applied by sqlite.Adapter.Open.
//
//go:embed *.sql
var FS embed.FS
