// Package migrations embeds the goose migrations of the path archive.
package migrations

import "embed"

// FS holds one directory of migrations per SQL dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
