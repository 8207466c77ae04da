// Package migrations embeds the versioned SQL schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds every NNNNNN_name.{up,down}.sql file of this directory.
//
//go:embed *.sql
var FS embed.FS
