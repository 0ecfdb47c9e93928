// Package migrations embeds the SQL schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file
//
//go:embed *.sql
var FS embed.FS
