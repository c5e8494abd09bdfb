// Package migrations holds the schema applied at startup.
package migrations

import "embed"

// FS contains every NNN_name.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
