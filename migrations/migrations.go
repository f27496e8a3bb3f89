// Package migrations embeds the SQL schema so the migrator binary and
// tests run against the same files that ship in the image.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
