package migrations

import "embed"

// Files holds the ordered SQL migrations (NNN_name.sql) applied at startup.
//
//go:embed *.sql
var Files embed.FS
