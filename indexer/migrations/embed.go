package migrations

import "embed"

// FS contains the embedded indexer schema migrations.
//
//go:embed *.sql
var FS embed.FS
