// Package migrations embeds the SQL schema migrations of the ledger
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files
//
//go:embed *.sql
var FS embed.FS
