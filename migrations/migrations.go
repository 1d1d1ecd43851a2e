// Package migrations embeds the SQL schema migrations of the connector.
package migrations

import "embed"

// FS holds the numbered up/down SQL files
//
//go:embed *.sql
var FS embed.FS
