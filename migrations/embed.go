// Package migrations embeds the SQL migrations for the users and prompt
// history tables. Files follow golang-migrate naming: NNNNNN_name.{up,down}.sql.
package migrations

import "embed"

// FS holds the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
