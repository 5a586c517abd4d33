// Package migrations embeds the goose SQL migrations. They are written in
// the subset of SQL shared by SQLite, libSQL and PostgreSQL.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
