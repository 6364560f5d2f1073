// Package migrations embeds the demo schema, one directory per dialect.
package migrations

import "embed"

// SqliteMigrations holds migrations for github.com/mattn/go-sqlite3.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds migrations for github.com/lib/pq.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
