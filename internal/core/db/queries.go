package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries runs named SQL statements loaded from embedded .sql files.
// Statements use "?" placeholders and are rebound for the connection.
type Queries struct {
	dot *dotsql.DotSql
	db  sqlx.ExtContext
}

// LoadQueries parses every embedded .sql file. Names come from
// "-- name: insert-deal" tags.
func LoadQueries(db sqlx.ExtContext) (*Queries, error) {
	var combined strings.Builder

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}
		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		combined.Write(content)
		combined.WriteByte('\n')
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}
	return &Queries{dot: dot, db: db}, nil
}

// WithTx returns a Queries bound to tx, sharing the parsed statements.
func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{dot: q.dot, db: tx}
}

func (q *Queries) raw(name string) (string, error) {
	stmt, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(stmt), nil
}

// Exec runs a named statement.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	stmt, err := q.raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, stmt, args...)
}

// Get scans a single row of a named query into dest.
func (q *Queries) Get(ctx context.Context, name string, dest any, args ...any) error {
	stmt, err := q.raw(name)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, q.db, dest, stmt, args...)
}

// Select scans all rows of a named query into dest.
func (q *Queries) Select(ctx context.Context, name string, dest any, args ...any) error {
	stmt, err := q.raw(name)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q.db, dest, stmt, args...)
}
