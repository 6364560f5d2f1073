package query

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Dialect abstracts the database-specific parts of predicate rendering.
type Dialect interface {
	// Name returns "sqlite" or "postgres".
	Name() string

	// BindType returns the sqlx bindvar type used to rebind "?" placeholders.
	BindType() int

	// LikeKeyword returns the case-insensitive pattern match keyword.
	LikeKeyword() string

	// ListPredicate renders a membership test and returns the args it consumes.
	// SQLite: "expr IN (?)" with the slice expanded later by sqlx.In.
	// PostgreSQL: "expr = ANY(?)" with a single typed array param.
	ListPredicate(expr string, values []any, negate bool) (string, []any)

	// ExpandsLists reports whether slice args must be expanded with sqlx.In.
	ExpandsLists() bool

	// TimeParam encodes an instant for comparison against a timestamp column.
	TimeParam(t time.Time) any
}

// SQLite renders for github.com/mattn/go-sqlite3.
var SQLite Dialect = sqliteDialect{}

// Postgres renders for github.com/lib/pq.
var Postgres Dialect = postgresDialect{}

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "postgres", "pgx":
		return Postgres, nil
	default:
		return nil, fmt.Errorf("query: unsupported driver %q", driverName)
	}
}

// sqliteTimeLayout sorts lexically, which is how SQLite compares TEXT timestamps.
const sqliteTimeLayout = "2006-01-02 15:04:05"

type sqliteDialect struct{}

func (sqliteDialect) Name() string        { return "sqlite" }
func (sqliteDialect) BindType() int       { return sqlx.QUESTION }
func (sqliteDialect) LikeKeyword() string { return "LIKE" }
func (sqliteDialect) ExpandsLists() bool  { return true }

func (sqliteDialect) ListPredicate(expr string, values []any, negate bool) (string, []any) {
	op := " IN "
	if negate {
		op = " NOT IN "
	}
	return expr + op + "(?)", []any{values}
}

func (sqliteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format(sqliteTimeLayout)
}

type postgresDialect struct{}

func (postgresDialect) Name() string        { return "postgres" }
func (postgresDialect) BindType() int       { return sqlx.DOLLAR }
func (postgresDialect) LikeKeyword() string { return "ILIKE" }
func (postgresDialect) ExpandsLists() bool  { return false }

func (postgresDialect) ListPredicate(expr string, values []any, negate bool) (string, []any) {
	if negate {
		return "NOT (" + expr + " = ANY(?))", []any{typedArray(values)}
	}
	return expr + " = ANY(?)", []any{typedArray(values)}
}

func (postgresDialect) TimeParam(t time.Time) any {
	return t.UTC()
}

// typedArray picks a concrete pq array type when the list is homogeneous so
// PostgreSQL can infer the element type without a cast.
func typedArray(values []any) any {
	var (
		strs   []string
		floats []float64
		bools  []bool
	)
	for _, v := range values {
		switch x := v.(type) {
		case string:
			strs = append(strs, x)
		case float64:
			floats = append(floats, x)
		case bool:
			bools = append(bools, x)
		}
	}
	switch len(values) {
	case len(strs):
		return pq.StringArray(strs)
	case len(floats):
		return pq.Float64Array(floats)
	case len(bools):
		return pq.BoolArray(bools)
	default:
		return pq.Array(values)
	}
}
