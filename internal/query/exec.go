package query

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Select runs the rendered SELECT and returns each row as a column map.
// TEXT columns scanned as []byte are converted to string.
func (b *Builder) Select(ctx context.Context, db sqlx.QueryerContext) ([]map[string]any, error) {
	q, args, err := b.SQL()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: select %s: %w", b.table, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("query: scan %s: %w", b.table, err)
		}
		for k, v := range row {
			if raw, ok := v.([]byte); ok {
				row[k] = string(raw)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: iterate %s: %w", b.table, err)
	}
	return out, nil
}

// Count returns the number of rows matching the attached constraints,
// ignoring the limit.
func (b *Builder) Count(ctx context.Context, db sqlx.QueryerContext) (int64, error) {
	q, args, err := b.CountSQL()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := sqlx.GetContext(ctx, db, &n, q, args...); err != nil {
		return 0, fmt.Errorf("query: count %s: %w", b.table, err)
	}
	return n, nil
}
