package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/sieve/internal/query"
	"github.com/solatis/sieve/internal/types"
)

// SeedSummary reports what Seed inserted.
type SeedSummary struct {
	Accounts int
	Deals    int
	Products int
	Skipped  bool // data was already present
}

type seedAccount struct {
	owner, name, industry, country string
	age                            time.Duration
}

type seedDeal struct {
	owner    string
	account  int // index into seedAccounts
	name     string
	notes    any
	amount   float64
	price    string
	status   string
	tags     any
	archived bool
	closedOn int // days before now; 0 = open
	age      time.Duration
	products []seedProduct
}

type seedProduct struct {
	sku       string
	quantity  float64
	unitPrice string
}

const day = 24 * time.Hour

var seedAccounts = []seedAccount{
	{"alice", "Acme Corp", "software", "US", 90 * day},
	{"alice", "Globex", "retail", "DE", 60 * day},
	{"bob", "Initech", "finance", "US", 30 * day},
}

var seedDeals = []seedDeal{
	{owner: "alice", account: 0, name: "Acme renewal", notes: "annual renewal", amount: 500, price: "500.00",
		status: "open", tags: "renewal", age: 2 * day,
		products: []seedProduct{{"X-100", 1, "250.00"}, {"Y-200", 1, "250.00"}}},
	{owner: "alice", account: 0, name: "Acme expansion", notes: "multi-site upsell", amount: 2000, price: "2000.00",
		status: "open", tags: "upsell,priority", age: 10 * day,
		products: []seedProduct{{"Y-200", 20, "50.00"}, {"Z-300", 1, "500.00"}, {"W-400", 2, "250.00"}}},
	{owner: "alice", account: 1, name: "Globex pilot", amount: 5000, price: "5000.00",
		status: "won", tags: "partner", closedOn: 30, age: 40 * day,
		products: []seedProduct{{"Y-200", 5, "1000.00"}}},
	{owner: "bob", account: 2, name: "Initech platform", notes: "lost to competitor", amount: 12000, price: "12000.00",
		status: "lost", archived: true, closedOn: 5, age: 20 * day,
		products: []seedProduct{{"X-100", 50, "240.00"}}},
}

// Seed inserts the demo dataset in one transaction, with timestamps
// relative to now. It does nothing when accounts already exist.
func Seed(ctx context.Context, db *sqlx.DB, now time.Time) (SeedSummary, error) {
	var summary SeedSummary

	dialect, err := Dialect(db)
	if err != nil {
		return summary, err
	}
	q, err := LoadQueries(db)
	if err != nil {
		return summary, err
	}

	var existing int
	if err := q.Get(ctx, "count-accounts", &existing); err != nil {
		return summary, fmt.Errorf("failed to count accounts: %w", err)
	}
	if existing > 0 {
		summary.Skipped = true
		return summary, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	if err := seed(ctx, q.WithTx(tx), dialect, now, &summary); err != nil {
		tx.Rollback()
		return SeedSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return SeedSummary{}, fmt.Errorf("failed to commit seed data: %w", err)
	}
	return summary, nil
}

func seed(ctx context.Context, q *Queries, dialect query.Dialect, now time.Time, summary *SeedSummary) error {
	accountIDs := make([]types.RecordID, len(seedAccounts))
	for i, a := range seedAccounts {
		accountIDs[i] = types.NewRecordID()
		_, err := q.Exec(ctx, "insert-account",
			accountIDs[i], a.owner, a.name, a.industry, a.country, dialect.TimeParam(now.Add(-a.age)))
		if err != nil {
			return fmt.Errorf("failed to insert account %q: %w", a.name, err)
		}
		summary.Accounts++
	}

	for _, d := range seedDeals {
		dealID := types.NewRecordID()
		var closedOn any
		if d.closedOn > 0 {
			closedOn = now.AddDate(0, 0, -d.closedOn).Format("2006-01-02")
		}
		_, err := q.Exec(ctx, "insert-deal",
			dealID, d.owner, accountIDs[d.account], d.name, d.notes, d.amount, d.price,
			d.status, d.tags, d.archived, closedOn, dialect.TimeParam(now.Add(-d.age)))
		if err != nil {
			return fmt.Errorf("failed to insert deal %q: %w", d.name, err)
		}
		summary.Deals++

		for _, p := range d.products {
			_, err := q.Exec(ctx, "insert-deal-product",
				types.NewRecordID(), d.owner, dealID, p.sku, p.quantity, p.unitPrice)
			if err != nil {
				return fmt.Errorf("failed to insert product %q: %w", p.sku, err)
			}
			summary.Products++
		}
	}
	return nil
}
