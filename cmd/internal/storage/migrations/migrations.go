// Package migrations holds the embedded goose migrations for the forum schema.
//
// Migrations run against whatever schema the connection's search_path
// resolves to, which lets integration tests apply them to a throwaway schema.
package migrations

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var files embed.FS

// Status is one migration's state, flattened for CLI output.
type Status struct {
	Version int64
	Path    string
	Applied bool
}

func provider(pool *pgxpool.Pool) (*goose.Provider, func() error, error) {
	db := stdlib.OpenDBFromPool(pool)
	p, err := goose.NewProvider(goose.DialectPostgres, db, files)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return p, db.Close, nil
}

// Up applies all pending migrations and returns the applied versions.
func Up(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	p, closeDB, err := provider(pool)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeDB() }()

	res, err := p.Up(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations: up: %w", err)
	}

	out := make([]int64, 0, len(res))
	for _, r := range res {
		out = append(out, r.Source.Version)
	}
	return out, nil
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	p, closeDB, err := provider(pool)
	if err != nil {
		return 0, err
	}
	defer func() { _ = closeDB() }()

	res, err := p.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: down: %w", err)
	}
	return res.Source.Version, nil
}

// List reports every known migration and whether it is applied.
func List(ctx context.Context, pool *pgxpool.Pool) ([]Status, error) {
	p, closeDB, err := provider(pool)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closeDB() }()

	sts, err := p.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrations: status: %w", err)
	}

	out := make([]Status, 0, len(sts))
	for _, s := range sts {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
