package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"

	"forum/cmd/internal/app"
	"forum/cmd/internal/storage/migrations"
)

func main() {
	if err := run(); err != nil {
		log.Printf("error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	if err := app.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cmd := &cli.Command{
		Name:  "forum",
		Usage: "Forum identity and vote backend",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the HTTP server",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return app.Run(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "Apply all pending migrations",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return withPool(ctx, func(ctx context.Context, pool *pgxpool.Pool) error {
								applied, err := migrations.Up(ctx, pool)
								if err != nil {
									return err
								}
								if len(applied) == 0 {
									fmt.Println("schema is up to date")
								}
								for _, v := range applied {
									fmt.Printf("applied %05d\n", v)
								}
								return nil
							})
						},
					},
					{
						Name:  "down",
						Usage: "Roll back the most recent migration",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return withPool(ctx, func(ctx context.Context, pool *pgxpool.Pool) error {
								v, err := migrations.Down(ctx, pool)
								if err != nil {
									return err
								}
								fmt.Printf("rolled back %05d\n", v)
								return nil
							})
						},
					},
					{
						Name:  "status",
						Usage: "List migrations and whether they are applied",
						Action: func(ctx context.Context, _ *cli.Command) error {
							return withPool(ctx, func(ctx context.Context, pool *pgxpool.Pool) error {
								rows, err := migrations.List(ctx, pool)
								if err != nil {
									return err
								}
								for _, s := range rows {
									state := "pending"
									if s.Applied {
										state = "applied"
									}
									fmt.Printf("%05d  %-8s %s\n", s.Version, state, s.Path)
								}
								return nil
							})
						},
					},
				},
			},
		},
	}

	return cmd.Run(context.Background(), os.Args)
}

func withPool(ctx context.Context, fn func(context.Context, *pgxpool.Pool) error) error {
	cfg := app.LoadConfig()
	if cfg.DatabaseURL == "" {
		return errors.New("FORUM_DATABASE_URL is required")
	}

	pool, err := app.NewDBPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool)
}
