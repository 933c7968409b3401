// Package app wires the forum server runtime: config, logging, storage,
// HTTP routes and the live vote feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"
	"golang.org/x/sync/errgroup"

	"forum/cmd/identity"
	"forum/cmd/internal/api"
	"forum/cmd/internal/live"
	"forum/cmd/internal/metrics"
	"forum/cmd/internal/storage/migrations"
	"forum/cmd/internal/tokencache"
	"forum/cmd/internal/vote"
)

// App is the forum server runtime. It owns the pool, the cache client and
// the HTTP server.
type App struct {
	cfg Config
	log Logger

	dbPool    *pgxpool.Pool
	dbEnabled bool
	redis     rueidis.Client

	metrics *metrics.Metrics
	api     *api.Handler
	ws      *live.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}
	if err := ValidateStartupConfig(cfg); err != nil {
		return nil, err
	}

	pwCfg, err := identity.PasswordConfig()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}

	userStore, voteStore, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	idOpts := []identity.Option{identity.WithLogger(log)}
	if cfg.RedisAddr != "" {
		client, err := tokencache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		idOpts = append(idOpts, identity.WithCache(tokencache.New(client, cfg.TokenCacheTTL)))
		log.Info("tokencache.enabled", "addr", cfg.RedisAddr, "ttl", cfg.TokenCacheTTL)
	}
	users := identity.NewService(userStore, pwCfg, idOpts...)

	hub := live.NewHub(log, a.metrics)
	ledger := vote.NewLedger(voteStore,
		vote.WithTxTimeout(cfg.VoteTxTimeout),
		vote.WithNotifier(hub),
		vote.WithRecorder(a.metrics),
		vote.WithLogger(log),
	)

	a.api, err = api.NewHandler(log, users, ledger, api.LoadConfigFromEnv(), api.WithRecorder(a.metrics))
	if err != nil {
		a.close()
		return nil, err
	}
	a.ws = live.NewGateway(log, hub, ledger, live.ConfigFromEnv())

	return a, nil
}

func (a *App) openStores(ctx context.Context) (identity.Store, vote.Store, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store", "seed_posts", a.cfg.DevSeedPosts)
		vs := vote.NewInMemoryStore()
		for id := int64(1); id <= int64(a.cfg.DevSeedPosts); id++ {
			vs.SeedPost(id, 0)
		}
		return identity.NewInMemoryStore(), vs, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("db: %w", err)
	}
	a.dbPool = pool
	a.dbEnabled = true

	if a.cfg.AutoMigrate {
		applied, err := migrations.Up(ctx, pool)
		if err != nil {
			a.close()
			return nil, nil, err
		}
		a.log.Info("db.migrate.ok", "applied", applied)
	}

	us, err := identity.NewPostgresStore(pool)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	vs, err := vote.NewPostgresStore(pool, vote.WithLockTimeout(a.cfg.VoteLockTimeout))
	if err != nil {
		a.close()
		return nil, nil, err
	}

	a.log.Info("db.enabled.postgres_store")
	return us, vs, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.api, a.ws, a.metrics)
	return buildHandler(mux, a.cfg, a.log, a.metrics)
}

// Run starts the HTTP server and blocks until ctx is done or the server fails.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "cache_enabled", a.redis != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info("server.stopped")
	return nil
}

func (a *App) close() {
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
