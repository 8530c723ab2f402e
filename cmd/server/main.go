package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/iliyamo/flight-marketplace/internal/clock"
	"github.com/iliyamo/flight-marketplace/internal/config"
	"github.com/iliyamo/flight-marketplace/internal/database"
	"github.com/iliyamo/flight-marketplace/internal/feed"
	"github.com/iliyamo/flight-marketplace/internal/handler"
	"github.com/iliyamo/flight-marketplace/internal/ledger"
	"github.com/iliyamo/flight-marketplace/internal/middleware"
	"github.com/iliyamo/flight-marketplace/internal/queue"
	"github.com/iliyamo/flight-marketplace/internal/repository"
	"github.com/iliyamo/flight-marketplace/internal/router"
	"github.com/iliyamo/flight-marketplace/internal/service"
	"github.com/iliyamo/flight-marketplace/internal/utils"
)

func main() {
	_ = godotenv.Load()

	catalogPath := pflag.String("catalog", "", "catalog YAML (overrides CATALOG_PATH)")
	snapshotPath := pflag.String("snapshot", "", "snapshot file for the file driver (overrides SNAPSHOT_PATH)")
	noRestore := pflag.Bool("no-restore", false, "ignore saved snapshots and start from the catalog")
	hashSecret := pflag.String("hash-secret", "", "print the bcrypt hash of an operator secret and exit")
	pflag.Parse()

	cfg, err := config.Load()
	if *hashSecret != "" {
		cost := 10
		if err == nil {
			cost = cfg.BcryptCost
		}
		h, herr := utils.HashSecret(*hashSecret, cost)
		if herr != nil {
			fmt.Fprintln(os.Stderr, herr)
			os.Exit(1)
		}
		fmt.Println(h)
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *catalogPath != "" {
		cfg.CatalogPath = *catalogPath
	}
	if *snapshotPath != "" {
		cfg.SnapshotPath = *snapshotPath
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, !*noRestore, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore selects the snapshot store. The returned func releases its
// connections.
func openStore(ctx context.Context, cfg config.Config) (repository.SnapshotStore, func(), error) {
	switch cfg.SnapshotDriver {
	case "mysql":
		db, err := database.OpenMySQL(ctx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		s := repository.NewMySQLSnapshotStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return s, closer(db), nil
	case "postgres":
		pool, err := database.OpenPostgres(ctx, cfg.DBDSN)
		if err != nil {
			return nil, nil, err
		}
		s := repository.NewPostgresSnapshotStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, poolCloser(pool), nil
	}
	return repository.NewFileSnapshotStore(cfg.SnapshotPath), func() {}, nil
}

func closer(db *sql.DB) func()             { return func() { db.Close() } }
func poolCloser(pool *pgxpool.Pool) func() { return pool.Close }

func loadCatalog(path string, logger *slog.Logger) *config.Catalog {
	cat, err := config.LoadCatalog(path)
	if err != nil {
		logger.Warn("catalog not loaded", "path", path, "err", err)
		return nil
	}
	return cat
}

func run(cfg config.Config, restore bool, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	defer closeStore()

	opts := service.Options{
		Clock:     clock.Real(),
		Logger:    logger,
		Workers:   cfg.AgentWorkers,
		QueueSize: cfg.AgentQueueSize,
		Store:     store,
	}
	var publisher *service.AMQPPublisher
	if cfg.AMQPURL != "" {
		publisher = service.NewAMQPPublisher(cfg.AMQPURL, logger)
		defer publisher.Close()
		opts.Publisher = publisher
		opts.Reporter = publisher
	}

	m, restored, err := service.Load(ctx, loadCatalog(cfg.CatalogPath, logger), opts, restore)
	if err != nil {
		return err
	}
	logger.Info("marketplace ready", "restored", restored, "driver", cfg.SnapshotDriver)

	var wg sync.WaitGroup
	background := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	hub := feed.NewHub(logger)
	m.OnInventoryChange(hub.Publish)
	background(func() { hub.Run(ctx) })
	background(func() { ledger.RunSweeper(ctx, cfg.ExpirySweepInterval, logger, m) })

	if publisher != nil {
		if err := os.MkdirAll("logs", 0o755); err != nil {
			return err
		}
		audit, err := os.OpenFile(filepath.Join("logs", "payments.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		defer audit.Close()
		consumers := []*queue.Consumer{
			{URL: cfg.AMQPURL, Queue: queue.QueueRevenueDeclared, Handle: queue.RevenueDeclaredHandler(m.Tax()), Logger: logger},
			{URL: cfg.AMQPURL, Queue: queue.QueueReservationPaid, Handle: queue.PaymentAuditHandler(audit), Logger: logger},
		}
		for _, c := range consumers {
			background(func() { c.Run(ctx) })
		}
	}

	rdb := config.NewRedisClient(logger)
	if rdb != nil {
		defer rdb.Close()
	}
	mw, err := buildMiddleware(rdb, logger)
	if err != nil {
		return err
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Handlers{
		Auth:    handler.NewAuthHandler(m, cfg.JWTSecret, cfg.AccessTTL(), clock.Real()),
		Flights: &handler.FlightHandler{Market: m, Hub: hub},
		Agents:  &handler.AgentHandler{Market: m},
		Airline: &handler.AirlineHandler{Market: m},
		Admin:   &handler.AdminHandler{Market: m},
		Clients: handler.ClientReservations(m),
	}, mw, cfg.JWTSecret)

	errc := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errc:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "err", serr)
	}
	m.Close()
	if serr := m.Snapshot(shutdownCtx); serr != nil {
		logger.Error("final snapshot failed", "err", serr)
	}
	wg.Wait()
	return err
}

func buildMiddleware(rdb *redis.Client, logger *slog.Logger) (router.Middleware, error) {
	cacheCfg, err := config.LoadCacheConfig()
	if err != nil {
		return router.Middleware{}, fmt.Errorf("cache config: %w", err)
	}
	rateCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		return router.Middleware{}, fmt.Errorf("rate limit config: %w", err)
	}
	logger.Info("redis middleware",
		"cache", cacheCfg.Enabled && rdb != nil,
		"rate_limit", rateCfg.Enabled && rdb != nil,
		"cache_methods", strings.Join(cacheCfg.MethodList, ","))
	return router.Middleware{
		SearchCache: middleware.NewRedisCache(cacheCfg, rdb, logger),
		RateLimit:   middleware.NewTokenBucket(rateCfg, rdb, logger),
	}, nil
}
