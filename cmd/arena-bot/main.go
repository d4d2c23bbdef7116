package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/chess-arena-bot/internal/archive"
	"github.com/park285/chess-arena-bot/internal/arena"
	"github.com/park285/chess-arena-bot/internal/assist"
	"github.com/park285/chess-arena-bot/internal/config"
	"github.com/park285/chess-arena-bot/internal/engine"
	"github.com/park285/chess-arena-bot/internal/game"
	"github.com/park285/chess-arena-bot/internal/httpgate"
	"github.com/park285/chess-arena-bot/internal/msgcat"
	"github.com/park285/chess-arena-bot/internal/obslog"
	"github.com/park285/chess-arena-bot/internal/stats"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	catalog, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		logger.Fatal("message catalog error", zap.Error(err))
	}

	var sinks []game.OutcomeSink

	var ledger *stats.Ledger
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis url error", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		ledger = stats.NewLedger(rdb, logger)
		sinks = append(sinks, ledger)
	}

	var store archive.Store
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("archive repository error", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		store = repo
	} else {
		logger.Warn("no DATABASE_URL, archiving games in memory only")
		store = archive.NewMemStore()
	}
	sinks = append(sinks, archive.NewSink(store, logger))

	registry := game.NewRegistry(logger, sinks...)

	eng := engine.New(cfg.StockfishPath, cfg.EngineQueryTimeout, logger)
	defer func() { _ = eng.Close() }()
	if eng.Degraded() {
		logger.Warn("engine unavailable, serving moves from the built-in searcher",
			zap.String("path", cfg.StockfishPath))
	}

	autoplay := game.NewAutoPlay(registry, eng, cfg.AutoPlayMinDelay, cfg.AutoPlayMaxDelay, logger)
	advisor := assist.NewAdvisor(eng, catalog, logger)
	svc := arena.New(registry, autoplay, advisor, catalog, arena.Config{
		OwnerID:      cfg.OwnerID,
		DefaultLevel: cfg.DefaultLevel,
		TimeLimit:    cfg.TimeLimit,
	}, logger)

	gate := httpgate.NewServer(svc, registry, ledger, logger)
	go func() {
		if err := gate.ListenAndServe(cfg.HTTPAddr); err != nil {
			logger.Fatal("http gate error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	_ = gate.Shutdown()
}
