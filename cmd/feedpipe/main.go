// Entry point for the feedpipe HTTP service: ingestion loop, feed store,
// recommendation view, and the REST surface over them.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burstcamp/feedpipe/dbopen"
	"github.com/burstcamp/feedpipe/feedstore"
	"github.com/burstcamp/feedpipe/ingest"
	"github.com/burstcamp/feedpipe/recommend"
	"github.com/burstcamp/feedpipe/scrap"
	"github.com/burstcamp/feedpipe/server"

	_ "modernc.org/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	logLevel := slog.LevelInfo
	if env("LOG_LEVEL", "info") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg := server.DefaultConfig()
	if *configPath != "" {
		loaded, err := server.LoadConfig(*configPath)
		if err != nil {
			logger.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if listen := os.Getenv("LISTEN"); listen != "" {
		cfg.Listen = listen
	}
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	db, err := dbopen.Open(cfg.DBPath,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(feedstore.Schema),
	)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := feedstore.NewStore(db)
	view := recommend.New(store, cfg.RecommendLimit, logger)
	scraps := scrap.NewManager(store, view, logger)

	fetcher := ingest.NewFetcher(ingest.FetchConfig{UserAgent: cfg.UserAgent})
	engine := ingest.NewEngine(store, fetcher, ingest.NewContentFetcher(fetcher), view,
		ingest.Config{
			Interval:    cfg.FetchInterval,
			Concurrency: cfg.Concurrency,
		}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(store, view, scraps, engine, cfg, logger).Handler(),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("feedpipe listening", "addr", cfg.Listen, "db", cfg.DBPath,
		"fetch_interval", cfg.FetchInterval.String())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
