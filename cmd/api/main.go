// Package main implements the congress-qa API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/WessleyAI/congress-qa/engine/app"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
	"github.com/WessleyAI/congress-qa/pkg/natsutil"
)

// Config holds all flag and environment configuration.
type Config struct {
	Addr            string        `help:"Listen address." default:":8080" env:"ADDR"`
	CORSOrigin      string        `help:"Allowed CORS origin." default:"*" env:"CORS_ORIGIN"`
	LogLevel        string        `help:"Log level." enum:"debug,info,warn,error" default:"info" env:"LOG_LEVEL"`
	NatsURL         string        `help:"NATS URL for queued reindex runs. Empty disables queueing." env:"NATS_URL"`
	AskTimeout      time.Duration `help:"Deadline for one answer." default:"60s" env:"ASK_TIMEOUT"`
	ReindexInterval time.Duration `help:"Minimum interval between admin reindex requests." default:"1m" env:"REINDEX_INTERVAL"`

	app.Config `embed:""`
}

func main() {
	_ = godotenv.Load()

	var cfg Config
	kong.Parse(&cfg,
		kong.Name("congress-qa-api"),
		kong.Description("Answers questions about congressional bills, members, actions, and executive orders."),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := app.Build(ctx, cfg.Config, logger, m)
	if err != nil {
		return err
	}
	defer a.Close()

	// --- Connect to NATS (optional) ---
	var pub natsutil.Publisher
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL, nats.Name("congress-qa-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		pub = nc
		a.Collaborators["queue"] = "nats"
	}

	// --- Build HTTP server ---
	s := &server{
		qa:      a.QA,
		reindex: a.Reindexer,
		pub:     pub,
		graph: func() (graphStats, bool) {
			g, ok := a.Graph()
			if !ok {
				return nil, false
			}
			return g, true
		},
		fingerprintsReady: a.Retrieval.FingerprintsReady,
		collaborators:     a.Collaborators,
		askTimeout:        cfg.AskTimeout,
		limiter:           rate.NewLimiter(rate.Every(cfg.ReindexInterval), 1),
		bg:                ctx,
		logger:            logger,
		metrics:           m,
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(cfg.CORSOrigin),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.AskTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
