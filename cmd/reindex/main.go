// Command reindex re-embeds stored congressional records. "run" performs one
// pass and exits; "worker" serves reindex requests queued on NATS.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/congress-qa/engine/app"
	"github.com/WessleyAI/congress-qa/engine/domain"
	"github.com/WessleyAI/congress-qa/engine/ingest"
	"github.com/WessleyAI/congress-qa/pkg/metrics"
)

// Globals are the flags shared by every subcommand.
type Globals struct {
	LogLevel string `help:"Log level." enum:"debug,info,warn,error" default:"info" env:"LOG_LEVEL"`

	app.Config `embed:""`
}

// runCmd performs one reindex pass.
type runCmd struct {
	Types        []string `help:"Entity types to re-embed (bill, member, action, order). Empty means all." short:"t"`
	Fingerprints bool     `help:"Also extract semantic fingerprints."`
	PageSize     int      `help:"Records per page." default:"100"`
}

// workerCmd consumes queued reindex requests.
type workerCmd struct {
	NatsURL     string `help:"NATS URL." default:"nats://localhost:4222" env:"NATS_URL"`
	MetricsAddr string `help:"Address serving /metrics. Empty disables it." default:":9091" env:"METRICS_ADDR"`
}

type cli struct {
	Globals `embed:""`

	Run    runCmd    `cmd:"" default:"withargs" help:"Re-embed once and print progress."`
	Worker workerCmd `cmd:"" help:"Serve reindex requests from NATS."`
}

// env is what every subcommand receives.
type env struct {
	cfg    app.Config
	logger *slog.Logger
	out    io.Writer
}

func main() {
	_ = godotenv.Load()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("reindex"),
		kong.Description("Re-embed congressional records into the vector store."),
	)

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	err := kctx.Run(&env{cfg: c.Config, logger: logger, out: os.Stdout})
	if err != nil {
		logger.Error("reindex exited with error", "err", err)
		os.Exit(1)
	}
}

// request converts the flags into an ingest.Request.
func (r *runCmd) request() (ingest.Request, error) {
	req := ingest.Request{Fingerprints: r.Fingerprints, PageSize: r.PageSize}
	for _, s := range r.Types {
		et, ok := domain.ParseEntityType(s)
		if !ok {
			return req, fmt.Errorf("entity type %q: %w", s, domain.ErrUnknownEntityType)
		}
		req.EntityTypes = append(req.EntityTypes, et)
	}
	return req, nil
}

// Run implements the run subcommand.
func (r *runCmd) Run(e *env) error {
	req, err := r.request()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, e.cfg, e.logger, metrics.New())
	if err != nil {
		return err
	}
	defer a.Close()
	return runOnce(ctx, a.Reindexer, req, e.out)
}

// runOnce runs req and prints a progress line after every page.
func runOnce(ctx context.Context, r *ingest.Reindexer, req ingest.Request, out io.Writer) error {
	start := time.Now()
	req.Report = func(p ingest.Progress) {
		fmt.Fprintf(out, "processed=%d success=%d failed=%d\n", p.Processed, p.Success, p.Failed)
	}
	prog, err := r.Run(ctx, req)
	fmt.Fprintf(out, "done processed=%d success=%d failed=%d elapsed=%s\n",
		prog.Processed, prog.Success, prog.Failed, time.Since(start).Round(time.Millisecond))
	return err
}

// Run implements the worker subcommand.
func (w *workerCmd) Run(e *env) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	a, err := app.Build(ctx, e.cfg, e.logger, m)
	if err != nil {
		return err
	}
	defer a.Close()

	nc, err := nats.Connect(w.NatsURL, nats.Name("congress-qa-reindex"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, a.Reindexer)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ingest.ReindexSubject, err)
	}
	defer sub.Unsubscribe()

	if w.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", m.Handler())
		srv := &http.Server{Addr: w.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("metrics server failed", "err", err)
			}
		}()
		defer srv.Close()
	}

	e.logger.Info("reindex worker started", "subject", ingest.ReindexSubject, "nats", w.NatsURL)
	<-ctx.Done()
	e.logger.Info("shutdown signal received")
	return nil
}
