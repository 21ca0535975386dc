package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"insight-agents/internal/app"
	"insight-agents/internal/httputil"
	"insight-agents/internal/queue"
)

func main() {
	deps, err := app.Build("summarizer")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, deps); err != nil {
		deps.Log.Error("summarizer stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, deps app.Deps) error {
	deps.Log.Info("summarizer worker starting",
		"concurrency", deps.Config.WorkerConcurrency,
		"model_configured", deps.Orchestrator.ModelConfigured(),
	)

	g, gctx := errgroup.WithContext(ctx)

	// Run queue worker
	g.Go(func() error {
		return deps.Queue.Worker(gctx, queue.TaskTypeSummarize, deps.Orchestrator.HandleTask)
	})

	// Run health check server
	g.Go(func() error {
		return httputil.ServeHealth(gctx, deps, fmt.Sprintf(":%d", deps.Config.Port))
	})

	return g.Wait()
}
