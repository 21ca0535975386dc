package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"insight-agents/internal/app"
	"insight-agents/internal/httputil"
	"insight-agents/internal/queue"
)

func main() {
	deps, err := app.Build("gateway")
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, deps); err != nil {
		deps.Log.Error("gateway failed", "err", err)
		os.Exit(1)
	}
}

// run serves the API until ctx ends. With the in-process queue it also runs the summarize worker,
// since no other process can consume those tasks.
func run(ctx context.Context, deps app.Deps) error {
	addr := fmt.Sprintf(":%d", deps.Config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("gateway listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if deps.Config.QueueProvider == "memory" {
		g.Go(func() error {
			deps.Log.Info("running in-process summarize worker", "concurrency", deps.Config.WorkerConcurrency)
			return deps.Queue.Worker(gctx, queue.TaskTypeSummarize, deps.Orchestrator.HandleTask)
		})
	}
	return g.Wait()
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)

	r.Get("/health", httputil.HealthHandler(deps))
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", httputil.ReadinessHandler(deps))
		r.Post("/upload", uploadHandler(deps))
		r.Get("/logs", listHandler(deps))
		r.Route("/logs/{id}", func(r chi.Router) {
			r.Get("/", detailHandler(deps))
			r.Delete("/", deleteHandler(deps))
			r.Post("/summarize", summarizeHandler(deps))
			r.Get("/summarize", summarizeHandler(deps))
		})
	})
	return r
}
