package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cassiomorais/txcoord/internal/bootstrap"
	"github.com/cassiomorais/txcoord/pkg/txcoord"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "txcoord-demo", "txcoord")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Demo workload: concurrent logical contexts on one manager ---
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < app.Config.Demo.Contexts; i++ {
		worker := i
		g.Go(func() error {
			return runScenarios(gctx, app.Manager, app.Logger, worker)
		})
	}
	if err := g.Wait(); err != nil {
		app.Logger.Fatal().Err(err).Msg("Demo workload failed")
	}
	app.Logger.Info().Int("contexts", app.Config.Demo.Contexts).Msg("Demo workload finished")

	// --- Ops endpoints ---
	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if app.Config.Observability.EnableMetrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	addr := fmt.Sprintf(":%d", app.Config.Demo.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down...")
	if err := srv.Shutdown(context.Background()); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}

// runScenarios exercises the coordinator on one logical context: a nested
// commit, a rollback and a non-transactional Supported call.
func runScenarios(ctx context.Context, m *txcoord.Manager, log zerolog.Logger, worker int) error {
	ctx = txcoord.WithActivity(ctx)
	log = log.With().Int("worker", worker).Logger()

	// Nested commit: parent with a child committing first.
	parent, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationReadCommitted, false)
	if err != nil {
		return fmt.Errorf("create parent: %w", err)
	}
	if err := parent.Enlist(&auditResource{log: log, name: "parent-work"}); err != nil {
		return err
	}

	child, err := m.CreateTransaction(ctx, txcoord.PropagationSupported, txcoord.IsolationReadCommitted, false)
	if err != nil {
		return fmt.Errorf("create child: %w", err)
	}
	if err := child.Enlist(&auditResource{log: log, name: "child-work"}); err != nil {
		return err
	}
	if err := child.Commit(ctx); err != nil {
		return fmt.Errorf("commit child: %w", err)
	}
	if err := m.Dispose(ctx, child); err != nil {
		return fmt.Errorf("dispose child: %w", err)
	}

	if err := parent.Commit(ctx); err != nil {
		return fmt.Errorf("commit parent: %w", err)
	}
	if err := m.Dispose(ctx, parent); err != nil {
		return fmt.Errorf("dispose parent: %w", err)
	}

	// Rollback path.
	tx, err := m.CreateTransaction(ctx, txcoord.PropagationRequires, txcoord.IsolationUnspecified, false)
	if err != nil {
		return fmt.Errorf("create rollback tx: %w", err)
	}
	if err := tx.Enlist(&auditResource{log: log, name: "abandoned-work"}); err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	if err := m.Dispose(ctx, tx); err != nil {
		return fmt.Errorf("dispose rolled back tx: %w", err)
	}

	// Supported with no current transaction runs non-transactionally.
	none, err := m.CreateTransaction(ctx, txcoord.PropagationSupported, txcoord.IsolationUnspecified, false)
	if err != nil {
		return fmt.Errorf("supported: %w", err)
	}
	if none != nil {
		return errors.New("supported without a current transaction should yield none")
	}
	log.Info().Msg("scenarios completed")
	return nil
}

// auditResource logs its outcome calls; it stands in for a real enlisted
// resource in the demo.
type auditResource struct {
	log  zerolog.Logger
	name string
}

func (r *auditResource) Commit(ctx context.Context) error {
	r.log.Info().Str("resource", r.name).Msg("resource committed")
	return nil
}

func (r *auditResource) Rollback(ctx context.Context) error {
	r.log.Info().Str("resource", r.name).Msg("resource rolled back")
	return nil
}
