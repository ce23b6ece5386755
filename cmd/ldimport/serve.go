package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	tc "go.temporal.io/sdk/client"
	tw "go.temporal.io/sdk/worker"

	"github.com/stanstork/linkdoc-import/internal/handlers"
	"github.com/stanstork/linkdoc-import/internal/middleware"
	"github.com/stanstork/linkdoc-import/internal/routes"
	"github.com/stanstork/linkdoc-import/internal/temporal"
	"github.com/stanstork/linkdoc-import/internal/temporal/activities"
	"github.com/stanstork/linkdoc-import/internal/temporal/workflows"
	"github.com/stanstork/linkdoc-import/internal/worker"
)

// runDrainTimeout bounds how long shutdown waits for cancelled HTTP-triggered runs.
const runDrainTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var noWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and the queue worker",
		Long: `Run the admin HTTP API together with the queue worker. With worker.mode
"ticker" the worker polls the queue in-process; with "temporal" a Temporal cron
workflow drains it through this process's activity worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.config.ValidateServer(); err != nil {
				return err
			}

			runner, err := app.newRunner()
			if err != nil {
				return err
			}

			var stopWorker func()
			if !noWorker {
				stopWorker, err = app.startWorker(ctx, runner)
				if err != nil {
					return err
				}
				defer stopWorker()
			}

			return app.serveHTTP(ctx, runner)
		},
	}
	cmd.Flags().BoolVar(&noWorker, "no-worker", false, "serve the API only, without draining the queue")
	return cmd
}

// startWorker starts queue draining in the configured mode and returns its stop function.
func (app *application) startWorker(ctx context.Context, runner *worker.Runner) (func(), error) {
	if app.config.Worker.Mode == "temporal" {
		return app.startTemporalWorker(ctx, runner)
	}

	w := worker.NewWorker(worker.WorkerConfig{
		ID:           app.workerID,
		PollInterval: app.config.Worker.PollInterval,
		BatchSize:    app.config.Worker.BatchSize,
	}, runner, app.logger)

	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Start(workerCtx)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func (app *application) startTemporalWorker(ctx context.Context, runner *worker.Runner) (func(), error) {
	tcfg := app.config.Temporal
	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  tcfg.HostPort,
		Namespace: tcfg.Namespace,
		Logger:    temporal.NewTemporalAdapter(app.logger),
	})
	if err != nil {
		return nil, err
	}

	w := tw.New(temporalClient, tcfg.TaskQueue, tw.Options{})
	w.RegisterWorkflow(workflows.DrainWorkflow)
	w.RegisterActivity(&activities.Activities{Runner: runner})
	if err := w.Start(); err != nil {
		temporalClient.Close()
		return nil, err
	}
	app.logger.Info().Str("task_queue", tcfg.TaskQueue).Msg("Temporal worker started")

	run, err := temporal.StartDrainCron(ctx, temporalClient, workflows.DrainWorkflow, temporal.ScheduleOptions{
		TaskQueue:    tcfg.TaskQueue,
		CronSchedule: tcfg.CronSchedule,
		Params: temporal.DrainParams{
			WorkerID:  app.workerID,
			BatchSize: app.config.Worker.BatchSize,
		},
	})
	if err != nil {
		w.Stop()
		temporalClient.Close()
		return nil, err
	}
	app.logger.Info().Str("workflow_id", run.GetID()).Str("run_id", run.GetRunID()).Str("cron", tcfg.CronSchedule).Msg("drain workflow scheduled")

	return func() {
		app.logger.Info().Msg("Stopping Temporal worker...")
		w.Stop()
		temporalClient.Close()
		app.logger.Info().Msg("Temporal worker stopped.")
	}, nil
}

// serveHTTP launches the admin API and shuts it down gracefully when ctx ends.
func (app *application) serveHTTP(ctx context.Context, runner *worker.Runner) error {
	jobs := handlers.NewImportJobHandler(app.queue, runner, app.workerID, app.logger)
	router := routes.NewRouter(routes.Handlers{
		Jobs:          jobs,
		Notifications: handlers.NewNotificationHandler(app.notifications, app.logger),
		DB:            app.db,
		JWTSecret:     app.config.Server.JWTSecret,
	})
	loggedRouter := middleware.LoggingMiddleware(app.logger.With().Str("component", "http").Logger())(router)

	origins := app.config.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	corsHandler := h.CORS(
		h.AllowedOrigins(origins),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)
	handler := h.RecoveryHandler(h.PrintRecoveryStack(true))(corsHandler)

	server := &http.Server{
		Addr:              ":" + app.config.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		app.logger.Info().Msg("Shutting down...")
	case serveErr = <-serverErrCh:
		app.logger.Error().Err(serveErr).Msg("Server error occurred")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}

	// Triggered runs must record their outcome before the database is closed.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), runDrainTimeout)
	defer cancelDrain()
	if err := jobs.Shutdown(drainCtx); err != nil {
		app.logger.Error().Err(err).Msg("triggered import runs did not finish before shutdown")
	} else {
		app.logger.Info().Msg("triggered import runs finished.")
	}
	return serveErr
}
