package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/stanstork/linkdoc-import/internal/config"
	"github.com/stanstork/linkdoc-import/internal/database"
	"github.com/stanstork/linkdoc-import/internal/importapi"
	"github.com/stanstork/linkdoc-import/internal/migration"
	"github.com/stanstork/linkdoc-import/internal/notification"
	"github.com/stanstork/linkdoc-import/internal/repository"
	"github.com/stanstork/linkdoc-import/internal/worker"
)

type application struct {
	config        *config.Config
	db            *sql.DB
	logger        zerolog.Logger
	queue         repository.ImportQueueRepository
	notifications notification.Service
	workerID      string
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	var logger zerolog.Logger
	if strings.EqualFold(cfg.Format, "json") {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
		logger = zerolog.New(consoleWriter).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.SetFlags(0)
	log.SetOutput(logger)
	return logger
}

// bootstrap loads configuration, opens the queue database and applies migrations.
func bootstrap(ctx context.Context) (*application, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)
	goose.SetLogger(migration.NewGooseAdapter(logger))

	db, err := database.Open(database.Options{
		Driver:       cfg.Database.Driver,
		URL:          cfg.Database.URL,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := migration.RunMigrations(ctx, db, cfg.Database.Driver); err != nil {
		db.Close()
		return nil, err
	}

	dialect, err := repository.ParseDialect(cfg.Database.Driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	notifiers := []notification.Notifier{notification.NewLogNotifier(logger)}
	if cfg.Email.Enabled() {
		email, err := notification.NewEmailNotifier(cfg.Email, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		notifiers = append(notifiers, email)
	}

	workerID := cfg.Worker.ID
	if workerID == "" {
		host, _ := os.Hostname()
		workerID = fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
	}

	return &application{
		config:        cfg,
		db:            db,
		logger:        logger,
		queue:         repository.NewImportQueueRepository(db, dialect, logger),
		notifications: notification.NewService(repository.NewNotificationRepository(db, dialect), logger, notifiers...),
		workerID:      workerID,
	}, nil
}

func (app *application) Close() {
	if err := app.db.Close(); err != nil {
		app.logger.Error().Err(err).Msg("failed to close database")
	}
}

// newRunner wires the remote import client, the orchestrator and the job runner.
func (app *application) newRunner() (*worker.Runner, error) {
	if err := app.config.ValidateImportAPI(); err != nil {
		return nil, err
	}
	apiCfg := app.config.ImportAPI
	httpClient := &http.Client{Timeout: apiCfg.RequestTimeout}

	var tokens importapi.TokenProvider
	if apiCfg.Token != "" {
		tokens = importapi.StaticToken(apiCfg.Token)
	} else {
		provider, err := importapi.NewClientCredentialsProvider(importapi.CredentialsConfig{
			TokenURL:     apiCfg.TokenURL,
			ClientID:     apiCfg.ClientID,
			ClientSecret: apiCfg.ClientSecret,
			Scope:        apiCfg.Scope,
		}, httpClient)
		if err != nil {
			return nil, err
		}
		tokens = provider
	}

	opts := []importapi.ClientOpt{
		importapi.WithHTTPClient(httpClient),
		importapi.WithPathPrefix(apiCfg.PathPrefix),
		importapi.WithClientLogger(app.logger),
	}
	if apiCfg.RequestsPerSecond > 0 {
		opts = append(opts, importapi.WithRateLimit(apiCfg.RequestsPerSecond))
	}
	client, err := importapi.NewClient(apiCfg.BaseURL, tokens, opts...)
	if err != nil {
		return nil, err
	}

	orchestrator := importapi.NewOrchestrator(client, importapi.Config{
		ApplicationName:   apiCfg.ApplicationName,
		CorrelationPrefix: apiCfg.CorrelationPrefix,
		PollInterval:      apiCfg.PollInterval,
		MaxPollAttempts:   apiCfg.MaxPollAttempts,
		ProgressLogEvery:  apiCfg.ProgressLogEvery,
	}, app.queue, app.logger)

	return worker.NewRunner(app.queue, orchestrator, app.logger,
		worker.WithNotifier(app.notifications),
		worker.WithPathMapping(worker.PathMapping{
			LocalRoot:  apiCfg.LocalFileRoot,
			RemoteRoot: apiCfg.RemoteFileRoot,
		}),
	), nil
}
