// Package app wires the configuration, store, sink, classifier, sync engine and
// HTTP server into a running process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"

	"autoledger/internal/classify"
	"autoledger/internal/config"
	"autoledger/internal/notify"
	"autoledger/internal/pipeline"
	"autoledger/internal/server"
	"autoledger/internal/sheets"
	"autoledger/internal/storage/sqlite"
	"autoledger/internal/syncer"
)

// App holds the wired components. Build it once per process.
type App struct {
	Config     config.Config
	Store      *sqlite.Store
	Sheets     *sheets.Client
	Classifier *classify.Classifier
	Engine     *syncer.Engine
	Pipeline   *pipeline.Pipeline
	Logger     *log.Logger
}

// New loads config and constructs every component. The returned App owns the
// store; callers must Close it.
func New(ctx context.Context, logger *log.Logger) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Info("config loaded",
		"db", cfg.DBPath,
		"listen", cfg.ListenAddr,
		"sink_configured", cfg.SinkConfigured(),
		"slack", cfg.SlackEnabled(),
		"rules", len(cfg.CategoryRules))

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var sheetClient *sheets.Client
	if cfg.SinkConfigured() {
		sheetClient, err = sheets.New(ctx, cfg.SpreadsheetID, cfg.SheetTab, cfg.GoogleCredentials, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("sheets client: %w", err)
		}
	}

	classifier := classify.New(logger)
	classifier.Update(cfg.Ruleset())

	engine := syncer.New(store, sheetClient, logger)

	hooks := pipeline.Hooks{}
	if cfg.SlackEnabled() {
		hooks = notify.NewSlack(cfg.SlackBotToken, cfg.SlackChannelID, logger).Hooks()
	}
	p := pipeline.New(classifier, store, engine, hooks, logger)

	return &App{
		Config:     cfg,
		Store:      store,
		Sheets:     sheetClient,
		Classifier: classifier,
		Engine:     engine,
		Pipeline:   p,
		Logger:     logger,
	}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}

// Serve runs the startup drain, the drain scheduler and the HTTP server. It
// blocks until the server stops or ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	if a.Sheets.Configured() {
		if err := a.Sheets.EnsureHeaders(ctx); err != nil {
			a.Logger.Warn("could not ensure sheet headers", "error", err)
		}
	}

	if a.Config.DrainOnStart {
		result, err := a.Engine.DrainPending(ctx)
		if err != nil {
			a.Logger.Warn("startup drain incomplete", "error", err)
		}
		a.Logger.Info("startup drain", "succeeded", result.Succeeded,
			"failed", result.Failed, "message", result.Message)
	}

	a.StartDrainScheduler(ctx)

	srv := server.New(a.Pipeline, a.Store, a.Engine, a.Classifier, a.Sheets,
		a.Config.SpreadsheetID, a.Logger)
	httpSrv := &http.Server{
		Addr:              a.Config.ListenAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Config.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// StartDrainScheduler runs periodic drains on a standard 5-field cron
// expression (minute hour day-of-month month day-of-week). An empty schedule
// disables it. The goroutine exits when ctx is cancelled.
func (a *App) StartDrainScheduler(ctx context.Context) {
	schedule := strings.TrimSpace(a.Config.DrainSchedule)
	if schedule == "" {
		a.Logger.Info("scheduled drains disabled (drain_schedule not set)")
		return
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		// Load already validates this; a failure here means the config
		// changed out from under us.
		a.Logger.Error("invalid drain_schedule, scheduled drains disabled",
			"schedule", schedule, "error", err)
		return
	}
	a.Logger.Info("drain scheduler started", "cron", schedule)

	go func() {
		for {
			now := time.Now()
			next := sched.Next(now)
			a.Logger.Info("next scheduled drain", "at", next.Format("Mon Jan 2 15:04"),
				"in", next.Sub(now).Round(time.Minute))

			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			result, drainErr := a.Engine.DrainPending(ctx)
			if drainErr != nil {
				a.Logger.Warn("scheduled drain incomplete", "error", drainErr)
			}
			a.Logger.Info("scheduled drain complete", "succeeded", result.Succeeded,
				"failed", result.Failed, "message", result.Message)
		}
	}()
}
