// Package app is the high-level coordinator: it builds the engine, sinks,
// history store, and HTTP surface from the config, then runs them until the
// context is cancelled.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pulseboard/internal/config"
	"pulseboard/internal/engine"
	"pulseboard/internal/handlers"
	"pulseboard/internal/history"
	"pulseboard/internal/logger"
	"pulseboard/internal/middleware"
	"pulseboard/internal/notifier"
	"pulseboard/internal/store"
)

// App wires the whole service together.
type App struct {
	cfg        *config.Config
	store      *store.Store
	engine     *engine.Engine
	sinks      []notifier.Sink
	db         *sql.DB
	repo       *history.Repository
	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs an App from the config.
func New(cfg *config.Config) *App {
	return &App{cfg: cfg, store: store.New()}
}

// Run starts background goroutines and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	log := logger.WithComponent("app")
	log.Info().Msg("pulseboard starting")

	if err := a.initHistory(); err != nil {
		return fmt.Errorf("init history: %w", err)
	}
	if err := a.initSinks(); err != nil {
		return fmt.Errorf("init sinks: %w", err)
	}

	opts := []engine.Option{engine.WithSinks(a.sinks...)}
	if a.repo != nil {
		opts = append(opts, engine.WithHistory(a.repo))
	}
	a.engine = engine.New(a.store, opts...)

	if a.cfg.DefinitionsPath != "" {
		defs, err := config.LoadDefinitions(a.cfg.DefinitionsPath)
		if err != nil {
			return fmt.Errorf("load definitions: %w", err)
		}
		a.applyDefinitions(defs)
	}

	a.initHTTPServer()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Info().Str("addr", a.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runTicker(ctx)
	}()

	if a.cfg.DefinitionsPath != "" {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := config.Watch(ctx, a.cfg.DefinitionsPath, a.applyDefinitions); err != nil {
				log.Error().Err(err).Msg("definitions watcher failed to start")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")
	return a.shutdown()
}

// initHistory opens and migrates the SQLite alert history. An empty path
// disables persistence entirely.
func (a *App) initHistory() error {
	if a.cfg.HistoryPath == "" {
		return nil
	}
	db, err := history.Open(a.cfg.HistoryPath)
	if err != nil {
		return err
	}
	if err := history.Migrate(db); err != nil {
		db.Close()
		return err
	}
	a.db = db
	a.repo = history.NewRepository(db)
	log := logger.WithComponent("app")
	log.Info().
		Str("path", a.cfg.HistoryPath).
		Msg("alert history opened")
	return nil
}

// initSinks builds the notification fan-out set. The log sink is always
// present so alerts are visible even with no external targets configured.
func (a *App) initSinks() error {
	log := logger.WithComponent("app")
	a.sinks = []notifier.Sink{notifier.NewLogSink()}

	if len(a.cfg.KafkaBrokers) > 0 {
		sink, err := notifier.NewKafkaSink(notifier.KafkaConfig{
			Brokers: a.cfg.KafkaBrokers,
			Topic:   a.cfg.KafkaTopic,
		})
		if err != nil {
			return fmt.Errorf("kafka sink: %w", err)
		}
		a.sinks = append(a.sinks, sink)
		log.Info().
			Strs("brokers", a.cfg.KafkaBrokers).
			Str("topic", a.cfg.KafkaTopic).
			Msg("kafka sink initialized")
	}

	if a.cfg.WebhookURL != "" {
		a.sinks = append(a.sinks, notifier.NewWebhookSink(a.cfg.WebhookURL))
		log.Info().Str("url", a.cfg.WebhookURL).Msg("webhook sink initialized")
	}
	return nil
}

// applyDefinitions registers monitors and rules from the declarative file.
// Individual failures (a cycle against already-registered monitors, say) are
// logged and skipped; they never take the service down.
func (a *App) applyDefinitions(defs *config.Definitions) {
	log := logger.WithComponent("app")
	for _, m := range defs.Monitors {
		if err := a.engine.RegisterMonitor(m); err != nil {
			log.Error().Err(err).Str("monitor_id", m.ID).Msg("monitor definition rejected")
		}
	}
	for _, r := range defs.Rules {
		if err := a.engine.RegisterRule(r); err != nil {
			log.Error().Err(err).Str("rule_id", r.ID).Msg("rule definition rejected")
		}
	}
}

func (a *App) initHTTPServer() {
	mux := http.NewServeMux()

	mux.Handle("/ingest", handlers.NewIngestHandler(handlers.IngestConfig{Engine: a.engine}))
	handlers.NewAdminHandler(a.engine, a.store, a.repo).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTPAddr,
		Handler:      middleware.Chain(mux, middleware.Recovery, middleware.Logging),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// runTicker drives the periodic full recompute so monitors do not go stale
// when webhooks fall silent.
func (a *App) runTicker(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.engine.Tick()
		}
	}
}

// shutdown stops intake first, then drains in-flight notifications, then
// closes the sinks and the history database.
func (a *App) shutdown() error {
	log := logger.WithComponent("app")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	a.engine.Close()

	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil {
			log.Error().Err(err).Str("sink", sink.Name()).Msg("sink close error")
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Error().Err(err).Msg("history close error")
		}
	}

	a.wg.Wait()
	log.Info().Msg("pulseboard stopped")
	return nil
}
