// Command tonequeue-server runs the full tonequeue core wired against
// a SQL-backed Durable Store/Queue Broker, an OAuth2 credential
// refresher and an HTTP front door.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"github.com/romanqed/tonequeue"
	"github.com/romanqed/tonequeue/admission"
	"github.com/romanqed/tonequeue/api"
	"github.com/romanqed/tonequeue/config"
	"github.com/romanqed/tonequeue/credential"
	"github.com/romanqed/tonequeue/hub"
	"github.com/romanqed/tonequeue/metrics"
	"github.com/romanqed/tonequeue/modelcache"
	"github.com/romanqed/tonequeue/render"
	tsql "github.com/romanqed/tonequeue/store/sql"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Store and Broker share one jobs table (store/sql's doc.go), so
	// this deployment topology expects STORE_URL and BROKER_URL to
	// name the same database; only StoreURL is opened.
	sqlDB, err := sql.Open("sqlite", cfg.StoreURL)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(1)

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tsql.InitDB(ctx, db); err != nil {
		return err
	}

	rec := metrics.NewRecorder()

	store := tsql.NewStore(db)
	broker := tsql.NewBroker(db)

	refresher := credential.NewOAuth2Refresher(credential.OAuth2Config{
		TokenURL:     cfg.IDPURL,
		ClientID:     cfg.IDPClientID,
		ClientSecret: cfg.IDPClientSecret,
	}, nil)
	creds := credential.NewService(store, refresher, credential.ServiceConfig{
		Skew:     time.Minute,
		Recorder: rec,
	}, log)

	progressHub := hub.New(hub.Config{Recorder: rec}, log)
	admissionSvc := admission.New(store, broker, log)
	core := tonequeue.NewCore(store, admissionSvc, progressHub, creds, log)

	registry := modelcache.NewHTTPRegistry(cfg.ModelRegistryURL, nil)
	models := modelcache.NewCache(filepath.Join(cfg.ArtifactsRoot, "models"), registry, nil)
	engine := render.NewNullEngine(filepath.Join(cfg.ArtifactsRoot, "uploads"))

	worker := tonequeue.NewWorker(
		workerID(),
		store,
		broker,
		creds,
		models,
		engine,
		progressHub,
		filepath.Join(cfg.ArtifactsRoot, "outputs"),
		&tonequeue.WorkerConfig{
			PullInterval:     time.Second,
			LeaseMaxWait:     30 * time.Second,
			LockTimeout:      time.Minute,
			ExtendInterval:   20 * time.Second,
			WallClockCeiling: cfg.JobWallClock,
			MaxAttempts:      uint32(cfg.MaxAttempts),
			Backoff: tonequeue.BackoffConfig{
				MaxRetries:          uint32(cfg.MaxAttempts),
				InitialInterval:     time.Second,
				MaxInterval:         time.Minute,
				Multiplier:          2,
				RandomizationFactor: 0.2,
			},
			Recorder: rec,
		},
		log,
	)

	sup := tonequeue.NewSupervisor(store, broker, progressHub, &tonequeue.SupervisorConfig{
		Interval:         10 * time.Second,
		PendingAge:       60 * time.Second,
		WallClockCeiling: cfg.JobWallClock,
		ProgressSilence:  cfg.ProgressSilence,
		Retention:        cfg.Retention(),
		ScanLimit:        100,
		Recorder:         rec,
	}, log)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	if err := worker.Start(runCtx); err != nil {
		return err
	}
	if err := sup.Start(runCtx); err != nil {
		return err
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := api.NewServer(core, log)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: srv.Router(rec),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	errCh := make(chan error, 1)
	go func() {
		log.Info("tonequeue-server listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			runCancel()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", "err", err)
	}

	runCancel()
	if err := worker.Stop(10 * time.Second); err != nil {
		log.Error("worker stop", "err", err)
	}
	if err := sup.Stop(5 * time.Second); err != nil {
		log.Error("supervisor stop", "err", err)
	}
	return nil
}

func workerID() string {
	host, err := os.Hostname()
	if err != nil {
		return "worker"
	}
	return host
}
