package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	corepersistence "github.com/worklane/worklane/modules/core/infrastructure/persistence"
	importhandlers "github.com/worklane/worklane/modules/imports/handlers"
	"github.com/worklane/worklane/modules/imports/infrastructure/jobstore"
	importservices "github.com/worklane/worklane/modules/imports/services"
	"github.com/worklane/worklane/modules/integrations/asana"
	integrationpersistence "github.com/worklane/worklane/modules/integrations/infrastructure/persistence"
	integrationservices "github.com/worklane/worklane/modules/integrations/services"
	pmpersistence "github.com/worklane/worklane/modules/pm/infrastructure/persistence"
	"github.com/worklane/worklane/pkg/configuration"
	"github.com/worklane/worklane/pkg/eventbus"
	"github.com/worklane/worklane/pkg/jobqueue"
	"github.com/worklane/worklane/pkg/logging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background job worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		cleanup := logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		defer cleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := jobstore.New(jobstore.Options{
		TTL:          conf.Import.JobTTL,
		TenantJobCap: conf.Import.TenantJobCap,
		Logger:       logger.WithField("component", "jobstore"),
	})

	repos := importservices.Repos{
		Users:       corepersistence.NewUserRepository(),
		Clients:     pmpersistence.NewClientRepository(),
		Projects:    pmpersistence.NewProjectRepository(),
		Sections:    pmpersistence.NewSectionRepository(),
		Tasks:       pmpersistence.NewTaskRepository(),
		TimeEntries: pmpersistence.NewTimeEntryRepository(),
	}
	bus := eventbus.NewEventPublisher(logger)
	importhandlers.RegisterJobEventHandlers(bus, logger)
	importSvc := importservices.NewImportService(repos, store, bus, conf.Import)

	worker, err := jobqueue.NewWorker(pool, jobqueue.Options{
		PollInterval:    conf.Jobs.PollInterval,
		BatchSize:       conf.Jobs.BatchSize,
		MaxAttempts:     conf.Jobs.MaxAttempts,
		ClaimTimeout:    conf.Jobs.ClaimTimeout,
		LastErrorMaxLen: conf.Jobs.LastErrorMaxBytes,
		SingleActive:    conf.Jobs.SingleActive,
		Logger:          logger.WithField("component", "jobqueue"),
	})
	if err != nil {
		return err
	}
	if err := worker.Register(importservices.KindCSVImport, importservices.NewCSVImportHandler(importSvc)); err != nil {
		return err
	}
	if err := registerAsanaImport(worker, conf, logger); err != nil {
		return err
	}

	cleaner, err := jobqueue.NewCleaner(pool, jobqueue.CleanerOptions{
		Enabled:         conf.Jobs.CleanerEnabled,
		Interval:        conf.Jobs.CleanerInterval,
		Retention:       conf.Jobs.CleanerRetention,
		FailedRetention: conf.Jobs.CleanerFailedRetention,
		Logger:          logger.WithField("component", "jobqueue-cleaner"),
	})
	if err != nil {
		return err
	}

	go func() {
		if err := store.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("job store sweeper stopped")
		}
	}()
	go func() {
		if err := cleaner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("jobqueue cleaner stopped")
		}
	}()
	if conf.Prometheus.Enabled {
		go serveMetrics(ctx, conf.Prometheus, logger)
	}

	if !conf.Jobs.WorkerEnabled {
		logger.Warn("JOBS_WORKER_ENABLED=false; serving metrics and cleanup only")
		<-ctx.Done()
		return nil
	}

	logger.WithFields(logrus.Fields{
		"poll_interval": conf.Jobs.PollInterval.String(),
		"batch_size":    conf.Jobs.BatchSize,
		"single_active": conf.Jobs.SingleActive,
	}).Info("job worker started")

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func registerAsanaImport(worker *jobqueue.Worker, conf *configuration.Configuration, logger *logrus.Logger) error {
	if conf.Asana.AccessToken == "" {
		logger.Info("ASANA_ACCESS_TOKEN not set; asana_import jobs will not be handled")
		return nil
	}
	apiClient, err := asana.NewClient(conf.Asana)
	if err != nil {
		return err
	}
	asanaRepos := asana.Repos{
		Users:    corepersistence.NewUserRepository(),
		Clients:  pmpersistence.NewClientRepository(),
		Projects: pmpersistence.NewProjectRepository(),
		Sections: pmpersistence.NewSectionRepository(),
		Tasks:    pmpersistence.NewTaskRepository(),
		Mappings: integrationpersistence.NewEntityMapRepository(),
	}
	return worker.Register(integrationservices.KindAsanaImport, integrationservices.NewAsanaImportHandler(apiClient, asanaRepos))
}

func serveMetrics(ctx context.Context, conf configuration.PrometheusOptions, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle(conf.Path, promhttp.Handler())
	srv := &http.Server{Addr: conf.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("prometheus metrics on " + conf.Addr + conf.Path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Error("metrics server stopped")
	}
}
