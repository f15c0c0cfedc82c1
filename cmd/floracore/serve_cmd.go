package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/internal/core"
	"floracore/internal/httpapi"
	"floracore/internal/jobs"
	"floracore/internal/metrics"
	"floracore/pkg/domain"
)

type serveOptions struct {
	addr string
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.HTTP.Addr = opts.addr
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "Listen address (overrides FLORACORE_HTTP_ADDR)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := cfg.Logger()

	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.WithError(err).Warn("close store")
		}
	}()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	svc := core.NewService(store,
		core.WithLogger(config.NewCoreLogger(logger.WithField("component", "core"))),
		core.WithAuditRecorder(config.NewAuditRecorder(logger.WithField("component", "audit"))),
		core.WithMetricsRecorder(collector),
	)
	svc.SetPlantDelimiter(cfg.PlantDelimiter)

	results, err := installBuiltins(ctx, svc)
	for _, result := range results {
		entry := logger.WithFields(logrus.Fields{
			"plugin":  result.Name,
			"version": result.Version,
			"fresh":   result.Fresh,
		})
		if result.Err != nil {
			entry.WithError(result.Err).Error("plugin install failed")
			continue
		}
		entry.Info("plugin installed")
	}
	if err != nil {
		return err
	}

	worker := jobs.NewWorker(store, blobs,
		jobs.WithCatalog(svc),
		jobs.WithLogger(logger.WithField("component", "jobs")),
		jobs.WithAudit(jobs.NewLogAudit(logger.WithField("component", "jobs"))),
		jobs.WithMonitor(collector),
	)

	handler, err := httpapi.New(httpapi.Options{
		Service:  svc,
		Worker:   worker,
		Blobs:    blobs,
		Logger:   logger.WithField("component", "http"),
		Observer: collector,
		Metrics:  collector.Handler(),
	})
	if err != nil {
		return fmt.Errorf("build http api: %w", err)
	}

	worker.Start()
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	listenErr := make(chan error, 1)
	go func() { listenErr <- server.ListenAndServe() }()
	logger.WithField("addr", cfg.HTTP.Addr).Info("server listening")

	select {
	case err := <-listenErr:
		drainWorker(worker, cfg, logger)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("server shutdown")
	}
	drainWorker(worker, cfg, logger)
	logger.Info("server stopped")
	return nil
}

// drainWorker stops the job worker, waiting out in-flight jobs up to
// the shutdown timeout.
func drainWorker(worker *jobs.Worker, cfg *config.Config, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := worker.Stop(ctx); err != nil {
		logger.WithError(err).Warn("worker drain")
	}
}
