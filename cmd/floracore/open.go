package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"floracore/internal/blob"
	"floracore/internal/config"
	"floracore/internal/core"
	"floracore/internal/infra/persistence/memory"
	"floracore/internal/infra/persistence/postgres"
	"floracore/internal/infra/persistence/sqlite"
	"floracore/pkg/domain"
	"floracore/plugins/garden"
	reportplugin "floracore/plugins/report"
	"floracore/plugins/taxonomy"
)

// loadConfig resolves the effective configuration for a command run,
// layering any --env-file files under the process environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFiles, err := cmd.Flags().GetStringSlice("env-file")
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	cfg, err := config.LoadWithEnvFiles(envFiles...)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return cfg, nil
}

// openStore builds the configured persistent store around the given
// rules engine. The close function is safe to call once, after all
// work against the store is finished.
func openStore(cfg *config.Config, engine *domain.RulesEngine) (domain.PersistentStore, func() error, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return memory.NewStore(engine), func() error { return nil }, nil
	case "sqlite":
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath, engine)
		if err != nil {
			return nil, nil, withCode(exitStore, fmt.Errorf("open sqlite store: %w", err))
		}
		return store, store.Close, nil
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, engine)
		if err != nil {
			return nil, nil, withCode(exitStore, fmt.Errorf("open postgres store: %w", err))
		}
		return store, store.DB().Close, nil
	}
	return nil, nil, withCode(exitUsage, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver))
}

// openBlobs builds the configured artifact store through the blob
// facade.
func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch blob.Driver(cfg.Blob.Driver) {
	case blob.DriverMemory:
		return blob.NewMemory(), nil
	case blob.DriverFilesystem:
		store, err := blob.NewFilesystem(cfg.Blob.FSRoot)
		if err != nil {
			return nil, withCode(exitStore, fmt.Errorf("open blob root: %w", err))
		}
		return store, nil
	case blob.DriverS3:
		store, err := blob.NewS3(ctx, blob.S3Config{
			Region:          cfg.Blob.S3Region,
			Bucket:          cfg.Blob.S3Bucket,
			Endpoint:        cfg.Blob.S3Endpoint,
			AccessKeyID:     cfg.Blob.S3AccessKeyID,
			SecretAccessKey: cfg.Blob.S3SecretAccessKey,
			SessionToken:    cfg.Blob.S3SessionToken,
			PathStyle:       cfg.Blob.S3PathStyle,
		})
		if err != nil {
			return nil, withCode(exitStore, fmt.Errorf("open s3 blob store: %w", err))
		}
		return store, nil
	}
	return nil, withCode(exitUsage, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver))
}

// installBuiltins registers the built-in plugin suite against the
// service, seeding reference data on a store's first install.
func installBuiltins(ctx context.Context, svc *core.Service) ([]core.InstallResult, error) {
	return core.NewPluginManager(svc).InstallAll(ctx, taxonomy.New(), garden.New(), reportplugin.New())
}

// openInput resolves --file style arguments, with "-" meaning stdin.
func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return f, nil
}

// writeOutput resolves --output style arguments, with "-" meaning
// stdout.
func writeOutput(name string, payload []byte) error {
	if name == "-" {
		_, err := os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(name, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
