package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/internal/core"
	"floracore/internal/entitymodel"
	"floracore/internal/imex"
	"floracore/pkg/domain"
)

type importOptions struct {
	table    string
	file     string
	behavior string
	failures string
}

func newImportCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import CSV rows into a collection table",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runImportCmd(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.table, "table", "", "Target table, e.g. species or accession (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file to read, - for stdin (required)")
	cmd.Flags().StringVar(&opts.behavior, "behavior", string(imex.Upsert), "Row match behavior: upsert, create_only or update_only")
	cmd.Flags().StringVar(&opts.failures, "failures", "", "Write failed rows and their errors to this CSV file")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func matchBehavior(raw string) (imex.MatchBehavior, error) {
	behavior := imex.MatchBehavior(raw)
	switch behavior {
	case imex.Upsert, imex.CreateOnly, imex.UpdateOnly:
		return behavior, nil
	}
	return "", fmt.Errorf("unknown behavior %q (expected upsert, create_only or update_only)", raw)
}

type importReport struct {
	Status         string `json:"status"`
	Table          string `json:"table"`
	Rows           int    `json:"rows"`
	Committed      int    `json:"committed"`
	Failed         int    `json:"failed"`
	Skipped        int    `json:"skipped"`
	RecordsCreated int    `json:"records_created"`
	RecordsUpdated int    `json:"records_updated"`
	Failures       string `json:"failures,omitempty"`
}

func runImportCmd(ctx context.Context, cfg *config.Config, opts importOptions) error {
	behavior, err := matchBehavior(opts.behavior)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if desc, ok := entitymodel.Lookup(opts.table); !ok || desc.Entity == "" {
		return withCode(exitUsage, fmt.Errorf("unknown table %q", opts.table))
	}

	in, err := openInput(opts.file)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	logger := cfg.Logger()
	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	// Imports run under the same rule set the server applies, so the
	// built-in plugins install first. On a fresh store that also seeds
	// the geography reference data rows may link against.
	svc := core.NewService(store, core.WithLogger(config.NewCoreLogger(logger.WithField("component", "core"))))
	svc.SetPlantDelimiter(cfg.PlantDelimiter)
	if _, err := installBuiltins(ctx, svc); err != nil {
		return withCode(exitStore, err)
	}

	importer := imex.NewImporter(store, logger.WithField("component", "import"))
	summary, err := importer.ImportCSV(ctx, opts.table, in, imex.Options{
		Behavior: behavior,
		OnProgress: func(p imex.Progress) {
			logger.WithFields(logrus.Fields{
				"done":      p.Done,
				"total":     p.Total,
				"committed": p.Committed,
				"failed":    p.Failed,
			}).Info("import progress")
		},
	})
	if err != nil {
		return withCode(exitValidation, err)
	}

	out := importReport{
		Status:         "imported",
		Table:          opts.table,
		Rows:           summary.Rows,
		Committed:      summary.Committed,
		Failed:         summary.Failed,
		Skipped:        summary.Skipped,
		RecordsCreated: summary.RecordsCreated,
		RecordsUpdated: summary.RecordsUpdated,
	}
	if summary.Failed > 0 {
		out.Status = "partial"
	}
	if opts.failures != "" && summary.Failures != nil && summary.Failures.Len() > 0 {
		f, err := os.Create(opts.failures)
		if err != nil {
			return fmt.Errorf("create failures file: %w", err)
		}
		if err := summary.Failures.WriteCSV(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		out.Failures = opts.failures
	}
	return writeJSONLine(out)
}
