package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/internal/entitymodel"
	"floracore/internal/imex"
	"floracore/pkg/domain"
)

type exportOptions struct {
	table  string
	paths  []string
	format string
	output string
}

func newExportCmd() *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a table as csv, xml or xlsx, or the whole database as xml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runExportCmd(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.table, "table", "", "Table to export; empty exports the whole database as xml")
	cmd.Flags().StringSliceVar(&opts.paths, "path", nil, "Column path to resolve, repeatable (default: the table's own columns)")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "Output format: csv, xml or xlsx")
	cmd.Flags().StringVar(&opts.output, "output", "-", "Output file, - for stdout")
	return cmd
}

type exportReport struct {
	Status string `json:"status"`
	Table  string `json:"table,omitempty"`
	Format string `json:"format"`
	Rows   int    `json:"rows,omitempty"`
	Bytes  int    `json:"bytes"`
	Path   string `json:"path"`
}

func runExportCmd(ctx context.Context, cfg *config.Config, opts exportOptions) error {
	switch opts.format {
	case "csv", "xml", "xlsx":
	default:
		return withCode(exitUsage, fmt.Errorf("unknown format %q (expected csv, xml or xlsx)", opts.format))
	}

	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	if opts.table == "" {
		if opts.format != "xml" {
			return withCode(exitUsage, fmt.Errorf("whole-database export is xml only; pass --table for %s", opts.format))
		}
		payload, err := imex.DumpXML(ctx, store)
		if err != nil {
			return err
		}
		if err := writeOutput(opts.output, payload); err != nil {
			return err
		}
		if opts.output == "-" {
			return nil
		}
		return writeJSONLine(exportReport{Status: "exported", Format: "xml", Bytes: len(payload), Path: opts.output})
	}

	desc, ok := entitymodel.Lookup(opts.table)
	if !ok || desc.Entity == "" {
		return withCode(exitUsage, fmt.Errorf("unknown table %q", opts.table))
	}
	paths := opts.paths
	if len(paths) == 0 {
		paths = desc.Columns()
	}

	var header []string
	var rows [][]string
	err = store.View(ctx, func(view domain.TransactionView) error {
		var viewErr error
		header, rows, viewErr = imex.ExportRows(view, opts.table, paths)
		return viewErr
	})
	if err != nil {
		return withCode(exitValidation, err)
	}

	var payload []byte
	switch opts.format {
	case "csv":
		var buf bytes.Buffer
		if err := imex.WriteCSV(&buf, header, rows); err != nil {
			return err
		}
		payload = buf.Bytes()
	case "xml":
		if payload, err = imex.TableXML(opts.table, header, rows); err != nil {
			return err
		}
	case "xlsx":
		if payload, err = imex.Workbook(opts.table, header, rows); err != nil {
			return err
		}
	}

	if err := writeOutput(opts.output, payload); err != nil {
		return err
	}
	if opts.output == "-" {
		return nil
	}
	return writeJSONLine(exportReport{
		Status: "exported",
		Table:  opts.table,
		Format: opts.format,
		Rows:   len(rows),
		Bytes:  len(payload),
		Path:   opts.output,
	})
}
