package main

import (
	"context"

	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/internal/imex"
	"floracore/pkg/domain"
)

type backupOptions struct {
	output string
}

func newBackupCmd() *cobra.Command {
	var opts backupOptions

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a zip archive holding every table as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runBackupCmd(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", "floracore-backup.zip", "Archive file to write, - for stdout")
	return cmd
}

type backupReport struct {
	Status string `json:"status"`
	Tables int    `json:"tables"`
	Bytes  int    `json:"bytes"`
	Path   string `json:"path"`
}

func runBackupCmd(ctx context.Context, cfg *config.Config, opts backupOptions) error {
	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	files, err := imex.Backup(ctx, store)
	if err != nil {
		return err
	}
	payload, err := imex.Zip(files)
	if err != nil {
		return err
	}
	if err := writeOutput(opts.output, payload); err != nil {
		return err
	}
	if opts.output == "-" {
		return nil
	}
	return writeJSONLine(backupReport{Status: "backed_up", Tables: len(files), Bytes: len(payload), Path: opts.output})
}
