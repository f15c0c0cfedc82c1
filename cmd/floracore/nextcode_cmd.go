package main

import (
	"context"

	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/internal/core"
	"floracore/pkg/domain"
)

type nextCodeOptions struct {
	format string
}

func newNextCodeCmd() *cobra.Command {
	var opts nextCodeOptions

	cmd := &cobra.Command{
		Use:   "next-code",
		Short: "Print the next unused accession code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runNextCodeCmd(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", core.DefaultAccessionCodeFormat, "Accession code format")
	return cmd
}

func runNextCodeCmd(ctx context.Context, cfg *config.Config, opts nextCodeOptions) error {
	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	svc := core.NewService(store)
	svc.SetPlantDelimiter(cfg.PlantDelimiter)
	code, err := svc.NextAccessionCode(ctx, opts.format)
	if err != nil {
		return withCode(exitValidation, err)
	}
	return writeJSONLine(struct {
		Code string `json:"code"`
	}{code})
}
