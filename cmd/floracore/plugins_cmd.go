package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/pkg/domain"
)

func newPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List installed plugins and their versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPluginsCmd(cmd.Context(), cfg)
		},
	}
	return cmd
}

type pluginRow struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func runPluginsCmd(_ context.Context, cfg *config.Config) error {
	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	records := store.ListPluginRecords()
	rows := make([]pluginRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, pluginRow{
			Name:        record.Name,
			Version:     record.Version,
			InstalledAt: record.InstalledAt,
			UpdatedAt:   record.UpdatedAt,
		})
	}
	return writeJSONLine(rows)
}
