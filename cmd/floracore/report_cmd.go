package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"floracore/internal/config"
	"floracore/internal/core"
	"floracore/internal/report"
	"floracore/pkg/domain"
	"floracore/pkg/reportapi"
)

type reportOptions struct {
	template string
	format   string
	output   string
	ids      []string
	params   []string
}

func newReportCmd() *cobra.Command {
	var opts reportOptions

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Run an installed report template",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runReportCmd(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.template, "template", "", "Template slug, e.g. report/accession-ledger@1.0.0 (required)")
	cmd.Flags().StringVar(&opts.format, "format", "csv", "Output format the template must support")
	cmd.Flags().StringVar(&opts.output, "output", "", "Output file, - for stdout (default: <key>.<ext>)")
	cmd.Flags().StringSliceVar(&opts.ids, "id", nil, "Scope the run to these object IDs, repeatable")
	cmd.Flags().StringArrayVar(&opts.params, "param", nil, "Template parameter as name=value, repeatable")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

// parseParams splits name=value pairs. Values stay strings; the
// template runtime coerces them against its declared parameter types.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected name=value)", pair)
		}
		params[strings.TrimSpace(name)] = value
	}
	return params, nil
}

type reportSummary struct {
	Status   string `json:"status"`
	Template string `json:"template"`
	Format   string `json:"format"`
	Rows     int    `json:"rows"`
	Path     string `json:"path"`
}

func runReportCmd(ctx context.Context, cfg *config.Config, opts reportOptions) error {
	params, err := parseParams(opts.params)
	if err != nil {
		return withCode(exitUsage, err)
	}

	logger := cfg.Logger()
	store, closeStore, err := openStore(cfg, domain.NewRulesEngine())
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	svc := core.NewService(store, core.WithLogger(config.NewCoreLogger(logger.WithField("component", "core"))))
	svc.SetPlantDelimiter(cfg.PlantDelimiter)
	if _, err := installBuiltins(ctx, svc); err != nil {
		return withCode(exitStore, err)
	}

	runtime, ok := svc.ReportTemplate(opts.template)
	if !ok {
		return withCode(exitUsage, fmt.Errorf("report template %q not installed", opts.template))
	}
	format := reportapi.Format(opts.format)
	if !runtime.SupportsFormat(format) {
		return withCode(exitUsage, fmt.Errorf("template %s does not support format %q", opts.template, opts.format))
	}

	result, paramErrs, err := runtime.Run(ctx, params, reportapi.Selection{IDs: opts.ids}, format)
	if err != nil {
		return err
	}
	if len(paramErrs) > 0 {
		msgs := make([]string, len(paramErrs))
		for i, perr := range paramErrs {
			msgs[i] = perr.Error()
		}
		return withCode(exitValidation, fmt.Errorf("invalid parameters: %s", strings.Join(msgs, "; ")))
	}

	rendered, err := report.Materialize(runtime.Descriptor(), result, format)
	if err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = runtime.Descriptor().Key + "." + rendered.Extension
	}
	if err := writeOutput(output, rendered.Payload); err != nil {
		return err
	}
	if output == "-" {
		return nil
	}
	return writeJSONLine(reportSummary{
		Status:   "rendered",
		Template: runtime.Slug(),
		Format:   string(format),
		Rows:     rendered.Rows,
		Path:     output,
	})
}
