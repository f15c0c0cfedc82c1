package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"floracore/pkg/domain"
	"floracore/pkg/pluginapi"
	"floracore/pkg/reportapi"
)

type staticRule struct {
	name     string
	severity Severity
}

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(_ context.Context, _ domain.RuleView, _ []Change) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: r.severity, Message: "static"}}}, nil
}

func labelTemplate() reportapi.Template {
	return reportapi.Template{
		Key:         "labels",
		Version:     "1.0.0",
		Title:       "Accession Labels",
		Description: "Printable labels for accessions",
		Domain:      reportapi.DomainAccession,
		Parameters: []reportapi.Parameter{{
			Name: "style",
			Type: "string",
			Enum: []string{"engraved", "paper"},
		}},
		Columns:       []reportapi.Column{{Name: "code", Title: "Code", Type: "string", Path: "accession.code"}},
		Metadata:      reportapi.Metadata{Tags: []string{"labels"}, Annotations: map[string]string{"media": "print"}},
		OutputFormats: []reportapi.Format{reportapi.FormatJSON, reportapi.FormatCSV},
		Binder: func(env reportapi.Environment) (reportapi.Runner, error) {
			return func(ctx context.Context, req reportapi.RunRequest) (reportapi.RunResult, error) {
				rows := make([]map[string]any, 0)
				if err := env.Store.View(ctx, func(view domain.TransactionView) error {
					for _, acc := range view.ListAccessions() {
						rows = append(rows, map[string]any{"code": acc.Code})
					}
					return nil
				}); err != nil {
					return reportapi.RunResult{}, err
				}
				return reportapi.RunResult{Rows: rows, GeneratedAt: env.Now(), Format: reportapi.FormatJSON}, nil
			}, nil
		},
	}
}

func TestPluginRegistryGuardsAndCopies(t *testing.T) {
	registry := NewPluginRegistry()

	registry.RegisterRule(nil)
	if len(registry.Rules()) != 0 {
		t.Fatalf("expected nil rule to be ignored")
	}

	registry.RegisterSchema("", map[string]any{"ignored": true})
	registry.RegisterSchema("accession", nil)

	registry.RegisterRule(staticRule{"rule", SeverityLog})
	rules := registry.Rules()
	if len(rules) != 1 {
		t.Fatalf("expected single registered rule, got %d", len(rules))
	}
	rules[0] = nil
	if registry.Rules()[0] == nil {
		t.Fatalf("expected registry to return copy of rules slice")
	}

	schema := map[string]any{"type": "object"}
	registry.RegisterSchema("accession", schema)
	schema["type"] = "mutated"

	stored := registry.Schemas()
	if stored["accession"]["type"].(string) != "object" {
		t.Fatalf("expected schema copy to remain object")
	}

	stored["accession"]["type"] = "changed"
	if registry.Schemas()["accession"]["type"].(string) != "object" {
		t.Fatalf("expected registry to return defensive copies")
	}

	if err := registry.RegisterReportTemplate(labelTemplate()); err != nil {
		t.Fatalf("register report: %v", err)
	}
	registered := registry.ReportTemplates()
	if len(registered) != 1 {
		t.Fatalf("expected report template to be registered")
	}

	if err := registry.RegisterReportTemplate(labelTemplate()); err == nil {
		t.Fatalf("expected duplicate report template registration to fail")
	}

	bad := labelTemplate()
	bad.Domain = "nursery"
	if err := registry.RegisterReportTemplate(bad); err == nil {
		t.Fatalf("expected invalid template to be rejected")
	}
}

type labelsPlugin struct {
	template reportapi.Template
}

func (labelsPlugin) Name() string           { return "labels" }
func (labelsPlugin) Version() string        { return "0.3.0" }
func (labelsPlugin) Dependencies() []string { return nil }

func (p labelsPlugin) Register(registry pluginapi.Registry) error {
	registry.RegisterSchema("accession", map[string]any{"type": "object"})
	registry.RegisterRule(staticRule{"labels_rule", SeverityLog})
	return registry.RegisterReportTemplate(p.template)
}

func TestInstallPluginCatalogsTemplates(t *testing.T) {
	service := NewInMemoryService(domain.NewRulesEngine())

	meta, err := service.InstallPlugin(labelsPlugin{template: labelTemplate()})
	if err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	if meta.Name != "labels" || meta.Version != "0.3.0" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if len(meta.Reports) != 1 || meta.Reports[0].Slug != "labels/labels@1.0.0" {
		t.Fatalf("unexpected report descriptors: %+v", meta.Reports)
	}
	if _, ok := meta.Schemas["accession"]; !ok {
		t.Fatalf("expected accession schema in metadata")
	}

	if _, err := service.InstallPlugin(labelsPlugin{template: labelTemplate()}); err == nil {
		t.Fatalf("expected duplicate plugin install to fail")
	}
	if _, err := service.InstallPlugin(nil); err == nil {
		t.Fatalf("expected nil plugin install to fail")
	}

	plugins := service.RegisteredPlugins()
	if len(plugins) != 1 || plugins[0].Name != "labels" {
		t.Fatalf("unexpected registered plugins: %+v", plugins)
	}

	descriptors := service.ReportTemplates()
	if len(descriptors) != 1 || descriptors[0].Plugin != "labels" {
		t.Fatalf("unexpected descriptors: %+v", descriptors)
	}

	runtime, ok := service.ReportTemplate("labels/labels@1.0.0")
	if !ok {
		t.Fatalf("expected installed template to be retrievable")
	}

	ctx := context.Background()
	species := seedSpeciesChain(t, service)
	if _, _, err := service.CreateAccession(ctx, domain.Accession{Code: "2026.0001", SpeciesID: species.ID}); err != nil {
		t.Fatalf("create accession: %v", err)
	}

	result, paramErrs, err := runtime.Run(ctx, map[string]any{"style": "paper"}, reportapi.Selection{Domain: reportapi.DomainAccession}, reportapi.FormatJSON)
	if err != nil {
		t.Fatalf("run template: %v", err)
	}
	if len(paramErrs) != 0 {
		t.Fatalf("parameter errors = %+v", paramErrs)
	}
	if len(result.Rows) != 1 || result.Rows[0]["code"] != "2026.0001" {
		t.Fatalf("unexpected result rows: %+v", result.Rows)
	}
	if result.GeneratedAt.IsZero() || result.GeneratedAt.After(time.Now().Add(time.Minute)) {
		t.Fatalf("unexpected generated timestamp: %v", result.GeneratedAt)
	}
	if len(result.Schema) != 1 || result.Schema[0].Name != "code" {
		t.Fatalf("expected schema fallback to template columns, got %+v", result.Schema)
	}

	_, paramErrs, err = runtime.Run(ctx, map[string]any{"style": "holographic"}, reportapi.Selection{Domain: reportapi.DomainAccession}, reportapi.FormatJSON)
	if err != nil {
		t.Fatalf("run template: %v", err)
	}
	if len(paramErrs) == 0 || !strings.Contains(paramErrs[0].Error(), "one of") {
		t.Fatalf("expected enum validation error, got %+v", paramErrs)
	}
}
