package reportapi

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewHostTemplateAndRuntime(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	tpl := Template{
		Key:         "labels",
		Version:     "1.0.0",
		Title:       "Accession Labels",
		Description: "label rows for selected accessions",
		Domain:      DomainAccession,
		Parameters: []Parameter{{
			Name:        "limit",
			Type:        "integer",
			Required:    true,
			Description: "limit rows",
		}},
		Columns: []Column{{
			Name: "code",
			Type: "string",
			Path: "code",
		}},
		Metadata: Metadata{
			Source:      "tests",
			Tags:        []string{"labels"},
			Annotations: map[string]string{"k": "v"},
		},
		OutputFormats: []Format{FormatJSON, FormatCSV},
	}

	tpl.Binder = func(env Environment) (Runner, error) {
		if env.Now == nil {
			t.Fatalf("expected now function")
		}
		return func(_ context.Context, req RunRequest) (RunResult, error) {
			if req.Template.Key != "labels" {
				t.Fatalf("unexpected template key: %s", req.Template.Key)
			}
			if req.Selection.Domain != DomainAccession || len(req.Selection.IDs) != 1 {
				t.Fatalf("unexpected selection: %+v", req.Selection)
			}
			return RunResult{
				Schema:      []Column{{Name: "code", Type: "string"}},
				Rows:        []map[string]any{{"code": "2024.0001"}},
				Metadata:    map[string]any{"note": "ok"},
				GeneratedAt: env.Now(),
				Format:      FormatCSV,
			}, nil
		}, nil
	}

	host, err := NewHostTemplate("report", tpl)
	if err != nil {
		t.Fatalf("NewHostTemplate: %v", err)
	}
	if host.Slug() != "report/labels@1.0.0" {
		t.Fatalf("unexpected slug: %s", host.Slug())
	}
	if !host.SupportsFormat(FormatJSON) || host.SupportsFormat(FormatXLSX) {
		t.Fatalf("unexpected format support")
	}

	env := Environment{Now: func() time.Time { return now }}
	if err := host.Bind(env); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	params, errs := host.ValidateParameters(map[string]any{"limit": 5})
	if len(errs) != 0 {
		t.Fatalf("unexpected validation errors: %+v", errs)
	}
	if params["limit"].(int) != 5 {
		t.Fatalf("expected cleaned parameters to retain value")
	}

	selection := Selection{Domain: DomainAccession, IDs: []string{"acc-1"}}
	result, paramErrs, err := host.Run(context.Background(), map[string]any{"limit": 5}, selection, FormatJSON)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(paramErrs) != 0 {
		t.Fatalf("unexpected parameter errors: %+v", paramErrs)
	}
	if result.Format != FormatJSON {
		t.Fatalf("expected JSON format, got %s", result.Format)
	}
	if len(result.Rows) != 1 || result.Rows[0]["code"].(string) != "2024.0001" {
		t.Fatalf("unexpected rows: %+v", result.Rows)
	}
	if !result.GeneratedAt.Equal(now) {
		t.Fatalf("expected generated timestamp %v, got %v", now, result.GeneratedAt)
	}
}

func TestNewHostTemplateValidationErrors(t *testing.T) {
	base := func() Template {
		return Template{
			Key:           "labels",
			Version:       "1",
			Title:         "Labels",
			Domain:        DomainPlant,
			Columns:       []Column{{Name: "code", Type: "string"}},
			OutputFormats: []Format{FormatJSON},
			Binder: func(Environment) (Runner, error) {
				return func(context.Context, RunRequest) (RunResult, error) { return RunResult{}, nil }, nil
			},
		}
	}

	cases := []struct {
		name string
		mut  func(*Template)
	}{
		{"missing key", func(t *Template) { t.Key = "" }},
		{"missing version", func(t *Template) { t.Version = "" }},
		{"missing title", func(t *Template) { t.Title = "" }},
		{"bad domain", func(t *Template) { t.Domain = "nursery" }},
		{"missing columns", func(t *Template) { t.Columns = nil }},
		{"missing formats", func(t *Template) { t.OutputFormats = nil }},
		{"missing binder", func(t *Template) { t.Binder = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tpl := base()
			tc.mut(&tpl)
			if _, err := NewHostTemplate("report", tpl); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateParametersCoercion(t *testing.T) {
	defs := []Parameter{
		{Name: "limit", Type: "integer", Required: true},
		{Name: "rate", Type: "number"},
		{Name: "active", Type: "boolean"},
		{Name: "since", Type: "timestamp"},
		{Name: "on", Type: "date"},
		{Name: "rank", Type: "string", Enum: []string{"var.", "subsp."}},
		{Name: "page", Type: "integer", Default: json.RawMessage(`10`)},
	}

	cleaned, errs := validateParameters(defs, map[string]any{
		"limit":  "25",
		"rate":   "0.5",
		"active": "true",
		"since":  "2024-06-01T10:00:00Z",
		"on":     "2024-06-01",
		"rank":   "var.",
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if cleaned["limit"].(int) != 25 || cleaned["rate"].(float64) != 0.5 || cleaned["active"].(bool) != true {
		t.Fatalf("unexpected coercions: %+v", cleaned)
	}
	if cleaned["page"].(int) != 10 {
		t.Fatalf("expected default applied, got %+v", cleaned["page"])
	}

	_, errs = validateParameters(defs, map[string]any{"rank": "cv."})
	var messages []string
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	joined := strings.Join(messages, "; ")
	if !strings.Contains(joined, "required parameter missing") {
		t.Fatalf("expected missing limit error, got %s", joined)
	}
	if !strings.Contains(joined, "value must be one of") {
		t.Fatalf("expected enum error, got %s", joined)
	}

	_, errs = validateParameters(defs, map[string]any{"limit": 1, "bogus": true})
	joined = ""
	for _, e := range errs {
		joined += e.Error() + "; "
	}
	if !strings.Contains(joined, "parameter not declared") {
		t.Fatalf("expected undeclared parameter error, got %s", joined)
	}
}

func TestSortTemplateDescriptors(t *testing.T) {
	collection := []TemplateDescriptor{
		{Plugin: "b", Key: "alpha", Version: "2"},
		{Plugin: "a", Key: "beta", Version: "1"},
		{Plugin: "a", Key: "alpha", Version: "2"},
		{Plugin: "a", Key: "alpha", Version: "1"},
	}
	SortTemplateDescriptors(collection)
	expected := []TemplateDescriptor{
		{Plugin: "a", Key: "alpha", Version: "1"},
		{Plugin: "a", Key: "alpha", Version: "2"},
		{Plugin: "a", Key: "beta", Version: "1"},
		{Plugin: "b", Key: "alpha", Version: "2"},
	}
	for i, want := range expected {
		got := collection[i]
		if got.Plugin != want.Plugin || got.Key != want.Key || got.Version != want.Version {
			t.Fatalf("unexpected ordering at %d: %+v (want %+v)", i, got, want)
		}
	}
}

func TestRunRequiresBind(t *testing.T) {
	tpl := Template{
		Key:           "labels",
		Version:       "1",
		Title:         "Labels",
		Domain:        DomainSpecies,
		Columns:       []Column{{Name: "name", Type: "string"}},
		OutputFormats: []Format{FormatJSON},
		Binder: func(Environment) (Runner, error) {
			return func(context.Context, RunRequest) (RunResult, error) { return RunResult{}, nil }, nil
		},
	}
	host, err := NewHostTemplate("report", tpl)
	if err != nil {
		t.Fatalf("NewHostTemplate: %v", err)
	}
	if _, _, err := host.Run(context.Background(), nil, Selection{Domain: DomainSpecies}, FormatJSON); err == nil {
		t.Fatal("expected unbound template error")
	}
}
