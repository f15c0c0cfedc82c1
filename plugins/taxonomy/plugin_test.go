package taxonomy

import (
	"context"
	"testing"

	"floracore/internal/core"
	"floracore/pkg/reportapi"
	"floracore/plugins/testhelper"
)

func registeredRules(t *testing.T) map[string]core.Rule {
	t.Helper()
	registry := core.NewPluginRegistry()
	if err := New().Register(registry); err != nil {
		t.Fatalf("register plugin: %v", err)
	}
	rules := make(map[string]core.Rule)
	for _, rule := range registry.Rules() {
		rules[rule.Name()] = rule
	}
	return rules
}

func TestPluginRegistration(t *testing.T) {
	registry := core.NewPluginRegistry()
	if err := New().Register(registry); err != nil {
		t.Fatalf("register plugin: %v", err)
	}

	schema, ok := registry.Schemas()["species"]
	if !ok {
		t.Fatal("species schema not registered")
	}
	if id, _ := schema["$id"].(string); id != "floracore:taxonomy:species" {
		t.Fatalf("schema id = %v", schema["$id"])
	}

	if got := len(registry.Rules()); got != 2 {
		t.Fatalf("rules = %d", got)
	}

	templates := registry.ReportTemplates()
	if len(templates) != 1 {
		t.Fatalf("templates = %d", len(templates))
	}
	if templates[0].Key != "species-checklist" {
		t.Fatalf("template key = %s", templates[0].Key)
	}
	if templates[0].Binder == nil {
		t.Fatal("template binder missing")
	}
}

func TestEpithetExpectedRule(t *testing.T) {
	rule := registeredRules(t)["species_epithet_expected"]
	if rule == nil {
		t.Fatal("rule not registered")
	}
	view := testhelper.Collection()
	ctx := context.Background()

	bare := core.Species{Base: core.Base{ID: "sp-x"}, GenusID: "gen-acacia"}
	res, err := rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntitySpecies, bare)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != core.SeverityWarn {
		t.Fatalf("violations = %+v", res.Violations)
	}

	cultivarOnly := core.Species{Base: core.Base{ID: "sp-y"}, GenusID: "gen-acacia", Cultivar: "Purpurea"}
	res, err = rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntitySpecies, cultivarOnly)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestInfraspecificPairingRule(t *testing.T) {
	rule := registeredRules(t)["species_infraspecific_pairing"]
	if rule == nil {
		t.Fatal("rule not registered")
	}
	view := testhelper.Collection()
	ctx := context.Background()

	cases := []struct {
		name    string
		species core.Species
		want    int
	}{
		{
			name:    "rank without epithet",
			species: core.Species{Epithet: "dealbata", InfraRank: "var."},
			want:    1,
		},
		{
			name:    "epithet without rank",
			species: core.Species{Epithet: "dealbata", InfraEpithet: "subalpina"},
			want:    1,
		},
		{
			name:    "cultivar rank without cultivar",
			species: core.Species{Epithet: "dealbata", InfraRank: "cv."},
			want:    1,
		},
		{
			name:    "paired rank and epithet",
			species: core.Species{Epithet: "dealbata", InfraRank: "subsp.", InfraEpithet: "subalpina"},
			want:    0,
		},
		{
			name:    "cultivar rank with cultivar",
			species: core.Species{Epithet: "dealbata", InfraRank: "cv.", Cultivar: "Kambah Karpet"},
			want:    0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntitySpecies, tc.species)})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if len(res.Violations) != tc.want {
				t.Fatalf("violations = %+v", res.Violations)
			}
		})
	}
}

func TestSpeciesWarningsSurfaceThroughService(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	if _, err := svc.InstallPlugin(New()); err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	ctx := context.Background()

	family, _, err := svc.CreateFamily(ctx, core.Family{Epithet: "Fabaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	genus, _, err := svc.CreateGenus(ctx, core.Genus{Epithet: "Acacia", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}

	// Warn severity never blocks the commit.
	sp, res, err := svc.CreateSpecies(ctx, core.Species{GenusID: genus.ID})
	if err != nil {
		t.Fatalf("create species: %v", err)
	}
	if sp.ID == "" {
		t.Fatal("species not committed")
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != "species_epithet_expected" {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestInstallSeedsGeographies(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	store := svc.Store()
	ctx := context.Background()

	if err := New().Install(ctx, store, true); err != nil {
		t.Fatalf("install: %v", err)
	}

	geos := store.ListGeographies()
	byCode := make(map[string]core.Geography, len(geos))
	for _, geo := range geos {
		byCode[geo.Code] = geo
	}

	want := 0
	for _, continent := range wgsrpd {
		want += 1 + len(continent.regions)
	}
	if len(geos) != want {
		t.Fatalf("seeded %d geographies, want %d", len(geos), want)
	}

	australasia, ok := byCode["5"]
	if !ok || australasia.Name != "Australasia" {
		t.Fatalf("continent 5 = %+v", australasia)
	}
	australia, ok := byCode["50"]
	if !ok || australia.ParentID == nil || *australia.ParentID != australasia.ID {
		t.Fatalf("region 50 = %+v", australia)
	}

	// Repeated installs leave the table alone.
	if err := New().Install(ctx, store, false); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if err := New().Install(ctx, store, true); err != nil {
		t.Fatalf("fresh reinstall: %v", err)
	}
	if got := len(store.ListGeographies()); got != want {
		t.Fatalf("geographies after reinstall = %d, want %d", got, want)
	}
}

func TestChecklistTemplateRuns(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	meta, err := svc.InstallPlugin(New())
	if err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	if len(meta.Reports) != 1 {
		t.Fatalf("reports = %+v", meta.Reports)
	}

	template, ok := svc.ReportTemplate(meta.Reports[0].Slug)
	if !ok {
		t.Fatalf("template %s not resolved", meta.Reports[0].Slug)
	}

	ctx := context.Background()
	family, _, err := svc.CreateFamily(ctx, core.Family{Epithet: "Myrtaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	genus, _, err := svc.CreateGenus(ctx, core.Genus{Epithet: "Eucalyptus", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}
	if _, _, err := svc.CreateSpecies(ctx, core.Species{GenusID: genus.ID, Epithet: "regnans", Author: "F.Muell."}); err != nil {
		t.Fatalf("create species: %v", err)
	}

	result, paramErrs, err := template.Run(ctx, nil, reportapi.Selection{}, reportapi.FormatJSON)
	if err != nil {
		t.Fatalf("run template: %v", err)
	}
	if len(paramErrs) != 0 {
		t.Fatalf("parameter errors = %+v", paramErrs)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %+v", result.Rows)
	}
	row := result.Rows[0]
	if row["family"] != "Myrtaceae" || row["genus"] != "Eucalyptus" || row["epithet"] != "regnans" {
		t.Fatalf("row = %+v", row)
	}
}
