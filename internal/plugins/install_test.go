package plugins

import (
	"context"
	"errors"
	"testing"

	"floracore/internal/core"
	"floracore/internal/infra/persistence/memory"
	"floracore/pkg/domain"
	"floracore/plugins/garden"
	"floracore/plugins/report"
	"floracore/plugins/taxonomy"
)

func installSuite(t *testing.T, store domain.PersistentStore) (*core.Service, []core.InstallResult) {
	t.Helper()
	svc := core.NewService(store)
	results, err := core.NewPluginManager(svc).InstallAll(context.Background(),
		report.New(), garden.New(), taxonomy.New())
	if err != nil {
		t.Fatalf("install suite: %v", err)
	}
	return svc, results
}

func TestSuiteInstallsInDependencyOrder(t *testing.T) {
	store := memory.NewStore(domain.NewRulesEngine())
	svc, results := installSuite(t, store)

	want := []string{"taxonomy", "garden", "report"}
	if len(results) != len(want) {
		t.Fatalf("results = %+v", results)
	}
	for i, name := range want {
		if results[i].Name != name {
			t.Fatalf("install order = %+v", results)
		}
		if !results[i].Fresh || results[i].Upgraded || results[i].Err != nil {
			t.Fatalf("unexpected flags for %s: %+v", name, results[i])
		}
	}

	records := store.ListPluginRecords()
	if len(records) != 3 {
		t.Fatalf("plugin records = %+v", records)
	}
	for _, record := range records {
		if record.Version != "1.0.0" {
			t.Fatalf("recorded version for %s = %s", record.Name, record.Version)
		}
	}

	if got := len(svc.ReportTemplates()); got != 4 {
		t.Fatalf("report templates = %d", got)
	}
	slugs := []string{
		"taxonomy/species-checklist@1.0.0",
		"report/accession-ledger@1.0.0",
		"report/plant-inventory@1.0.0",
		"report/location-holdings@1.0.0",
	}
	for _, slug := range slugs {
		if _, ok := svc.ReportTemplate(slug); !ok {
			t.Fatalf("template %s not resolved", slug)
		}
	}
}

func TestSuiteSeedsGeographyHierarchy(t *testing.T) {
	store := memory.NewStore(domain.NewRulesEngine())
	installSuite(t, store)

	byCode := make(map[string]domain.Geography)
	for _, geo := range store.ListGeographies() {
		byCode[geo.Code] = geo
	}
	if len(byCode) == 0 {
		t.Fatal("expected seeded geographies")
	}

	australasia, ok := byCode["5"]
	if !ok {
		t.Fatal("continent 5 missing")
	}
	if australasia.ParentID != nil {
		t.Fatalf("continent 5 has parent %v", *australasia.ParentID)
	}
	australia, ok := byCode["50"]
	if !ok {
		t.Fatal("region 50 missing")
	}
	if australia.ParentID == nil || *australia.ParentID != australasia.ID {
		t.Fatalf("region 50 parent = %+v", australia.ParentID)
	}
}

func TestSuiteReinstallAfterRestartIsIdempotent(t *testing.T) {
	store := memory.NewStore(domain.NewRulesEngine())
	installSuite(t, store)
	seeded := len(store.ListGeographies())

	// A restart builds a new service over the surviving store. The recorded
	// versions must keep the seeder from running again.
	_, results := installSuite(t, store)
	for _, result := range results {
		if result.Fresh || result.Upgraded || result.Err != nil {
			t.Fatalf("unexpected reinstall flags: %+v", result)
		}
	}
	if got := len(store.ListGeographies()); got != seeded {
		t.Fatalf("geography count changed from %d to %d", seeded, got)
	}
	if records := store.ListPluginRecords(); len(records) != 3 {
		t.Fatalf("plugin records = %+v", records)
	}
}

func TestSuiteRulesActiveAfterInstall(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(domain.NewRulesEngine())
	svc, _ := installSuite(t, store)

	family, _, err := svc.CreateFamily(ctx, core.Family{Epithet: "Myrtaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	genus, _, err := svc.CreateGenus(ctx, core.Genus{Epithet: "Eucalyptus", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}

	// Taxonomy's completeness rule warns without blocking the commit.
	species, result, err := svc.CreateSpecies(ctx, core.Species{GenusID: genus.ID})
	if err != nil {
		t.Fatalf("create species: %v", err)
	}
	if len(result.Violations) != 1 || result.Violations[0].Rule != "species_epithet_expected" {
		t.Fatalf("violations = %+v", result.Violations)
	}

	// Garden's qualifier rule blocks the accession outright.
	_, _, err = svc.CreateAccession(ctx, core.Accession{
		Code:        "2026.0001",
		SpeciesID:   species.ID,
		IDQualifier: "cf.",
	})
	var ruleErr core.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(ruleErr.Result.Violations) != 1 || ruleErr.Result.Violations[0].Rule != "accession_id_qualifier_rank" {
		t.Fatalf("violations = %+v", ruleErr.Result.Violations)
	}
}
