package garden

import (
	"context"
	"errors"
	"testing"

	"floracore/internal/core"
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
	rules := registeredRules(t)
	for _, name := range []string{
		"accession_wild_status",
		"accession_id_qualifier_rank",
		"collection_coordinates",
		"plant_quantity",
	} {
		if rules[name] == nil {
			t.Fatalf("rule %s not registered", name)
		}
	}
	if deps := New().Dependencies(); len(deps) != 1 || deps[0] != "taxonomy" {
		t.Fatalf("dependencies = %v", deps)
	}
}

func TestWildStatusRule(t *testing.T) {
	rule := registeredRules(t)["accession_wild_status"]
	view := testhelper.Collection()
	ctx := context.Background()

	cultivated := core.Accession{
		Base:           core.Base{ID: "acc-c"},
		Code:           "2024.0002",
		SpeciesID:      "sp-dealbata",
		Provenance:     "Cultivated",
		WildProvenance: "WildNative",
	}
	res, err := rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityAccession, cultivated)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != core.SeverityWarn {
		t.Fatalf("violations = %+v", res.Violations)
	}

	wild := cultivated
	wild.Provenance = "Wild"
	res, err = rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityAccession, wild)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestIDQualifierRule(t *testing.T) {
	rule := registeredRules(t)["accession_id_qualifier_rank"]
	view := testhelper.Collection()
	ctx := context.Background()

	unranked := core.Accession{Base: core.Base{ID: "acc-q"}, Code: "2024.0003", IDQualifier: "cf."}
	res, err := rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityAccession, unranked)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != core.SeverityBlock {
		t.Fatalf("violations = %+v", res.Violations)
	}

	ranked := unranked
	ranked.IDQualifierRank = "sp"
	res, err = rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityAccession, ranked)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestCoordinateRule(t *testing.T) {
	rule := registeredRules(t)["collection_coordinates"]
	view := testhelper.Collection()
	ctx := context.Background()

	coords := func(lat, lon *float64) core.Accession {
		return core.Accession{
			Base:      core.Base{ID: "acc-g"},
			Code:      "2024.0004",
			SpeciesID: "sp-dealbata",
			Source: &core.Source{
				Collection: &core.Collection{Latitude: lat, Longitude: lon},
			},
		}
	}
	f := func(v float64) *float64 { return &v }

	cases := []struct {
		name     string
		acc      core.Accession
		want     int
		severity core.Severity
	}{
		{name: "valid pair", acc: coords(f(-35.28), f(149.13)), want: 0},
		{name: "latitude out of range", acc: coords(f(95), f(10)), want: 1, severity: core.SeverityBlock},
		{name: "longitude out of range", acc: coords(f(10), f(-181)), want: 1, severity: core.SeverityBlock},
		{name: "latitude only", acc: coords(f(10), nil), want: 1, severity: core.SeverityWarn},
		{name: "no collection", acc: core.Accession{Base: core.Base{ID: "acc-h"}, Code: "2024.0005"}, want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityAccession, tc.acc)})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if len(res.Violations) != tc.want {
				t.Fatalf("violations = %+v", res.Violations)
			}
			if tc.want > 0 && res.Violations[0].Severity != tc.severity {
				t.Fatalf("severity = %q", res.Violations[0].Severity)
			}
		})
	}
}

func TestPlantQuantityRule(t *testing.T) {
	rule := registeredRules(t)["plant_quantity"]
	view := testhelper.Collection()
	ctx := context.Background()

	negative := core.Plant{Base: core.Base{ID: "plt-n"}, Code: "2", AccessionID: "acc-1", LocationID: "loc-beds", Quantity: -1}
	res, err := rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityPlant, negative)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != core.SeverityBlock {
		t.Fatalf("violations = %+v", res.Violations)
	}

	// Dead plants keep their record at quantity zero.
	dead := negative
	dead.Quantity = 0
	res, err = rule.Evaluate(ctx, view, []core.Change{testhelper.Created(core.EntityPlant, dead)})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("violations = %+v", res.Violations)
	}
}

func TestBlockingRulesRejectThroughService(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	if _, err := svc.InstallPlugin(New()); err != nil {
		t.Fatalf("install plugin: %v", err)
	}
	ctx := context.Background()

	family, _, err := svc.CreateFamily(ctx, core.Family{Epithet: "Proteaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	genus, _, err := svc.CreateGenus(ctx, core.Genus{Epithet: "Banksia", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}
	species, _, err := svc.CreateSpecies(ctx, core.Species{GenusID: genus.ID, Epithet: "serrata"})
	if err != nil {
		t.Fatalf("create species: %v", err)
	}

	_, _, err = svc.CreateAccession(ctx, core.Accession{
		Code:        "2024.0001",
		SpeciesID:   species.ID,
		IDQualifier: "aff.",
	})
	if err == nil {
		t.Fatal("expected accession with unranked qualifier to be rejected")
	}
	var ruleErr core.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("error = %v", err)
	}
	if len(ruleErr.Result.Violations) != 1 || ruleErr.Result.Violations[0].Rule != "accession_id_qualifier_rank" {
		t.Fatalf("violations = %+v", ruleErr.Result.Violations)
	}

	// The same accession with a rank commits, with the wild status warning attached.
	acc, res, err := svc.CreateAccession(ctx, core.Accession{
		Code:            "2024.0001",
		SpeciesID:       species.ID,
		IDQualifier:     "aff.",
		IDQualifierRank: "sp",
		Provenance:      "Cultivated",
		WildProvenance:  "WildNative",
	})
	if err != nil {
		t.Fatalf("create accession: %v", err)
	}
	if acc.ID == "" {
		t.Fatal("accession not committed")
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != "accession_wild_status" {
		t.Fatalf("violations = %+v", res.Violations)
	}
}
