package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"floracore/internal/infra/persistence/memory"
	"floracore/pkg/domain"
	"floracore/pkg/pluginapi"
)

type fakePlugin struct {
	name        string
	version     string
	deps        []string
	order       *[]string
	registerErr error
}

func (p fakePlugin) Name() string           { return p.name }
func (p fakePlugin) Version() string        { return p.version }
func (p fakePlugin) Dependencies() []string { return p.deps }

func (p fakePlugin) Register(pluginapi.Registry) error {
	if p.order != nil {
		*p.order = append(*p.order, p.name)
	}
	return p.registerErr
}

type seedingPlugin struct {
	fakePlugin
	installs   *[]bool
	installErr error
}

func (p seedingPlugin) Install(_ context.Context, _ domain.PersistentStore, fresh bool) error {
	if p.installs != nil {
		*p.installs = append(*p.installs, fresh)
	}
	return p.installErr
}

func TestInstallAllOrdersByDependencies(t *testing.T) {
	var order []string
	svc := NewInMemoryService(domain.NewRulesEngine())
	manager := NewPluginManager(svc)

	results, err := manager.InstallAll(context.Background(),
		fakePlugin{name: "report", version: "1.0.0", deps: []string{"taxonomy", "garden"}, order: &order},
		fakePlugin{name: "garden", version: "1.0.0", deps: []string{"taxonomy"}, order: &order},
		fakePlugin{name: "taxonomy", version: "1.0.0", order: &order},
	)
	if err != nil {
		t.Fatalf("InstallAll: %v", err)
	}
	want := []string{"taxonomy", "garden", "report"}
	if len(order) != len(want) {
		t.Fatalf("expected %d registrations, got %v", len(want), order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
	for _, result := range results {
		if result.Err != nil {
			t.Fatalf("unexpected result error for %s: %v", result.Name, result.Err)
		}
		if !result.Fresh {
			t.Fatalf("expected fresh install for %s", result.Name)
		}
	}

	records := svc.Store().ListPluginRecords()
	if len(records) != 3 {
		t.Fatalf("expected 3 plugin records, got %d", len(records))
	}
	installed := svc.RegisteredPlugins()
	if len(installed) != 3 || installed[0].Name != "garden" || installed[1].Name != "report" || installed[2].Name != "taxonomy" {
		t.Fatalf("unexpected registered plugins: %+v", installed)
	}
}

func TestInstallAllRejectsUnknownDependency(t *testing.T) {
	svc := NewInMemoryService(domain.NewRulesEngine())
	manager := NewPluginManager(svc)

	_, err := manager.InstallAll(context.Background(),
		fakePlugin{name: "garden", version: "1", deps: []string{"taxonomy"}},
	)
	if err == nil || !strings.Contains(err.Error(), "unknown plugin taxonomy") {
		t.Fatalf("expected unknown dependency error, got %v", err)
	}
}

func TestInstallAllRejectsDependencyCycle(t *testing.T) {
	svc := NewInMemoryService(domain.NewRulesEngine())
	manager := NewPluginManager(svc)

	_, err := manager.InstallAll(context.Background(),
		fakePlugin{name: "a", version: "1", deps: []string{"b"}},
		fakePlugin{name: "b", version: "1", deps: []string{"a"}},
	)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestInstallAllSeedsFreshInstallsOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(domain.NewRulesEngine())
	var installs []bool

	plugin := seedingPlugin{
		fakePlugin: fakePlugin{name: "taxonomy", version: "1.0.0"},
		installs:   &installs,
	}

	first := NewPluginManager(NewService(store))
	results, err := first.InstallAll(ctx, plugin)
	if err != nil {
		t.Fatalf("first install: %v", err)
	}
	if !results[0].Fresh || results[0].Upgraded {
		t.Fatalf("unexpected first install flags: %+v", results[0])
	}

	upgraded := seedingPlugin{
		fakePlugin: fakePlugin{name: "taxonomy", version: "1.1.0"},
		installs:   &installs,
	}
	second := NewPluginManager(NewService(store))
	results, err = second.InstallAll(ctx, upgraded)
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if results[0].Fresh {
		t.Fatal("expected non-fresh reinstall")
	}
	if !results[0].Upgraded {
		t.Fatal("expected upgrade flag for version change")
	}

	if len(installs) != 2 || !installs[0] || installs[1] {
		t.Fatalf("unexpected installer fresh flags: %v", installs)
	}

	records := store.ListPluginRecords()
	if len(records) != 1 {
		t.Fatalf("expected 1 plugin record, got %d", len(records))
	}
	if records[0].Version != "1.1.0" {
		t.Fatalf("expected recorded version 1.1.0, got %s", records[0].Version)
	}
	if records[0].InstalledAt.IsZero() || records[0].UpdatedAt.Before(records[0].InstalledAt) {
		t.Fatalf("unexpected record timestamps: %+v", records[0])
	}
}

func TestInstallAllIsolatesFailuresAndSkipsDependents(t *testing.T) {
	svc := NewInMemoryService(domain.NewRulesEngine())
	manager := NewPluginManager(svc)

	var order []string
	results, err := manager.InstallAll(context.Background(),
		fakePlugin{name: "broken", version: "1", registerErr: errors.New("boom"), order: &order},
		fakePlugin{name: "dependent", version: "1", deps: []string{"broken"}, order: &order},
		fakePlugin{name: "independent", version: "1", order: &order},
	)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !strings.Contains(err.Error(), "broken") || !strings.Contains(err.Error(), "dependent") {
		t.Fatalf("expected aggregate error naming casualties, got %v", err)
	}
	if strings.Contains(err.Error(), "independent") {
		t.Fatalf("independent plugin should not be in the aggregate error: %v", err)
	}

	byName := make(map[string]InstallResult)
	for _, result := range results {
		byName[result.Name] = result
	}
	if byName["broken"].Err == nil {
		t.Fatal("expected broken plugin error")
	}
	if byName["dependent"].Err == nil || !strings.Contains(byName["dependent"].Err.Error(), "dependency broken failed") {
		t.Fatalf("expected dependent skip error, got %v", byName["dependent"].Err)
	}
	if byName["independent"].Err != nil {
		t.Fatalf("independent plugin should install: %v", byName["independent"].Err)
	}

	records := svc.Store().ListPluginRecords()
	if len(records) != 1 || records[0].Name != "independent" {
		t.Fatalf("expected only independent recorded, got %+v", records)
	}
}
