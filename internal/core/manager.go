package core

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"floracore/pkg/pluginapi"
)

// PluginManager installs a set of plugins in dependency order, tracking
// installed versions in the store so one-time seed data runs exactly once.
type PluginManager struct {
	service *Service
}

// NewPluginManager wraps the service with ordered plugin installation.
func NewPluginManager(service *Service) *PluginManager {
	return &PluginManager{service: service}
}

// InstallResult describes the outcome for one plugin.
type InstallResult struct {
	Name     string
	Version  string
	Fresh    bool
	Upgraded bool
	Err      error
}

// InstallAll registers every plugin in topological dependency order, seeds
// plugins implementing pluginapi.Installer, and records name and version in
// the store. A failing plugin does not abort the run; its dependents are
// skipped and the aggregate error names every casualty.
func (m *PluginManager) InstallAll(ctx context.Context, plugins ...pluginapi.Plugin) ([]InstallResult, error) {
	ordered, err := sortPlugins(plugins)
	if err != nil {
		return nil, err
	}

	records := make(map[string]PluginRecord)
	for _, record := range m.service.Store().ListPluginRecords() {
		records[record.Name] = record
	}

	failed := make(map[string]error)
	results := make([]InstallResult, 0, len(ordered))
	for _, plugin := range ordered {
		result := InstallResult{Name: plugin.Name(), Version: plugin.Version()}
		if dep, err := failedDependency(plugin, failed); err != nil {
			result.Err = err
			failed[plugin.Name()] = fmt.Errorf("dependency %s failed", dep)
			results = append(results, result)
			continue
		}

		record, known := records[plugin.Name()]
		result.Fresh = !known
		result.Upgraded = known && record.Version != plugin.Version()

		if err := m.installOne(ctx, plugin, result.Fresh); err != nil {
			result.Err = err
			failed[plugin.Name()] = err
			m.service.logger.Error("plugin install failed", "plugin", plugin.Name(), "error", err)
		}
		results = append(results, result)
	}

	if len(failed) == 0 {
		return results, nil
	}
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return results, fmt.Errorf("plugin install failed for: %s", strings.Join(names, ", "))
}

func (m *PluginManager) installOne(ctx context.Context, plugin pluginapi.Plugin, fresh bool) error {
	if _, err := m.service.InstallPlugin(plugin); err != nil {
		return err
	}
	if installer, ok := plugin.(pluginapi.Installer); ok {
		if err := installer.Install(ctx, m.service.Store(), fresh); err != nil {
			return fmt.Errorf("seed %s: %w", plugin.Name(), err)
		}
	}
	_, err := m.service.Store().RunInTransaction(ctx, func(tx Transaction) error {
		_, err := tx.SavePluginRecord(PluginRecord{Name: plugin.Name(), Version: plugin.Version()})
		return err
	})
	if err != nil {
		return fmt.Errorf("record %s: %w", plugin.Name(), err)
	}
	return nil
}

func failedDependency(plugin pluginapi.Plugin, failed map[string]error) (string, error) {
	for _, dep := range plugin.Dependencies() {
		if _, ok := failed[dep]; ok {
			return dep, fmt.Errorf("dependency %s failed", dep)
		}
	}
	return "", nil
}

// sortPlugins orders plugins so every dependency precedes its dependents,
// breaking ties by name. Unknown dependencies and cycles are errors.
func sortPlugins(plugins []pluginapi.Plugin) ([]pluginapi.Plugin, error) {
	byName := make(map[string]pluginapi.Plugin, len(plugins))
	for _, plugin := range plugins {
		if plugin == nil {
			return nil, fmt.Errorf("plugin cannot be nil")
		}
		name := plugin.Name()
		if name == "" {
			return nil, fmt.Errorf("plugin name cannot be empty")
		}
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("duplicate plugin %s", name)
		}
		byName[name] = plugin
	}

	indegree := make(map[string]int, len(plugins))
	dependents := make(map[string][]string, len(plugins))
	for name, plugin := range byName {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range plugin.Dependencies() {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("plugin %s depends on unknown plugin %s", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, degree := range indegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]pluginapi.Plugin, 0, len(plugins))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byName[name])
		released := false
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(plugins) {
		var stuck []string
		for name, degree := range indegree {
			if degree > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("plugin dependency cycle involving: %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}
