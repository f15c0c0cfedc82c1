package core

import (
	"fmt"
	"sort"

	"floracore/pkg/pluginapi"
	"floracore/pkg/reportapi"
)

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	rules   []Rule
	schemas map[string]map[string]any
	reports map[string]reportapi.Template
}

var _ pluginapi.Registry = (*PluginRegistry)(nil)

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{
		schemas: make(map[string]map[string]any),
		reports: make(map[string]reportapi.Template),
	}
}

// RegisterRule adds an in-transaction rule contributed by the plugin.
func (r *PluginRegistry) RegisterRule(rule Rule) {
	if rule == nil {
		return
	}
	r.rules = append(r.rules, rule)
}

// RegisterSchema stores a JSON Schema fragment for an entity type.
func (r *PluginRegistry) RegisterSchema(entity string, schema map[string]any) {
	if entity == "" || schema == nil {
		return
	}
	cp := make(map[string]any, len(schema))
	for k, v := range schema {
		cp[k] = v
	}
	r.schemas[entity] = cp
}

// RegisterReportTemplate stores a report template contributed by the plugin.
func (r *PluginRegistry) RegisterReportTemplate(template reportapi.Template) error {
	if _, err := reportapi.NewHostTemplate("", template); err != nil {
		return err
	}
	key := fmt.Sprintf("%s@%s", template.Key, template.Version)
	if _, exists := r.reports[key]; exists {
		return fmt.Errorf("report template %s already registered", key)
	}
	r.reports[key] = template
	return nil
}

// Rules returns a copy of registered rules.
func (r *PluginRegistry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Schemas returns a copy of registered schema fragments keyed by entity type.
func (r *PluginRegistry) Schemas() map[string]map[string]any {
	out := make(map[string]map[string]any, len(r.schemas))
	for entity, schema := range r.schemas {
		cp := make(map[string]any, len(schema))
		for k, v := range schema {
			cp[k] = v
		}
		out[entity] = cp
	}
	return out
}

// ReportTemplates returns registered templates ordered by key and version.
func (r *PluginRegistry) ReportTemplates() []reportapi.Template {
	keys := make([]string, 0, len(r.reports))
	for key := range r.reports {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]reportapi.Template, 0, len(keys))
	for _, key := range keys {
		out = append(out, r.reports[key])
	}
	return out
}

// PluginMetadata stores metadata describing an installed plugin.
type PluginMetadata struct {
	Name         string
	Version      string
	Dependencies []string
	Schemas      map[string]map[string]any
	Reports      []reportapi.TemplateDescriptor
}

// InstallPlugin registers a plugin, wiring its rules into the active engine and
// its report templates into the service catalog. Dependency ordering and seed
// data are the PluginManager's job; InstallPlugin alone performs neither.
func (s *Service) InstallPlugin(plugin pluginapi.Plugin) (PluginMetadata, error) {
	if plugin == nil {
		return PluginMetadata{}, fmt.Errorf("plugin cannot be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plugins[plugin.Name()]; ok {
		return PluginMetadata{}, fmt.Errorf("plugin %s already registered", plugin.Name())
	}

	registry := NewPluginRegistry()
	if err := plugin.Register(registry); err != nil {
		return PluginMetadata{}, err
	}

	if s.engine != nil {
		for _, rule := range registry.Rules() {
			s.engine.Register(rule)
		}
	}

	env := reportapi.Environment{Store: s.store, Now: s.nowFn}
	var descriptors []reportapi.TemplateDescriptor
	for _, tpl := range registry.ReportTemplates() {
		host, err := reportapi.NewHostTemplate(plugin.Name(), tpl)
		if err != nil {
			return PluginMetadata{}, err
		}
		if err := host.Bind(env); err != nil {
			return PluginMetadata{}, fmt.Errorf("bind template %s: %w", host.Slug(), err)
		}
		slug := host.Slug()
		if _, exists := s.templates[slug]; exists {
			return PluginMetadata{}, fmt.Errorf("report template %s already installed", slug)
		}
		installed := host
		s.templates[slug] = &installed
		descriptors = append(descriptors, installed.Descriptor())
	}

	meta := PluginMetadata{
		Name:         plugin.Name(),
		Version:      plugin.Version(),
		Dependencies: append([]string(nil), plugin.Dependencies()...),
		Schemas:      registry.Schemas(),
		Reports:      descriptors,
	}
	s.plugins[plugin.Name()] = meta
	s.logger.Info("plugin registered", "plugin", plugin.Name(), "version", plugin.Version())
	return meta, nil
}

// RegisteredPlugins returns metadata describing installed plugins ordered by name.
func (s *Service) RegisteredPlugins() []PluginMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginMetadata, 0, len(s.plugins))
	for _, meta := range s.plugins {
		out = append(out, clonePluginMetadata(meta))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ReportTemplates returns descriptors for every installed report template in
// deterministic order.
func (s *Service) ReportTemplates() []reportapi.TemplateDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reportapi.TemplateDescriptor, 0, len(s.templates))
	for _, host := range s.templates {
		out = append(out, host.Descriptor())
	}
	reportapi.SortTemplateDescriptors(out)
	return out
}

// ReportTemplate resolves an installed template by slug (plugin/key@version).
func (s *Service) ReportTemplate(slug string) (reportapi.TemplateRuntime, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	host, ok := s.templates[slug]
	if !ok {
		return nil, false
	}
	return host, true
}

func clonePluginMetadata(meta PluginMetadata) PluginMetadata {
	cloned := meta
	cloned.Dependencies = append([]string(nil), meta.Dependencies...)
	if meta.Schemas != nil {
		cloned.Schemas = make(map[string]map[string]any, len(meta.Schemas))
		for entity, schema := range meta.Schemas {
			cp := make(map[string]any, len(schema))
			for k, v := range schema {
				cp[k] = v
			}
			cloned.Schemas[entity] = cp
		}
	}
	cloned.Reports = append([]reportapi.TemplateDescriptor(nil), meta.Reports...)
	return cloned
}
