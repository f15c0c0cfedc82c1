package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
	"floracore/pkg/pluginapi"
	"floracore/pkg/reportapi"
)

// slugRE constrains plugin names, template keys and rule names. Slugs end
// up in report identifiers and plugin records, so they stay lowercase.
var slugRE = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// parameterTypes lists the types the host coercion layer understands.
var parameterTypes = map[string]struct{}{
	"string":    {},
	"integer":   {},
	"number":    {},
	"boolean":   {},
	"timestamp": {},
	"date":      {},
}

var knownFormats = map[reportapi.Format]struct{}{
	reportapi.FormatJSON: {},
	reportapi.FormatCSV:  {},
	reportapi.FormatXML:  {},
	reportapi.FormatXLSX: {},
}

// captureRegistry records plugin contributions without applying them.
type captureRegistry struct {
	schemas   []capturedSchema
	rules     []domain.Rule
	templates []reportapi.Template
}

type capturedSchema struct {
	entity string
	schema map[string]any
}

func (r *captureRegistry) RegisterSchema(entity string, schema map[string]any) {
	r.schemas = append(r.schemas, capturedSchema{entity: entity, schema: schema})
}

func (r *captureRegistry) RegisterRule(rule domain.Rule) {
	r.rules = append(r.rules, rule)
}

func (r *captureRegistry) RegisterReportTemplate(tpl reportapi.Template) error {
	r.templates = append(r.templates, tpl)
	return nil
}

var _ pluginapi.Registry = (*captureRegistry)(nil)

// ValidatePlugin runs the plugin's Register against a capturing registry and
// checks every contribution against the entity model: schema extensions must
// target known tables without shadowing built-in columns, rules need unique
// names, and template columns must resolve as dotted paths from the
// template's domain.
func ValidatePlugin(p pluginapi.Plugin) []Error {
	name := p.Name()
	var errors []Error
	fail := func(code, format string, args ...any) {
		errors = append(errors, Error{File: name, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if !slugRE.MatchString(name) {
		fail(name, "plugin name must be a lowercase slug")
	}
	if strings.TrimSpace(p.Version()) == "" {
		fail("", "plugin version required")
	}

	registry := &captureRegistry{}
	if err := p.Register(registry); err != nil {
		fail("", "registration failed: %v", err)
		return errors
	}

	for _, schema := range registry.schemas {
		errors = append(errors, validateSchemaFragment(name, schema)...)
	}

	ruleNames := make(map[string]struct{}, len(registry.rules))
	for _, rule := range registry.rules {
		ruleName := rule.Name()
		if ruleName == "" {
			fail("", "rule registered with an empty name")
			continue
		}
		if !slugRE.MatchString(ruleName) {
			fail(ruleName, "rule name must be a lowercase slug")
		}
		if _, dup := ruleNames[ruleName]; dup {
			fail(ruleName, "duplicate rule name %q", ruleName)
		}
		ruleNames[ruleName] = struct{}{}
	}

	templateKeys := make(map[string]struct{}, len(registry.templates))
	for _, tpl := range registry.templates {
		if _, dup := templateKeys[tpl.Key]; dup {
			fail(tpl.Key, "duplicate template key %q", tpl.Key)
		}
		templateKeys[tpl.Key] = struct{}{}
		errors = append(errors, validateTemplateContract(name, tpl)...)
	}

	return errors
}

// ValidateSuite validates each plugin and the suite-level wiring between
// them: names must be unique and every declared dependency must be part of
// the suite. Install ordering and cycle detection stay with the plugin
// manager; this catches a dependency that could never be satisfied.
func ValidateSuite(plugins ...pluginapi.Plugin) []Error {
	var errors []Error
	names := make(map[string]int, len(plugins))
	for _, p := range plugins {
		names[p.Name()]++
	}
	for name, count := range names {
		if count > 1 {
			errors = append(errors, Error{File: name, Message: fmt.Sprintf("plugin name %q used by %d plugins", name, count), Code: name})
		}
	}
	for _, p := range plugins {
		errors = append(errors, ValidatePlugin(p)...)
		for _, dep := range p.Dependencies() {
			switch {
			case dep == p.Name():
				errors = append(errors, Error{File: p.Name(), Message: "plugin depends on itself", Code: dep})
			case names[dep] == 0:
				errors = append(errors, Error{File: p.Name(), Message: fmt.Sprintf("dependency %q is not part of the suite", dep), Code: dep})
			}
		}
	}
	return errors
}

func validateSchemaFragment(plugin string, captured capturedSchema) []Error {
	var errors []Error
	fail := func(code, format string, args ...any) {
		errors = append(errors, Error{File: plugin, Message: fmt.Sprintf(format, args...), Code: code})
	}

	desc, ok := entitymodel.Lookup(captured.entity)
	if !ok || desc.Entity == "" {
		fail(captured.entity, "schema extension targets unknown entity %q", captured.entity)
		return errors
	}
	if captured.schema == nil {
		fail(captured.entity, "schema extension for %q is empty", captured.entity)
		return errors
	}
	props, present := captured.schema["properties"]
	if !present {
		return errors
	}
	propMap, ok := props.(map[string]any)
	if !ok {
		fail(captured.entity, "schema properties for %q must be an object", captured.entity)
		return errors
	}
	for key := range propMap {
		if key == "" {
			fail(captured.entity, "schema extension for %q declares an unnamed property", captured.entity)
			continue
		}
		if _, shadow := desc.Field(key); shadow {
			fail(key, "schema property %q shadows a built-in column of %s", key, desc.Table)
		}
	}
	return errors
}

func validateTemplateContract(plugin string, tpl reportapi.Template) []Error {
	var errors []Error
	fail := func(code, format string, args ...any) {
		errors = append(errors, Error{File: plugin, Message: fmt.Sprintf(format, args...), Code: code})
	}

	// The host performs structural validation when a template is registered
	// for real; reuse it so lint findings match install-time failures.
	host, err := reportapi.NewHostTemplate(plugin, tpl)
	if err != nil {
		fail(tpl.Key, "template %q rejected: %v", tpl.Key, err)
		return errors
	}

	if !slugRE.MatchString(tpl.Key) {
		fail(tpl.Key, "template key must be a lowercase slug")
	}

	desc, ok := entitymodel.Lookup(string(tpl.Domain))
	if !ok || desc.Entity == "" {
		fail(string(tpl.Domain), "template %q draws from unknown domain %q", tpl.Key, tpl.Domain)
		return errors
	}

	for _, col := range tpl.Columns {
		if col.Name == "" {
			fail(tpl.Key, "template %q declares an unnamed column", tpl.Key)
			continue
		}
		path := col.Path
		if path == "" {
			path = col.Name
		}
		if _, _, err := entitymodel.PathTarget(desc, path); err != nil {
			fail(path, "template %q column %q does not resolve: %v", tpl.Key, col.Name, err)
		}
	}

	for _, param := range tpl.Parameters {
		if _, ok := parameterTypes[param.Type]; !ok {
			fail(param.Name, "template %q parameter %q has unknown type %q", tpl.Key, param.Name, param.Type)
		}
		if len(param.Enum) > 0 && param.Type != "string" {
			fail(param.Name, "template %q parameter %q: enum constraints apply to string parameters only", tpl.Key, param.Name)
		}
		if param.Required && len(param.Default) > 0 {
			fail(param.Name, "template %q parameter %q: a default on a required parameter is never applied", tpl.Key, param.Name)
		}
		if len(param.Default) > 0 && !json.Valid(param.Default) {
			fail(param.Name, "template %q parameter %q default is not valid JSON", tpl.Key, param.Name)
		}
	}

	for _, format := range tpl.OutputFormats {
		if _, ok := knownFormats[format]; !ok {
			fail(string(format), "template %q declares unsupported output format %q", tpl.Key, format)
		}
	}

	// Exercising validation with no supplied values coerces every declared
	// default, surfacing defaults that do not match their parameter type.
	if _, paramErrs := host.ValidateParameters(nil); len(paramErrs) > 0 {
		for _, perr := range paramErrs {
			if perr.Message == "required parameter missing" {
				continue
			}
			fail(perr.Name, "template %q parameter %s: %s", tpl.Key, perr.Name, perr.Message)
		}
	}

	return errors
}
