// Package reportapi defines the contract between report plugins and the host.
// Plugins contribute declarative templates; the host binds them to a runtime
// environment and executes them against a selection of collection objects.
package reportapi

import (
	"context"
	"encoding/json"
	"time"

	"floracore/pkg/domain"
)

// Domain identifies the collection a report template draws its rows from.
type Domain string

const (
	DomainSpecies   Domain = "species"
	DomainAccession Domain = "accession"
	DomainPlant     Domain = "plant"
	DomainLocation  Domain = "location"
)

// Format names a report output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXML  Format = "xml"
	FormatXLSX Format = "xlsx"
)

// Parameter declares a template input.
type Parameter struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Required    bool            `json:"required"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Example     json.RawMessage `json:"example,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
}

// Column describes one output column. Path, when set, is the dotted path into
// the entity graph the value is resolved from.
type Column struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Type        string `json:"type"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description,omitempty"`
}

// Metadata carries non-functional template annotations.
type Metadata struct {
	Source        string            `json:"source,omitempty"`
	Documentation string            `json:"documentation,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Annotations   map[string]string `json:"annotations,omitempty"`
}

// Selection scopes a report run to a set of objects. An empty ID list means
// every object in the domain.
type Selection struct {
	Domain Domain   `json:"domain"`
	IDs    []string `json:"ids,omitempty"`
}

// Environment is the host runtime handed to template binders.
type Environment struct {
	Store domain.PersistentStore
	Now   func() time.Time
}

// Template is the declarative report definition a plugin registers.
type Template struct {
	Key           string
	Version       string
	Title         string
	Description   string
	Domain        Domain
	Parameters    []Parameter
	Columns       []Column
	Metadata      Metadata
	OutputFormats []Format
	Binder        Binder
}

// TemplateDescriptor is the serializable snapshot of a registered template.
type TemplateDescriptor struct {
	Plugin        string      `json:"plugin"`
	Key           string      `json:"key"`
	Version       string      `json:"version"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Domain        Domain      `json:"domain"`
	Parameters    []Parameter `json:"parameters"`
	Columns       []Column    `json:"columns"`
	Metadata      Metadata    `json:"metadata"`
	OutputFormats []Format    `json:"output_formats"`
	Slug          string      `json:"slug"`
}

// RunRequest is handed to a bound runner for a single execution.
type RunRequest struct {
	Template   TemplateDescriptor
	Parameters map[string]any
	Selection  Selection
}

// RunResult is the materialized report payload.
type RunResult struct {
	Schema      []Column         `json:"schema"`
	Rows        []map[string]any `json:"rows"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
	Format      Format           `json:"format"`
}

// Runner executes a bound template.
type Runner func(context.Context, RunRequest) (RunResult, error)

// Binder attaches a template to the host environment, producing its runner.
type Binder func(Environment) (Runner, error)

// ParameterError reports a single invalid or missing template parameter.
type ParameterError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (e ParameterError) Error() string {
	return e.Name + ": " + e.Message
}

// TemplateRuntime is the read/run surface the host exposes for a registered
// template.
type TemplateRuntime interface {
	Plugin() string
	Template() Template
	Descriptor() TemplateDescriptor
	Slug() string
	SupportsFormat(Format) bool
	ValidateParameters(map[string]any) (map[string]any, []ParameterError)
	Run(ctx context.Context, params map[string]any, selection Selection, format Format) (RunResult, []ParameterError, error)
}
