// Package pluginapi defines the contract plugins implement to extend the host
// with rules, schema fragments, and report templates.
package pluginapi

import (
	"context"

	"floracore/pkg/domain"
	"floracore/pkg/reportapi"
)

// Registry accumulates plugin contributions during registration.
type Registry interface {
	RegisterSchema(entity string, schema map[string]any)
	RegisterRule(rule domain.Rule)
	RegisterReportTemplate(template reportapi.Template) error
}

// Plugin describes an extension module. Dependencies lists plugin names that
// must be installed and registered before this one.
type Plugin interface {
	Name() string
	Version() string
	Dependencies() []string
	Register(Registry) error
}

// Installer is implemented by plugins that seed records after registration.
// Fresh is true when the plugin has never been installed into the store, so
// one-time defaults belong behind it; repeated installs receive false and are
// expected to be idempotent.
type Installer interface {
	Install(ctx context.Context, store domain.PersistentStore, fresh bool) error
}

const Version = "v1"
