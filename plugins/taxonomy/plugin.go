// Package taxonomy is the built-in plugin for the taxon model. It
// contributes advisory completeness rules for species records, a species
// schema extension, and the species checklist report template.
package taxonomy

import (
	"context"

	"floracore/internal/core"
	"floracore/internal/report"
	"floracore/pkg/pluginapi"
	"floracore/pkg/reportapi"
)

// Plugin implements the built-in taxonomy module.
type Plugin struct{}

// New constructs a taxonomy plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "taxonomy" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "1.0.0" }

// Dependencies returns the plugins that must be installed first.
func (Plugin) Dependencies() []string { return nil }

// Register wires taxon-specific schema extensions, rules, and the
// checklist template.
func (Plugin) Register(registry pluginapi.Registry) error {
	registry.RegisterSchema("species", map[string]any{
		"$id":  "floracore:taxonomy:species",
		"type": "object",
		"properties": map[string]any{
			"habit": map[string]any{
				"type":        "string",
				"description": "Growth habit (tree, shrub, herb, climber, ...)",
			},
			"flower_color": map[string]any{
				"type":        "string",
				"description": "Dominant flower color as displayed on labels",
			},
			"awards": map[string]any{
				"type":        "string",
				"description": "Horticultural awards held by this taxon",
			},
		},
	})

	registry.RegisterRule(epithetExpectedRule{})
	registry.RegisterRule(infraspecificPairingRule{})

	return registry.RegisterReportTemplate(checklistTemplate())
}

// epithetExpectedRule flags species that name neither a specific epithet
// nor a cultivar. Such records are determined only to genus rank and
// usually await a proper identification.
type epithetExpectedRule struct{}

func (epithetExpectedRule) Name() string { return "species_epithet_expected" }

func (epithetExpectedRule) Evaluate(_ context.Context, _ core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, change := range changes {
		sp, ok := change.After.(core.Species)
		if !ok {
			continue
		}
		if sp.Epithet != "" || sp.InfraEpithet != "" || sp.Cultivar != "" {
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     "species_epithet_expected",
			Severity: core.SeverityWarn,
			Message:  "species names neither a specific epithet nor a cultivar",
			Entity:   core.EntitySpecies,
			EntityID: sp.ID,
		})
	}
	return result, nil
}

// infraspecificPairingRule flags infraspecific ranks and epithets that do
// not come as a pair. The cultivar rank is special: its epithet lives in
// the cultivar field.
type infraspecificPairingRule struct{}

func (infraspecificPairingRule) Name() string { return "species_infraspecific_pairing" }

func (infraspecificPairingRule) Evaluate(_ context.Context, _ core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, change := range changes {
		sp, ok := change.After.(core.Species)
		if !ok {
			continue
		}
		var message string
		switch {
		case sp.InfraRank == "cv." && sp.Cultivar == "":
			message = "cultivar rank set without a cultivar epithet"
		case sp.InfraRank != "" && sp.InfraRank != "cv." && sp.InfraEpithet == "":
			message = "infraspecific rank set without an infraspecific epithet"
		case sp.InfraRank == "" && sp.InfraEpithet != "":
			message = "infraspecific epithet set without a rank"
		default:
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     "species_infraspecific_pairing",
			Severity: core.SeverityWarn,
			Message:  message,
			Entity:   core.EntitySpecies,
			EntityID: sp.ID,
		})
	}
	return result, nil
}

// checklistTemplate lists every taxon with its family and genus placement.
func checklistTemplate() reportapi.Template {
	return reportapi.Template{
		Key:         "species-checklist",
		Version:     "1.0.0",
		Title:       "Species Checklist",
		Description: "Every taxon in the collection with its family and genus placement.",
		Domain:      reportapi.DomainSpecies,
		Columns: []reportapi.Column{
			{Name: "family", Title: "Family", Type: "string", Path: "genus.family.epithet"},
			{Name: "genus", Title: "Genus", Type: "string", Path: "genus.epithet"},
			{Name: "epithet", Title: "Species", Type: "string"},
			{Name: "infraspecific_rank", Title: "Rank", Type: "string"},
			{Name: "infraspecific_epithet", Title: "Infraspecific Epithet", Type: "string"},
			{Name: "cultivar", Title: "Cultivar", Type: "string"},
			{Name: "author", Title: "Author", Type: "string"},
		},
		Metadata: reportapi.Metadata{
			Source: "taxonomy",
			Tags:   []string{"taxonomy", "checklist"},
		},
		OutputFormats: []reportapi.Format{reportapi.FormatCSV, reportapi.FormatJSON, reportapi.FormatXLSX},
		Binder:        report.PathBinder(),
	}
}
