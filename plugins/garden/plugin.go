// Package garden is the built-in plugin covering living collections:
// provenance and identification rules for accessions, coordinate checks
// for collecting events, and quantity checks for plants.
package garden

import (
	"context"
	"fmt"

	"floracore/internal/core"
	"floracore/pkg/pluginapi"
)

// Plugin implements the built-in garden module.
type Plugin struct{}

// New constructs a garden plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "garden" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "1.0.0" }

// Dependencies returns the plugins that must be installed first.
func (Plugin) Dependencies() []string { return []string{"taxonomy"} }

// Register wires the accession, collection, and plant rules.
func (Plugin) Register(registry pluginapi.Registry) error {
	registry.RegisterRule(wildStatusRule{})
	registry.RegisterRule(idQualifierRule{})
	registry.RegisterRule(coordinateRule{})
	registry.RegisterRule(plantQuantityRule{})
	return nil
}

// wildStatusRule flags a wild provenance status on accessions whose
// provenance is not Wild. The status refines wild provenance and carries
// no meaning for cultivated or unknown origins.
type wildStatusRule struct{}

func (wildStatusRule) Name() string { return "accession_wild_status" }

func (wildStatusRule) Evaluate(_ context.Context, _ core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, change := range changes {
		acc, ok := change.After.(core.Accession)
		if !ok {
			continue
		}
		if acc.WildProvenance == "" || acc.Provenance == "Wild" {
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     "accession_wild_status",
			Severity: core.SeverityWarn,
			Message:  fmt.Sprintf("wild provenance status %q on accession with provenance %q", acc.WildProvenance, acc.Provenance),
			Entity:   core.EntityAccession,
			EntityID: acc.ID,
		})
	}
	return result, nil
}

// idQualifierRule blocks accessions that carry an identification
// qualifier without naming the rank it applies to.
type idQualifierRule struct{}

func (idQualifierRule) Name() string { return "accession_id_qualifier_rank" }

func (idQualifierRule) Evaluate(_ context.Context, _ core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, change := range changes {
		acc, ok := change.After.(core.Accession)
		if !ok {
			continue
		}
		if acc.IDQualifier == "" || acc.IDQualifierRank != "" {
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     "accession_id_qualifier_rank",
			Severity: core.SeverityBlock,
			Message:  fmt.Sprintf("identification qualifier %q requires a rank", acc.IDQualifier),
			Entity:   core.EntityAccession,
			EntityID: acc.ID,
		})
	}
	return result, nil
}

// coordinateRule validates collecting event coordinates: latitude within
// [-90, 90], longitude within [-180, 180], and both present when either
// is given.
type coordinateRule struct{}

func (coordinateRule) Name() string { return "collection_coordinates" }

func (coordinateRule) Evaluate(_ context.Context, _ core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, change := range changes {
		acc, ok := change.After.(core.Accession)
		if !ok || acc.Source == nil || acc.Source.Collection == nil {
			continue
		}
		coll := acc.Source.Collection
		if coll.Latitude != nil && (*coll.Latitude < -90 || *coll.Latitude > 90) {
			result.Violations = append(result.Violations, core.Violation{
				Rule:     "collection_coordinates",
				Severity: core.SeverityBlock,
				Message:  fmt.Sprintf("latitude %v out of range", *coll.Latitude),
				Entity:   core.EntityAccession,
				EntityID: acc.ID,
			})
		}
		if coll.Longitude != nil && (*coll.Longitude < -180 || *coll.Longitude > 180) {
			result.Violations = append(result.Violations, core.Violation{
				Rule:     "collection_coordinates",
				Severity: core.SeverityBlock,
				Message:  fmt.Sprintf("longitude %v out of range", *coll.Longitude),
				Entity:   core.EntityAccession,
				EntityID: acc.ID,
			})
		}
		if (coll.Latitude == nil) != (coll.Longitude == nil) {
			result.Violations = append(result.Violations, core.Violation{
				Rule:     "collection_coordinates",
				Severity: core.SeverityWarn,
				Message:  "collection names only one of latitude and longitude",
				Entity:   core.EntityAccession,
				EntityID: acc.ID,
			})
		}
	}
	return result, nil
}

// plantQuantityRule blocks negative plant quantities. A quantity of zero
// is legitimate: dead plants keep their record with quantity zero rather
// than being deleted.
type plantQuantityRule struct{}

func (plantQuantityRule) Name() string { return "plant_quantity" }

func (plantQuantityRule) Evaluate(_ context.Context, _ core.RuleView, changes []core.Change) (core.Result, error) {
	var result core.Result
	for _, change := range changes {
		plant, ok := change.After.(core.Plant)
		if !ok {
			continue
		}
		if plant.Quantity >= 0 {
			continue
		}
		result.Violations = append(result.Violations, core.Violation{
			Rule:     "plant_quantity",
			Severity: core.SeverityBlock,
			Message:  fmt.Sprintf("plant quantity %d is negative", plant.Quantity),
			Entity:   core.EntityPlant,
			EntityID: plant.ID,
		})
	}
	return result, nil
}
