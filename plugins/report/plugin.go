// Package report is the built-in plugin registering the stock report
// templates over accessions, plants, and locations. Templates are
// declarative: a domain, dotted-path columns, and output formats, bound
// to the host's path-resolving runner.
package report

import (
	"encoding/json"

	hostreport "floracore/internal/report"
	"floracore/pkg/pluginapi"
	"floracore/pkg/reportapi"
)

// Plugin implements the built-in report module.
type Plugin struct{}

// New constructs a report plugin instance.
func New() Plugin {
	return Plugin{}
}

// Name returns the plugin identifier.
func (Plugin) Name() string { return "report" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "1.0.0" }

// Dependencies returns the plugins that must be installed first.
func (Plugin) Dependencies() []string { return []string{"taxonomy", "garden"} }

// Register contributes the stock templates.
func (Plugin) Register(registry pluginapi.Registry) error {
	for _, tpl := range []reportapi.Template{
		accessionLedgerTemplate(),
		plantInventoryTemplate(),
		locationHoldingsTemplate(),
	} {
		if err := registry.RegisterReportTemplate(tpl); err != nil {
			return err
		}
	}
	return nil
}

// accessionLedgerTemplate lists accessions with their taxon and
// provenance details.
func accessionLedgerTemplate() reportapi.Template {
	return reportapi.Template{
		Key:         "accession-ledger",
		Version:     "1.0.0",
		Title:       "Accession Ledger",
		Description: "Accessions with taxon placement, provenance, and source.",
		Domain:      reportapi.DomainAccession,
		Parameters: []reportapi.Parameter{
			{
				Name:        "title",
				Type:        "string",
				Description: "Heading printed on rendered output",
				Default:     json.RawMessage(`"Accession Ledger"`),
			},
		},
		Columns: []reportapi.Column{
			{Name: "code", Title: "Accession", Type: "string"},
			{Name: "family", Title: "Family", Type: "string", Path: "species.genus.family.epithet"},
			{Name: "genus", Title: "Genus", Type: "string", Path: "species.genus.epithet"},
			{Name: "species", Title: "Species", Type: "string", Path: "species.epithet"},
			{Name: "prov_type", Title: "Provenance", Type: "string"},
			{Name: "date_recvd", Title: "Received", Type: "date"},
			{Name: "quantity_recvd", Title: "Quantity", Type: "integer"},
			{Name: "source", Title: "Source", Type: "string", Path: "source.source_detail.name"},
		},
		Metadata: reportapi.Metadata{
			Source: "report",
			Tags:   []string{"garden", "accessions"},
		},
		OutputFormats: []reportapi.Format{
			reportapi.FormatCSV,
			reportapi.FormatJSON,
			reportapi.FormatXML,
			reportapi.FormatXLSX,
		},
		Binder: hostreport.PathBinder(),
	}
}

// plantInventoryTemplate lists living plants with their garden placement.
func plantInventoryTemplate() reportapi.Template {
	return reportapi.Template{
		Key:         "plant-inventory",
		Version:     "1.0.0",
		Title:       "Plant Inventory",
		Description: "Living plants with accession, taxon, and location.",
		Domain:      reportapi.DomainPlant,
		Columns: []reportapi.Column{
			{Name: "accession", Title: "Accession", Type: "string", Path: "accession.code"},
			{Name: "code", Title: "Plant", Type: "string"},
			{Name: "genus", Title: "Genus", Type: "string", Path: "accession.species.genus.epithet"},
			{Name: "species", Title: "Species", Type: "string", Path: "accession.species.epithet"},
			{Name: "location", Title: "Location", Type: "string", Path: "location.code"},
			{Name: "quantity", Title: "Quantity", Type: "integer"},
			{Name: "acc_type", Title: "Material", Type: "string"},
		},
		Metadata: reportapi.Metadata{
			Source: "report",
			Tags:   []string{"garden", "plants"},
		},
		OutputFormats: []reportapi.Format{
			reportapi.FormatCSV,
			reportapi.FormatJSON,
			reportapi.FormatXML,
			reportapi.FormatXLSX,
		},
		Binder: hostreport.PathBinder(),
	}
}

// locationHoldingsTemplate lists garden locations.
func locationHoldingsTemplate() reportapi.Template {
	return reportapi.Template{
		Key:         "location-holdings",
		Version:     "1.0.0",
		Title:       "Location Holdings",
		Description: "Garden locations in code order.",
		Domain:      reportapi.DomainLocation,
		Columns: []reportapi.Column{
			{Name: "code", Title: "Code", Type: "string"},
			{Name: "name", Title: "Name", Type: "string"},
			{Name: "description", Title: "Description", Type: "string"},
		},
		Metadata: reportapi.Metadata{
			Source: "report",
			Tags:   []string{"garden", "locations"},
		},
		OutputFormats: []reportapi.Format{reportapi.FormatCSV, reportapi.FormatJSON},
		Binder:        hostreport.PathBinder(),
	}
}
