package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"floracore/internal/imex"
	"floracore/pkg/domain"
	"floracore/pkg/reportapi"
)

// domainTables maps template domains onto entity tables.
var domainTables = map[reportapi.Domain]string{
	reportapi.DomainSpecies:   "species",
	reportapi.DomainAccession: "accession",
	reportapi.DomainPlant:     "plant",
	reportapi.DomainLocation:  "location",
}

// PathBinder returns the standard binder for declarative templates. The
// bound runner maps the selection to the pertinent records of the
// template's domain, then resolves every column's dotted path against
// each record. An empty selection covers the whole domain.
func PathBinder() reportapi.Binder {
	return func(env reportapi.Environment) (reportapi.Runner, error) {
		if env.Store == nil {
			return nil, errors.New("report: environment store required")
		}
		store := env.Store
		now := env.Now
		if now == nil {
			now = time.Now
		}
		return func(ctx context.Context, req reportapi.RunRequest) (reportapi.RunResult, error) {
			table, ok := domainTables[req.Template.Domain]
			if !ok {
				return reportapi.RunResult{}, fmt.Errorf("report: unsupported report domain %q", req.Template.Domain)
			}
			columns := req.Template.Columns
			paths := make([]string, len(columns))
			for i, col := range columns {
				paths[i] = col.Path
				if paths[i] == "" {
					paths[i] = col.Name
				}
			}
			var rows []map[string]any
			err := store.View(ctx, func(view domain.TransactionView) error {
				records, err := pertinentRecords(view, req.Template.Domain, req.Selection)
				if err != nil {
					return err
				}
				rows = make([]map[string]any, 0, len(records))
				for _, record := range records {
					values, err := imex.ResolveRecord(view, table, record, paths)
					if err != nil {
						return err
					}
					row := make(map[string]any, len(columns))
					for i, col := range columns {
						row[col.Name] = values[i]
					}
					rows = append(rows, row)
				}
				return nil
			})
			if err != nil {
				return reportapi.RunResult{}, err
			}
			metadata := map[string]any{
				"domain":   string(req.Template.Domain),
				"selected": len(req.Selection.IDs),
			}
			if len(req.Parameters) > 0 {
				metadata["parameters"] = req.Parameters
			}
			return reportapi.RunResult{
				Schema:      columns,
				Rows:        rows,
				Metadata:    metadata,
				GeneratedAt: now().UTC(),
			}, nil
		}, nil
	}
}

// pertinentRecords resolves a selection to the entity records of the
// requested domain, ordered the way that domain orders.
func pertinentRecords(view domain.RuleView, dom reportapi.Domain, selection reportapi.Selection) ([]any, error) {
	refs, err := selectionRefs(view, dom, selection)
	if err != nil {
		return nil, err
	}
	switch dom {
	case reportapi.DomainSpecies:
		list, err := SpeciesPertinentTo(view, refs)
		if err != nil {
			return nil, err
		}
		records := make([]any, len(list))
		for i, sp := range list {
			records[i] = sp
		}
		return records, nil
	case reportapi.DomainAccession:
		list, err := AccessionsPertinentTo(view, refs)
		if err != nil {
			return nil, err
		}
		records := make([]any, len(list))
		for i, acc := range list {
			records[i] = acc
		}
		return records, nil
	case reportapi.DomainPlant:
		list, err := PlantsPertinentTo(view, refs)
		if err != nil {
			return nil, err
		}
		records := make([]any, len(list))
		for i, plant := range list {
			records[i] = plant
		}
		return records, nil
	case reportapi.DomainLocation:
		list, err := LocationsPertinentTo(view, refs)
		if err != nil {
			return nil, err
		}
		records := make([]any, len(list))
		for i, loc := range list {
			records[i] = loc
		}
		return records, nil
	}
	return nil, fmt.Errorf("report: unsupported report domain %q", dom)
}

// selectionRefs classifies the selected IDs, or enumerates the whole
// domain when none are selected.
func selectionRefs(view domain.RuleView, dom reportapi.Domain, selection reportapi.Selection) ([]Ref, error) {
	if len(selection.IDs) > 0 {
		return ClassifyAll(view, selection.IDs)
	}
	var refs []Ref
	switch dom {
	case reportapi.DomainSpecies:
		for _, sp := range view.ListSpecies() {
			refs = append(refs, Ref{Kind: domain.EntitySpecies, ID: sp.ID})
		}
	case reportapi.DomainAccession:
		for _, acc := range view.ListAccessions() {
			refs = append(refs, Ref{Kind: domain.EntityAccession, ID: acc.ID})
		}
	case reportapi.DomainPlant:
		for _, plant := range view.ListPlants() {
			refs = append(refs, Ref{Kind: domain.EntityPlant, ID: plant.ID})
		}
	case reportapi.DomainLocation:
		for _, loc := range view.ListLocations() {
			refs = append(refs, Ref{Kind: domain.EntityLocation, ID: loc.ID})
		}
	}
	return refs, nil
}
