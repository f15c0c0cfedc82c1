// Package testhelper hosts plugin test fixtures that reference domain
// types directly. It is excluded from the architecture test that keeps
// real plugin packages decoupled from internal domain shapes; do not
// import it from production plugin code.
package testhelper

import "floracore/pkg/domain"

// View implements the rule evaluation view over literal entity slices,
// letting rule tests stage exactly the records they need without a store.
type View struct {
	Families    []domain.Family
	Genera      []domain.Genus
	Species     []domain.Species
	Vernaculars []domain.VernacularName
	Geographies []domain.Geography
	Accessions  []domain.Accession
	Plants      []domain.Plant
	Locations   []domain.Location
	Sources     []domain.SourceDetail
}

var _ domain.RuleView = View{}

func (v View) ListFamilies() []domain.Family                { return v.Families }
func (v View) ListGenera() []domain.Genus                   { return v.Genera }
func (v View) ListSpecies() []domain.Species                { return v.Species }
func (v View) ListVernacularNames() []domain.VernacularName { return v.Vernaculars }
func (v View) ListGeographies() []domain.Geography          { return v.Geographies }
func (v View) ListAccessions() []domain.Accession           { return v.Accessions }
func (v View) ListPlants() []domain.Plant                   { return v.Plants }
func (v View) ListLocations() []domain.Location             { return v.Locations }
func (v View) ListSourceDetails() []domain.SourceDetail     { return v.Sources }

func (v View) FindFamily(id string) (domain.Family, bool) {
	for _, f := range v.Families {
		if f.ID == id {
			return f, true
		}
	}
	return domain.Family{}, false
}

func (v View) FindGenus(id string) (domain.Genus, bool) {
	for _, g := range v.Genera {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Genus{}, false
}

func (v View) FindSpecies(id string) (domain.Species, bool) {
	for _, sp := range v.Species {
		if sp.ID == id {
			return sp, true
		}
	}
	return domain.Species{}, false
}

func (v View) FindVernacularName(id string) (domain.VernacularName, bool) {
	for _, vn := range v.Vernaculars {
		if vn.ID == id {
			return vn, true
		}
	}
	return domain.VernacularName{}, false
}

func (v View) FindGeography(id string) (domain.Geography, bool) {
	for _, g := range v.Geographies {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Geography{}, false
}

func (v View) FindAccession(id string) (domain.Accession, bool) {
	for _, a := range v.Accessions {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Accession{}, false
}

func (v View) FindPlant(id string) (domain.Plant, bool) {
	for _, p := range v.Plants {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Plant{}, false
}

func (v View) FindLocation(id string) (domain.Location, bool) {
	for _, l := range v.Locations {
		if l.ID == id {
			return l, true
		}
	}
	return domain.Location{}, false
}

func (v View) FindSourceDetail(id string) (domain.SourceDetail, bool) {
	for _, s := range v.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return domain.SourceDetail{}, false
}

// Collection returns a view spanning one taxon chain with an accession,
// a plant, and a location, the minimal graph most rule tests start from.
func Collection() View {
	return View{
		Families: []domain.Family{
			{Base: domain.Base{ID: "fam-fabaceae"}, Epithet: "Fabaceae", Author: "Lindl."},
		},
		Genera: []domain.Genus{
			{Base: domain.Base{ID: "gen-acacia"}, FamilyID: "fam-fabaceae", Epithet: "Acacia", Author: "Mill."},
		},
		Species: []domain.Species{
			{Base: domain.Base{ID: "sp-dealbata"}, GenusID: "gen-acacia", Epithet: "dealbata", Author: "Link"},
		},
		Accessions: []domain.Accession{
			{Base: domain.Base{ID: "acc-1"}, Code: "2024.0001", SpeciesID: "sp-dealbata", QuantityReceived: 3},
		},
		Locations: []domain.Location{
			{Base: domain.Base{ID: "loc-beds"}, Code: "BED1", Name: "Front Beds"},
		},
		Plants: []domain.Plant{
			{Base: domain.Base{ID: "plt-1"}, Code: "1", AccessionID: "acc-1", LocationID: "loc-beds", Quantity: 3},
		},
	}
}

// Created wraps a record in the change shape rules receive for inserts.
func Created(entity domain.EntityType, after any) domain.Change {
	return domain.Change{Entity: entity, Action: domain.ActionCreate, After: after}
}

// Updated wraps before and after records in the change shape rules
// receive for updates.
func Updated(entity domain.EntityType, before, after any) domain.Change {
	return domain.Change{Entity: entity, Action: domain.ActionUpdate, Before: before, After: after}
}
