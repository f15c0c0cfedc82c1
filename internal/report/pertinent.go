// Package report maps heterogeneous record references onto the species,
// accessions, plants, or locations they pertain to, and executes report
// templates against the result. Mapping walks the relationship graph in
// both directions: a family reference reaches every plant grown from an
// accession of a species under that family, a plant reference reaches
// back to its species.
package report

import (
	"fmt"
	"sort"
	"strings"

	"floracore/pkg/domain"
)

// Ref identifies one input record for pertinent-object mapping.
type Ref struct {
	Kind domain.EntityType
	ID   string
}

// Classify resolves a bare record ID to a typed reference by probing
// each entity collection in turn.
func Classify(view domain.RuleView, id string) (Ref, error) {
	kind, ok := classifyKind(view, id)
	if !ok {
		return Ref{}, fmt.Errorf("report: no record with id %q", id)
	}
	return Ref{Kind: kind, ID: id}, nil
}

func classifyKind(view domain.RuleView, id string) (domain.EntityType, bool) {
	if _, ok := view.FindSpecies(id); ok {
		return domain.EntitySpecies, true
	}
	if _, ok := view.FindAccession(id); ok {
		return domain.EntityAccession, true
	}
	if _, ok := view.FindPlant(id); ok {
		return domain.EntityPlant, true
	}
	if _, ok := view.FindLocation(id); ok {
		return domain.EntityLocation, true
	}
	if _, ok := view.FindFamily(id); ok {
		return domain.EntityFamily, true
	}
	if _, ok := view.FindGenus(id); ok {
		return domain.EntityGenus, true
	}
	if _, ok := view.FindVernacularName(id); ok {
		return domain.EntityVernacularName, true
	}
	if _, ok := view.FindGeography(id); ok {
		return domain.EntityGeography, true
	}
	if _, ok := view.FindSourceDetail(id); ok {
		return domain.EntitySourceDetail, true
	}
	return "", false
}

// ClassifyAll resolves a list of record IDs to typed references.
func ClassifyAll(view domain.RuleView, ids []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(ids))
	for _, id := range ids {
		ref, err := Classify(view, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// SpeciesPertinentTo returns the de-duplicated species reachable from
// the references, ordered by scientific name.
func SpeciesPertinentTo(view domain.RuleView, refs []Ref) ([]domain.Species, error) {
	ix := buildIndex(view)
	out := idSet{}
	for _, ref := range refs {
		if !knownKind(ref.Kind) {
			return nil, fmt.Errorf("report: cannot derive species from a %s reference", ref.Kind)
		}
		ix.speciesFor(ref, out)
	}
	result := make([]domain.Species, 0, len(out))
	for id := range out {
		if sp, ok := ix.species[id]; ok {
			result = append(result, sp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		a, b := ix.scientificName(result[i]), ix.scientificName(result[j])
		if a == b {
			return result[i].ID < result[j].ID
		}
		return a < b
	})
	return result, nil
}

// AccessionsPertinentTo returns the de-duplicated accessions reachable
// from the references, ordered by code.
func AccessionsPertinentTo(view domain.RuleView, refs []Ref) ([]domain.Accession, error) {
	ix := buildIndex(view)
	out := idSet{}
	for _, ref := range refs {
		if !knownKind(ref.Kind) {
			return nil, fmt.Errorf("report: cannot derive accessions from a %s reference", ref.Kind)
		}
		ix.accessionsFor(ref, out)
	}
	result := make([]domain.Accession, 0, len(out))
	for id := range out {
		if acc, ok := ix.accessions[id]; ok {
			result = append(result, acc)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Code == result[j].Code {
			return result[i].ID < result[j].ID
		}
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// PlantsPertinentTo returns the de-duplicated plants reachable from the
// references, ordered by accession code then plant code.
func PlantsPertinentTo(view domain.RuleView, refs []Ref) ([]domain.Plant, error) {
	ix := buildIndex(view)
	out := idSet{}
	for _, ref := range refs {
		if !knownKind(ref.Kind) {
			return nil, fmt.Errorf("report: cannot derive plants from a %s reference", ref.Kind)
		}
		ix.plantsFor(ref, out)
	}
	result := make([]domain.Plant, 0, len(out))
	for id := range out {
		if plant, ok := ix.plants[id]; ok {
			result = append(result, plant)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		a := ix.accessions[result[i].AccessionID].Code + "\x00" + result[i].Code
		b := ix.accessions[result[j].AccessionID].Code + "\x00" + result[j].Code
		if a == b {
			return result[i].ID < result[j].ID
		}
		return a < b
	})
	return result, nil
}

// LocationsPertinentTo returns the de-duplicated garden locations
// reachable from the references, ordered by code. Every non-location
// reference maps through the plants it pertains to.
func LocationsPertinentTo(view domain.RuleView, refs []Ref) ([]domain.Location, error) {
	ix := buildIndex(view)
	out := idSet{}
	for _, ref := range refs {
		if !knownKind(ref.Kind) {
			return nil, fmt.Errorf("report: cannot derive locations from a %s reference", ref.Kind)
		}
		ix.locationsFor(ref, out)
	}
	result := make([]domain.Location, 0, len(out))
	for id := range out {
		if loc, ok := ix.locations[id]; ok {
			result = append(result, loc)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Code == result[j].Code {
			return result[i].ID < result[j].ID
		}
		return result[i].Code < result[j].Code
	})
	return result, nil
}

func knownKind(kind domain.EntityType) bool {
	switch kind {
	case domain.EntityFamily, domain.EntityGenus, domain.EntitySpecies,
		domain.EntityVernacularName, domain.EntityGeography, domain.EntityAccession,
		domain.EntityPlant, domain.EntityLocation, domain.EntitySourceDetail:
		return true
	}
	return false
}

type idSet map[string]struct{}

func (s idSet) add(ids ...string) {
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
}

// index holds the forward and reverse edges of the relationship graph
// for one snapshot, so each walk is a map traversal.
type index struct {
	genera     map[string]domain.Genus
	species    map[string]domain.Species
	accessions map[string]domain.Accession
	plants     map[string]domain.Plant
	locations  map[string]domain.Location

	generaByFamily             map[string][]string
	speciesByGenus             map[string][]string
	speciesOfVernacular        map[string]string
	speciesByDistribution      map[string][]string
	accessionsBySpecies        map[string][]string
	accessionsByCollectionSite map[string][]string
	accessionsBySourceDetail   map[string][]string
	plantsByAccession          map[string][]string
	plantsByLocation           map[string][]string
}

func buildIndex(view domain.RuleView) *index {
	ix := &index{
		genera:     make(map[string]domain.Genus),
		species:    make(map[string]domain.Species),
		accessions: make(map[string]domain.Accession),
		plants:     make(map[string]domain.Plant),
		locations:  make(map[string]domain.Location),

		generaByFamily:             make(map[string][]string),
		speciesByGenus:             make(map[string][]string),
		speciesOfVernacular:        make(map[string]string),
		speciesByDistribution:      make(map[string][]string),
		accessionsBySpecies:        make(map[string][]string),
		accessionsByCollectionSite: make(map[string][]string),
		accessionsBySourceDetail:   make(map[string][]string),
		plantsByAccession:          make(map[string][]string),
		plantsByLocation:           make(map[string][]string),
	}
	for _, genus := range view.ListGenera() {
		ix.genera[genus.ID] = genus
		ix.generaByFamily[genus.FamilyID] = append(ix.generaByFamily[genus.FamilyID], genus.ID)
	}
	for _, sp := range view.ListSpecies() {
		ix.species[sp.ID] = sp
		ix.speciesByGenus[sp.GenusID] = append(ix.speciesByGenus[sp.GenusID], sp.ID)
		for _, geoID := range sp.DistributionIDs {
			ix.speciesByDistribution[geoID] = append(ix.speciesByDistribution[geoID], sp.ID)
		}
	}
	for _, name := range view.ListVernacularNames() {
		ix.speciesOfVernacular[name.ID] = name.SpeciesID
	}
	for _, acc := range view.ListAccessions() {
		ix.accessions[acc.ID] = acc
		ix.accessionsBySpecies[acc.SpeciesID] = append(ix.accessionsBySpecies[acc.SpeciesID], acc.ID)
		if src := acc.Source; src != nil {
			if src.SourceDetailID != nil {
				ix.accessionsBySourceDetail[*src.SourceDetailID] = append(ix.accessionsBySourceDetail[*src.SourceDetailID], acc.ID)
			}
			if src.Collection != nil && src.Collection.GeographyID != nil {
				ix.accessionsByCollectionSite[*src.Collection.GeographyID] = append(ix.accessionsByCollectionSite[*src.Collection.GeographyID], acc.ID)
			}
		}
	}
	for _, plant := range view.ListPlants() {
		ix.plants[plant.ID] = plant
		ix.plantsByAccession[plant.AccessionID] = append(ix.plantsByAccession[plant.AccessionID], plant.ID)
		if plant.LocationID != "" {
			ix.plantsByLocation[plant.LocationID] = append(ix.plantsByLocation[plant.LocationID], plant.ID)
		}
	}
	for _, loc := range view.ListLocations() {
		ix.locations[loc.ID] = loc
	}
	return ix
}

// speciesFor adds the species a reference pertains to. Geography
// references reach species through both their distributions and the
// collection sites of their accessions.
func (ix *index) speciesFor(ref Ref, out idSet) {
	switch ref.Kind {
	case domain.EntityFamily:
		for _, genusID := range ix.generaByFamily[ref.ID] {
			out.add(ix.speciesByGenus[genusID]...)
		}
	case domain.EntityGenus:
		out.add(ix.speciesByGenus[ref.ID]...)
	case domain.EntitySpecies:
		out.add(ref.ID)
	case domain.EntityVernacularName:
		out.add(ix.speciesOfVernacular[ref.ID])
	case domain.EntityGeography:
		out.add(ix.speciesByDistribution[ref.ID]...)
		for _, accID := range ix.accessionsByCollectionSite[ref.ID] {
			out.add(ix.accessions[accID].SpeciesID)
		}
	case domain.EntityAccession:
		out.add(ix.accessions[ref.ID].SpeciesID)
	case domain.EntityPlant:
		if plant, ok := ix.plants[ref.ID]; ok {
			out.add(ix.accessions[plant.AccessionID].SpeciesID)
		}
	case domain.EntityLocation:
		for _, plantID := range ix.plantsByLocation[ref.ID] {
			out.add(ix.accessions[ix.plants[plantID].AccessionID].SpeciesID)
		}
	case domain.EntitySourceDetail:
		for _, accID := range ix.accessionsBySourceDetail[ref.ID] {
			out.add(ix.accessions[accID].SpeciesID)
		}
	}
}

// accessionsFor adds the accessions a reference pertains to. Location
// references map through the plants standing there, not through the
// accession's intended location.
func (ix *index) accessionsFor(ref Ref, out idSet) {
	switch ref.Kind {
	case domain.EntityFamily, domain.EntityGenus, domain.EntitySpecies, domain.EntityVernacularName:
		species := idSet{}
		ix.speciesFor(ref, species)
		for spID := range species {
			out.add(ix.accessionsBySpecies[spID]...)
		}
	case domain.EntityGeography:
		for _, spID := range ix.speciesByDistribution[ref.ID] {
			out.add(ix.accessionsBySpecies[spID]...)
		}
		out.add(ix.accessionsByCollectionSite[ref.ID]...)
	case domain.EntityAccession:
		out.add(ref.ID)
	case domain.EntityPlant:
		out.add(ix.plants[ref.ID].AccessionID)
	case domain.EntityLocation:
		for _, plantID := range ix.plantsByLocation[ref.ID] {
			out.add(ix.plants[plantID].AccessionID)
		}
	case domain.EntitySourceDetail:
		out.add(ix.accessionsBySourceDetail[ref.ID]...)
	}
}

// plantsFor adds the plants a reference pertains to. Locations filter
// plants directly; everything else expands through accessions.
func (ix *index) plantsFor(ref Ref, out idSet) {
	switch ref.Kind {
	case domain.EntityPlant:
		out.add(ref.ID)
	case domain.EntityLocation:
		out.add(ix.plantsByLocation[ref.ID]...)
	default:
		accessions := idSet{}
		ix.accessionsFor(ref, accessions)
		for accID := range accessions {
			out.add(ix.plantsByAccession[accID]...)
		}
	}
}

// locationsFor adds the locations a reference pertains to through the
// plants standing in them.
func (ix *index) locationsFor(ref Ref, out idSet) {
	if ref.Kind == domain.EntityLocation {
		out.add(ref.ID)
		return
	}
	plants := idSet{}
	ix.plantsFor(ref, plants)
	for plantID := range plants {
		out.add(ix.plants[plantID].LocationID)
	}
}

// scientificName is the sortable name tuple: genus epithet, then the
// species epithet and infraspecific parts.
func (ix *index) scientificName(sp domain.Species) string {
	return strings.Join([]string{
		ix.genera[sp.GenusID].Epithet,
		sp.Epithet,
		string(sp.InfraRank),
		sp.InfraEpithet,
		sp.Cultivar,
	}, "\x00")
}
