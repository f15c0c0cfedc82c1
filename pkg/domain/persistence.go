package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateFamily(Family) (Family, error)
	UpdateFamily(id string, mutator func(*Family) error) (Family, error)
	DeleteFamily(id string) error
	CreateGenus(Genus) (Genus, error)
	UpdateGenus(id string, mutator func(*Genus) error) (Genus, error)
	DeleteGenus(id string) error
	CreateSpecies(Species) (Species, error)
	UpdateSpecies(id string, mutator func(*Species) error) (Species, error)
	DeleteSpecies(id string) error
	CreateVernacularName(VernacularName) (VernacularName, error)
	UpdateVernacularName(id string, mutator func(*VernacularName) error) (VernacularName, error)
	DeleteVernacularName(id string) error
	CreateGeography(Geography) (Geography, error)
	UpdateGeography(id string, mutator func(*Geography) error) (Geography, error)
	DeleteGeography(id string) error
	CreateAccession(Accession) (Accession, error)
	UpdateAccession(id string, mutator func(*Accession) error) (Accession, error)
	DeleteAccession(id string) error
	CreatePlant(Plant) (Plant, error)
	UpdatePlant(id string, mutator func(*Plant) error) (Plant, error)
	DeletePlant(id string) error
	CreateLocation(Location) (Location, error)
	UpdateLocation(id string, mutator func(*Location) error) (Location, error)
	DeleteLocation(id string) error
	CreateSourceDetail(SourceDetail) (SourceDetail, error)
	UpdateSourceDetail(id string, mutator func(*SourceDetail) error) (SourceDetail, error)
	DeleteSourceDetail(id string) error
	SavePluginRecord(PluginRecord) (PluginRecord, error)
}

// TransactionView provides read-only access to snapshot data for rules,
// importers, and report runners.
type TransactionView interface {
	RuleView
	ListPluginRecords() []PluginRecord
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetFamily(id string) (Family, bool)
	ListFamilies() []Family
	GetGenus(id string) (Genus, bool)
	ListGenera() []Genus
	GetSpecies(id string) (Species, bool)
	ListSpecies() []Species
	GetVernacularName(id string) (VernacularName, bool)
	ListVernacularNames() []VernacularName
	GetGeography(id string) (Geography, bool)
	ListGeographies() []Geography
	GetAccession(id string) (Accession, bool)
	ListAccessions() []Accession
	GetPlant(id string) (Plant, bool)
	ListPlants() []Plant
	GetLocation(id string) (Location, bool)
	ListLocations() []Location
	GetSourceDetail(id string) (SourceDetail, bool)
	ListSourceDetails() []SourceDetail
	ListPluginRecords() []PluginRecord
}
