// Package entitymodel describes the relational shape of the collection
// domain: importable fields, candidate keys, and the relationship graph.
// One registry feeds the import path resolver, duplicate matching, the
// CSV backup codec, and the DDL bundles applied by the SQL stores.
package entitymodel

import (
	"fmt"
	"strings"

	"floracore/pkg/domain"
)

// FieldKind names the scalar representation a column carries on the wire.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindBool   FieldKind = "bool"
	KindDate   FieldKind = "date" // calendar date, YYYY-MM-DD
	KindTime   FieldKind = "time" // RFC 3339 timestamp
	KindJSON   FieldKind = "json" // opaque JSON document
)

// Field is one importable attribute of a table.
type Field struct {
	Name     string
	Kind     FieldKind
	Enum     []string
	Required bool
}

// RelKind distinguishes foreign-key references from blocks stored inline
// on the owning row.
type RelKind string

const (
	RelToOne    RelKind = "to_one"
	RelEmbedded RelKind = "embedded"
)

// Relationship is a named edge of the entity graph, addressable as a
// dotted-path segment during import and export.
type Relationship struct {
	Name   string
	Target string
	Kind   RelKind
	// FK is the column on the owning table that stores the reference.
	// Empty for embedded targets.
	FK string
	// Deferred marks references that cannot be satisfied in declared
	// table order and are applied in a second restore pass.
	Deferred bool
}

// Descriptor is the full import/export contract of one table.
type Descriptor struct {
	Entity        domain.EntityType
	Table         string
	Fields        []Field
	UniqueSets    [][]string
	RetrieveKeys  []string
	Relationships []Relationship
	// SelfRef names the column referencing the table's own primary key,
	// forcing a parent-first row ordering on restore.
	SelfRef string
}

// Field returns the named field of the descriptor.
func (d Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Relationship returns the named outgoing edge of the descriptor.
func (d Descriptor) Relationship(name string) (Relationship, bool) {
	for _, rel := range d.Relationships {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relationship{}, false
}

// Columns lists the field names in declared order.
func (d Descriptor) Columns() []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Name
	}
	return cols
}

func base() []Field {
	return []Field{
		{Name: "id", Kind: KindString},
		{Name: "created_at", Kind: KindTime},
		{Name: "updated_at", Kind: KindTime},
	}
}

func with(fields ...Field) []Field {
	return append(base(), fields...)
}

var tables = []Descriptor{
	{
		Entity: domain.EntityGeography,
		Table:  "geography",
		Fields: with(
			Field{Name: "name", Kind: KindString, Required: true},
			Field{Name: "code", Kind: KindString},
			Field{Name: "parent_id", Kind: KindString},
		),
		UniqueSets:   [][]string{{"code"}, {"name", "parent_id"}},
		RetrieveKeys: []string{"code"},
		Relationships: []Relationship{
			{Name: "parent", Target: "geography", Kind: RelToOne, FK: "parent_id"},
		},
		SelfRef: "parent_id",
	},
	{
		Entity: domain.EntityFamily,
		Table:  "family",
		Fields: with(
			Field{Name: "epithet", Kind: KindString, Required: true},
			Field{Name: "author", Kind: KindString},
			Field{Name: "qualifier", Kind: KindString, Enum: []string{
				string(domain.QualifierNone),
				string(domain.QualifierSensuLato),
				string(domain.QualifierSensuStrictu),
			}},
		),
		UniqueSets:   [][]string{{"epithet", "author"}},
		RetrieveKeys: []string{"epithet", "author"},
	},
	{
		Entity: domain.EntityGenus,
		Table:  "genus",
		Fields: with(
			Field{Name: "family_id", Kind: KindString},
			Field{Name: "epithet", Kind: KindString, Required: true},
			Field{Name: "author", Kind: KindString},
			Field{Name: "qualifier", Kind: KindString, Enum: []string{
				string(domain.QualifierNone),
				string(domain.QualifierSensuLato),
				string(domain.QualifierSensuStrictu),
			}},
		),
		UniqueSets:   [][]string{{"family_id", "epithet", "author"}},
		RetrieveKeys: []string{"epithet", "author"},
		Relationships: []Relationship{
			{Name: "family", Target: "family", Kind: RelToOne, FK: "family_id"},
		},
	},
	{
		Entity: domain.EntitySpecies,
		Table:  "species",
		Fields: with(
			Field{Name: "genus_id", Kind: KindString},
			Field{Name: "epithet", Kind: KindString},
			Field{Name: "author", Kind: KindString},
			Field{Name: "infraspecific_rank", Kind: KindString, Enum: []string{
				string(domain.RankNone),
				string(domain.RankSubspecies),
				string(domain.RankVariety),
				string(domain.RankForma),
				string(domain.RankCultivar),
			}},
			Field{Name: "infraspecific_epithet", Kind: KindString},
			Field{Name: "infraspecific_author", Kind: KindString},
			Field{Name: "cultivar", Kind: KindString},
			Field{Name: "default_vernacular_id", Kind: KindString},
			Field{Name: "distribution_ids", Kind: KindJSON},
			Field{Name: "label_distribution", Kind: KindString},
			Field{Name: "notes", Kind: KindJSON},
		),
		UniqueSets: [][]string{
			{"genus_id", "epithet", "author", "infraspecific_rank", "infraspecific_epithet", "cultivar"},
		},
		RetrieveKeys: []string{"genus.epithet", "epithet", "infraspecific_rank", "infraspecific_epithet", "cultivar"},
		Relationships: []Relationship{
			{Name: "genus", Target: "genus", Kind: RelToOne, FK: "genus_id"},
			{Name: "default_vernacular_name", Target: "vernacular_name", Kind: RelToOne, FK: "default_vernacular_id", Deferred: true},
		},
	},
	{
		Entity: domain.EntityVernacularName,
		Table:  "vernacular_name",
		Fields: with(
			Field{Name: "species_id", Kind: KindString},
			Field{Name: "name", Kind: KindString, Required: true},
			Field{Name: "language", Kind: KindString},
		),
		UniqueSets:   [][]string{{"species_id", "name", "language"}},
		RetrieveKeys: []string{"name", "language"},
		Relationships: []Relationship{
			{Name: "species", Target: "species", Kind: RelToOne, FK: "species_id"},
		},
	},
	{
		Entity: domain.EntityLocation,
		Table:  "location",
		Fields: with(
			Field{Name: "code", Kind: KindString, Required: true},
			Field{Name: "name", Kind: KindString},
			Field{Name: "description", Kind: KindString},
			Field{Name: "geojson", Kind: KindJSON},
		),
		UniqueSets:   [][]string{{"code"}},
		RetrieveKeys: []string{"code"},
	},
	{
		Entity: domain.EntitySourceDetail,
		Table:  "source_detail",
		Fields: with(
			Field{Name: "name", Kind: KindString, Required: true},
			Field{Name: "source_type", Kind: KindString, Enum: []string{
				string(domain.SourceExpedition),
				string(domain.SourceGeneBank),
				string(domain.SourceBotanicGarden),
				string(domain.SourceResearch),
				string(domain.SourceCommercial),
				string(domain.SourceIndividual),
				string(domain.SourceClub),
				string(domain.SourceMunicipal),
				string(domain.SourceOther),
				string(domain.SourceUnknown),
			}},
			Field{Name: "description", Kind: KindString},
		),
		UniqueSets:   [][]string{{"name"}},
		RetrieveKeys: []string{"name"},
	},
	{
		Entity: domain.EntityAccession,
		Table:  "accession",
		Fields: with(
			Field{Name: "code", Kind: KindString, Required: true},
			Field{Name: "species_id", Kind: KindString},
			Field{Name: "prov_type", Kind: KindString, Enum: []string{
				string(domain.ProvenanceWild),
				string(domain.ProvenanceCultivated),
				string(domain.ProvenanceNotWild),
				string(domain.ProvenanceInsufficientData),
				string(domain.ProvenanceNone),
			}},
			Field{Name: "wild_prov_status", Kind: KindString, Enum: []string{
				string(domain.WildNative),
				string(domain.WildNonNative),
				string(domain.CultivatedNative),
				string(domain.WildStatusNone),
			}},
			Field{Name: "date_accd", Kind: KindDate},
			Field{Name: "date_recvd", Kind: KindDate},
			Field{Name: "quantity_recvd", Kind: KindInt},
			Field{Name: "recvd_type", Kind: KindString, Enum: []string{
				string(domain.MaterialPlant),
				string(domain.MaterialSeed),
				string(domain.MaterialVegetative),
				string(domain.MaterialTissue),
				string(domain.MaterialOther),
			}},
			Field{Name: "id_qual", Kind: KindString, Enum: []string{
				string(domain.IDQualifierNone),
				string(domain.IDQualifierAff),
				string(domain.IDQualifierCf),
				string(domain.IDQualifierForsan),
				string(domain.IDQualifierNear),
				string(domain.IDQualifierQuestion),
			}},
			Field{Name: "id_qual_rank", Kind: KindString},
			Field{Name: "private", Kind: KindBool},
			Field{Name: "intended_location_id", Kind: KindString},
			Field{Name: "source", Kind: KindJSON},
			Field{Name: "notes", Kind: KindJSON},
		),
		UniqueSets:   [][]string{{"code"}},
		RetrieveKeys: []string{"code"},
		Relationships: []Relationship{
			{Name: "species", Target: "species", Kind: RelToOne, FK: "species_id"},
			{Name: "intended_location", Target: "location", Kind: RelToOne, FK: "intended_location_id"},
			{Name: "source", Target: "source", Kind: RelEmbedded},
		},
	},
	{
		Entity: domain.EntityPlant,
		Table:  "plant",
		Fields: with(
			Field{Name: "code", Kind: KindString, Required: true},
			Field{Name: "accession_id", Kind: KindString},
			Field{Name: "location_id", Kind: KindString},
			Field{Name: "quantity", Kind: KindInt},
			Field{Name: "acc_type", Kind: KindString, Enum: []string{
				string(domain.MaterialPlant),
				string(domain.MaterialSeed),
				string(domain.MaterialVegetative),
				string(domain.MaterialTissue),
				string(domain.MaterialOther),
			}},
			Field{Name: "memorial", Kind: KindBool},
			Field{Name: "geojson", Kind: KindJSON},
			Field{Name: "notes", Kind: KindJSON},
		),
		UniqueSets:   [][]string{{"accession_id", "code"}},
		RetrieveKeys: []string{"accession.code", "code"},
		Relationships: []Relationship{
			{Name: "accession", Target: "accession", Kind: RelToOne, FK: "accession_id"},
			{Name: "location", Target: "location", Kind: RelToOne, FK: "location_id"},
		},
	},
}

// Embedded blocks live inside an owning row rather than in a table of
// their own. They still take part in dotted-path resolution.
var embedded = map[string]Descriptor{
	"source": {
		Table: "source",
		Fields: []Field{
			{Name: "sources_code", Kind: KindString},
		},
		Relationships: []Relationship{
			{Name: "source_detail", Target: "source_detail", Kind: RelToOne, FK: "source_detail_id"},
			{Name: "collection", Target: "collection", Kind: RelEmbedded},
		},
	},
	"collection": {
		Table: "collection",
		Fields: []Field{
			{Name: "collector", Kind: KindString},
			{Name: "collectors_code", Kind: KindString},
			{Name: "date", Kind: KindDate},
			{Name: "locale", Kind: KindString},
			{Name: "latitude", Kind: KindFloat},
			{Name: "longitude", Kind: KindFloat},
			{Name: "gps_datum", Kind: KindString},
			{Name: "elevation", Kind: KindFloat},
			{Name: "elevation_accy", Kind: KindFloat},
			{Name: "habitat", Kind: KindString},
			{Name: "notes", Kind: KindString},
		},
		Relationships: []Relationship{
			{Name: "geography", Target: "geography", Kind: RelToOne, FK: "geography_id"},
		},
	},
}

// Tables returns every table descriptor in foreign-key dependency order:
// restoring or seeding in this order guarantees referenced rows exist
// before their dependents, with deferred edges applied afterwards.
func Tables() []Descriptor {
	out := make([]Descriptor, len(tables))
	copy(out, tables)
	return out
}

// Lookup resolves a descriptor by table name. Embedded block names
// resolve too so dotted paths can traverse them.
func Lookup(table string) (Descriptor, bool) {
	for _, d := range tables {
		if d.Table == table {
			return d, true
		}
	}
	d, ok := embedded[table]
	return d, ok
}

// LookupEntity resolves the descriptor registered for an entity type.
func LookupEntity(entity domain.EntityType) (Descriptor, bool) {
	for _, d := range tables {
		if d.Entity == entity {
			return d, true
		}
	}
	return Descriptor{}, false
}

// PathTarget walks a dotted relationship path starting at d and returns
// the descriptor owning the final attribute along with that attribute
// name. Every segment but the last must name a relationship; the last
// must name a field of the segment's target.
func PathTarget(d Descriptor, path string) (Descriptor, string, error) {
	segments := strings.Split(path, ".")
	current := d
	for i, segment := range segments {
		if i == len(segments)-1 {
			if _, ok := current.Field(segment); !ok {
				return Descriptor{}, "", fmt.Errorf("%s: no field %q on %s", path, segment, current.Table)
			}
			return current, segment, nil
		}
		rel, ok := current.Relationship(segment)
		if !ok {
			return Descriptor{}, "", fmt.Errorf("%s: no relationship %q on %s", path, segment, current.Table)
		}
		next, ok := Lookup(rel.Target)
		if !ok {
			return Descriptor{}, "", fmt.Errorf("%s: relationship %q targets unknown table %q", path, segment, rel.Target)
		}
		current = next
	}
	return Descriptor{}, "", fmt.Errorf("empty path")
}
