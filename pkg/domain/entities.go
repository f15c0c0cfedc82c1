// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by floracore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records, persistence
// buckets, and import/export table names.
const (
	// EntityFamily identifies a botanical family record.
	EntityFamily EntityType = "family"
	// EntityGenus identifies a genus record.
	EntityGenus EntityType = "genus"
	// EntitySpecies identifies a species (taxon) record.
	EntitySpecies EntityType = "species"
	// EntityVernacularName identifies a common-name record attached to a species.
	EntityVernacularName EntityType = "vernacular_name"
	// EntityGeography identifies a geographic area record.
	EntityGeography EntityType = "geography"
	// EntityAccession identifies an accession record.
	EntityAccession EntityType = "accession"
	// EntityPlant identifies a living plant record under an accession.
	EntityPlant EntityType = "plant"
	// EntityLocation identifies a garden location record.
	EntityLocation EntityType = "location"
	// EntitySourceDetail identifies a contact or institution plants came from.
	EntitySourceDetail EntityType = "source_detail"
	// EntityPluginRecord identifies an installed-plugin bookkeeping record.
	EntityPluginRecord EntityType = "plugin_record"
)

// FamilyQualifier narrows the sense of a family or genus epithet.
type FamilyQualifier string

// Family and genus epithet qualifiers.
const (
	QualifierNone         FamilyQualifier = ""
	QualifierSensuLato    FamilyQualifier = "s. lat."
	QualifierSensuStrictu FamilyQualifier = "s. str."
)

// InfraspecificRank enumerates ranks below species recognised by the taxon model.
type InfraspecificRank string

// Infraspecific ranks.
const (
	RankNone       InfraspecificRank = ""
	RankSubspecies InfraspecificRank = "subsp."
	RankVariety    InfraspecificRank = "var."
	RankForma      InfraspecificRank = "f."
	RankCultivar   InfraspecificRank = "cv."
)

// ProvenanceType describes how accessioned material entered cultivation.
type ProvenanceType string

// Accession provenance types.
const (
	ProvenanceWild             ProvenanceType = "Wild"
	ProvenanceCultivated       ProvenanceType = "Cultivated"
	ProvenanceNotWild          ProvenanceType = "NotWild"
	ProvenanceInsufficientData ProvenanceType = "InsufficientData"
	ProvenanceNone             ProvenanceType = ""
)

// WildProvenanceStatus refines ProvenanceWild accessions.
type WildProvenanceStatus string

// Wild provenance statuses.
const (
	WildNative       WildProvenanceStatus = "WildNative"
	WildNonNative    WildProvenanceStatus = "WildNonNative"
	CultivatedNative WildProvenanceStatus = "CultivatedNative"
	WildStatusNone   WildProvenanceStatus = ""
)

// IDQualifier records determination confidence for an accession's taxon.
type IDQualifier string

// Identification qualifiers in decreasing order of confidence.
const (
	IDQualifierNone     IDQualifier = ""
	IDQualifierAff      IDQualifier = "aff."
	IDQualifierCf       IDQualifier = "cf."
	IDQualifierForsan   IDQualifier = "forsan"
	IDQualifierNear     IDQualifier = "near"
	IDQualifierQuestion IDQualifier = "?"
)

// AccessionType describes the kind of material a plant record tracks.
type AccessionType string

// Plant material types.
const (
	MaterialPlant      AccessionType = "Plant"
	MaterialSeed       AccessionType = "Seed"
	MaterialVegetative AccessionType = "Vegetative"
	MaterialTissue     AccessionType = "Tissue"
	MaterialOther      AccessionType = "Other"
)

// SourceType categorises the institution or person an accession came from.
type SourceType string

// Source detail types.
const (
	SourceExpedition    SourceType = "Expedition"
	SourceGeneBank      SourceType = "GeneBank"
	SourceBotanicGarden SourceType = "BG"
	SourceResearch      SourceType = "Research"
	SourceCommercial    SourceType = "Commercial"
	SourceIndividual    SourceType = "Individual"
	SourceClub          SourceType = "Club"
	SourceMunicipal     SourceType = "MunicipalDepartment"
	SourceOther         SourceType = "Other"
	SourceUnknown       SourceType = ""
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Family represents a botanical family.
type Family struct {
	Base
	Epithet   string          `json:"epithet"`
	Author    string          `json:"author"`
	Qualifier FamilyQualifier `json:"qualifier"`
}

// Genus represents a genus within a family.
type Genus struct {
	Base
	FamilyID  string          `json:"family_id"`
	Epithet   string          `json:"epithet"`
	Author    string          `json:"author"`
	Qualifier FamilyQualifier `json:"qualifier"`
}

// Species represents a taxon at or below species rank. Epithet may be empty
// for records determined only to genus rank.
type Species struct {
	Base
	GenusID             string            `json:"genus_id"`
	Epithet             string            `json:"epithet"`
	Author              string            `json:"author"`
	InfraRank           InfraspecificRank `json:"infraspecific_rank"`
	InfraEpithet        string            `json:"infraspecific_epithet"`
	InfraAuthor         string            `json:"infraspecific_author"`
	Cultivar            string            `json:"cultivar"`
	DefaultVernacularID *string           `json:"default_vernacular_id"`
	DistributionIDs     []string          `json:"distribution_ids"`
	LabelDistribution   string            `json:"label_distribution"`
	Notes               []Note            `json:"notes"`
}

// VernacularName is a common name for a species in some language.
type VernacularName struct {
	Base
	SpeciesID string `json:"species_id"`
	Name      string `json:"name"`
	Language  string `json:"language"`
}

// Geography is a node in the geographic area hierarchy used for species
// distributions and collection sites.
type Geography struct {
	Base
	Name     string  `json:"name"`
	Code     string  `json:"code"`
	ParentID *string `json:"parent_id"`
}

// Accession represents a batch of plant material of one taxon received into
// the collection.
type Accession struct {
	Base
	Code               string               `json:"code"`
	SpeciesID          string               `json:"species_id"`
	Provenance         ProvenanceType       `json:"prov_type"`
	WildProvenance     WildProvenanceStatus `json:"wild_prov_status"`
	DateAccessioned    *time.Time           `json:"date_accd"`
	DateReceived       *time.Time           `json:"date_recvd"`
	QuantityReceived   int                  `json:"quantity_recvd"`
	ReceivedType       AccessionType        `json:"recvd_type"`
	IDQualifier        IDQualifier          `json:"id_qual"`
	IDQualifierRank    string               `json:"id_qual_rank"`
	Private            bool                 `json:"private"`
	IntendedLocationID *string              `json:"intended_location_id"`
	Source             *Source              `json:"source,omitempty"`
	Notes              []Note               `json:"notes"`
}

// Source captures the provenance of a single accession. It is embedded
// one-to-one in the accession rather than stored as a standalone entity.
type Source struct {
	SourcesCode    string      `json:"sources_code"`
	SourceDetailID *string     `json:"source_detail_id"`
	Collection     *Collection `json:"collection,omitempty"`
}

// Collection describes the collecting event behind a wild-origin source.
type Collection struct {
	Collector      string     `json:"collector"`
	CollectorsCode string     `json:"collectors_code"`
	Date           *time.Time `json:"date"`
	Locale         string     `json:"locale"`
	GeographyID    *string    `json:"geography_id"`
	Latitude       *float64   `json:"latitude"`
	Longitude      *float64   `json:"longitude"`
	GPSDatum       string     `json:"gps_datum"`
	Elevation      *float64   `json:"elevation"`
	ElevationAccy  *float64   `json:"elevation_accy"`
	Habitat        string     `json:"habitat"`
	Notes          string     `json:"notes"`
}

// SourceDetail is a contact, institution, or expedition plants came from.
type SourceDetail struct {
	Base
	Name        string     `json:"name"`
	SourceType  SourceType `json:"source_type"`
	Description string     `json:"description"`
}

// Plant represents living material of an accession at one garden location.
// Its display code joins the accession code and plant code with the
// configured plant delimiter.
type Plant struct {
	Base
	Code          string         `json:"code"`
	AccessionID   string         `json:"accession_id"`
	LocationID    string         `json:"location_id"`
	Quantity      int            `json:"quantity"`
	AccessionType AccessionType  `json:"acc_type"`
	Memorial      bool           `json:"memorial"`
	GeoJSON       map[string]any `json:"geojson,omitempty"`
	Notes         []Note         `json:"notes"`
}

// Location is a named place in the garden where plants grow.
type Location struct {
	Base
	Code        string         `json:"code"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	GeoJSON     map[string]any `json:"geojson,omitempty"`
}

// Note is a dated free-text annotation attached to a species, accession, or
// plant record.
type Note struct {
	Date     *time.Time `json:"date"`
	User     string     `json:"user"`
	Category string     `json:"category"`
	Note     string     `json:"note"`
}

// PluginRecord persists the name and version of an installed plugin so the
// manager can distinguish fresh installs from upgrades across restarts.
type PluginRecord struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	InstalledAt time.Time `json:"installed_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
