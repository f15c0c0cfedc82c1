// Package memory provides an in-memory implementation of the core persistence
// store used for tests, ephemeral environments, and as the canonical state
// engine wrapped by the durable drivers.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"floracore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Family aliases domain.Family for in-memory persistence operations.
	Family = domain.Family
	// Genus aliases domain.Genus.
	Genus = domain.Genus
	// Species aliases domain.Species.
	Species = domain.Species
	// VernacularName aliases domain.VernacularName.
	VernacularName = domain.VernacularName
	// Geography aliases domain.Geography.
	Geography = domain.Geography
	// Accession aliases domain.Accession.
	Accession = domain.Accession
	// Plant aliases domain.Plant.
	Plant = domain.Plant
	// Location aliases domain.Location.
	Location = domain.Location
	// SourceDetail aliases domain.SourceDetail.
	SourceDetail = domain.SourceDetail
	// PluginRecord aliases domain.PluginRecord.
	PluginRecord = domain.PluginRecord
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	families      map[string]Family
	genera        map[string]Genus
	species       map[string]Species
	vernaculars   map[string]VernacularName
	geographies   map[string]Geography
	accessions    map[string]Accession
	plants        map[string]Plant
	locations     map[string]Location
	sourceDetails map[string]SourceDetail
	pluginRecords map[string]PluginRecord
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Families        map[string]Family         `json:"families"`
	Genera          map[string]Genus          `json:"genera"`
	Species         map[string]Species        `json:"species"`
	VernacularNames map[string]VernacularName `json:"vernacular_names"`
	Geographies     map[string]Geography      `json:"geographies"`
	Accessions      map[string]Accession      `json:"accessions"`
	Plants          map[string]Plant          `json:"plants"`
	Locations       map[string]Location       `json:"locations"`
	SourceDetails   map[string]SourceDetail   `json:"source_details"`
	PluginRecords   map[string]PluginRecord   `json:"plugin_records"`
}

func newMemoryState() memoryState {
	return memoryState{
		families:      make(map[string]Family),
		genera:        make(map[string]Genus),
		species:       make(map[string]Species),
		vernaculars:   make(map[string]VernacularName),
		geographies:   make(map[string]Geography),
		accessions:    make(map[string]Accession),
		plants:        make(map[string]Plant),
		locations:     make(map[string]Location),
		sourceDetails: make(map[string]SourceDetail),
		pluginRecords: make(map[string]PluginRecord),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Families:        make(map[string]Family, len(state.families)),
		Genera:          make(map[string]Genus, len(state.genera)),
		Species:         make(map[string]Species, len(state.species)),
		VernacularNames: make(map[string]VernacularName, len(state.vernaculars)),
		Geographies:     make(map[string]Geography, len(state.geographies)),
		Accessions:      make(map[string]Accession, len(state.accessions)),
		Plants:          make(map[string]Plant, len(state.plants)),
		Locations:       make(map[string]Location, len(state.locations)),
		SourceDetails:   make(map[string]SourceDetail, len(state.sourceDetails)),
		PluginRecords:   make(map[string]PluginRecord, len(state.pluginRecords)),
	}
	for k, v := range state.families {
		s.Families[k] = cloneFamily(v)
	}
	for k, v := range state.genera {
		s.Genera[k] = cloneGenus(v)
	}
	for k, v := range state.species {
		s.Species[k] = cloneSpecies(v)
	}
	for k, v := range state.vernaculars {
		s.VernacularNames[k] = cloneVernacularName(v)
	}
	for k, v := range state.geographies {
		s.Geographies[k] = cloneGeography(v)
	}
	for k, v := range state.accessions {
		s.Accessions[k] = cloneAccession(v)
	}
	for k, v := range state.plants {
		s.Plants[k] = clonePlant(v)
	}
	for k, v := range state.locations {
		s.Locations[k] = cloneLocation(v)
	}
	for k, v := range state.sourceDetails {
		s.SourceDetails[k] = cloneSourceDetail(v)
	}
	for k, v := range state.pluginRecords {
		s.PluginRecords[k] = clonePluginRecord(v)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Families {
		state.families[k] = cloneFamily(v)
	}
	for k, v := range s.Genera {
		state.genera[k] = cloneGenus(v)
	}
	for k, v := range s.Species {
		state.species[k] = cloneSpecies(v)
	}
	for k, v := range s.VernacularNames {
		state.vernaculars[k] = cloneVernacularName(v)
	}
	for k, v := range s.Geographies {
		state.geographies[k] = cloneGeography(v)
	}
	for k, v := range s.Accessions {
		state.accessions[k] = cloneAccession(v)
	}
	for k, v := range s.Plants {
		state.plants[k] = clonePlant(v)
	}
	for k, v := range s.Locations {
		state.locations[k] = cloneLocation(v)
	}
	for k, v := range s.SourceDetails {
		state.sourceDetails[k] = cloneSourceDetail(v)
	}
	for k, v := range s.PluginRecords {
		state.pluginRecords[k] = clonePluginRecord(v)
	}
	return state
}

//nolint:gocyclo // migrateSnapshot aggregates multiple migration concerns in one pass for parity with existing snapshots.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Families == nil {
		snapshot.Families = map[string]Family{}
	}
	if snapshot.Genera == nil {
		snapshot.Genera = map[string]Genus{}
	}
	if snapshot.Species == nil {
		snapshot.Species = map[string]Species{}
	}
	if snapshot.VernacularNames == nil {
		snapshot.VernacularNames = map[string]VernacularName{}
	}
	if snapshot.Geographies == nil {
		snapshot.Geographies = map[string]Geography{}
	}
	if snapshot.Accessions == nil {
		snapshot.Accessions = map[string]Accession{}
	}
	if snapshot.Plants == nil {
		snapshot.Plants = map[string]Plant{}
	}
	if snapshot.Locations == nil {
		snapshot.Locations = map[string]Location{}
	}
	if snapshot.SourceDetails == nil {
		snapshot.SourceDetails = map[string]SourceDetail{}
	}
	if snapshot.PluginRecords == nil {
		snapshot.PluginRecords = map[string]PluginRecord{}
	}

	familyExists := func(id string) bool {
		_, ok := snapshot.Families[id]
		return ok
	}
	genusExists := func(id string) bool {
		_, ok := snapshot.Genera[id]
		return ok
	}
	speciesExists := func(id string) bool {
		_, ok := snapshot.Species[id]
		return ok
	}
	vernacularExists := func(id string) bool {
		_, ok := snapshot.VernacularNames[id]
		return ok
	}
	geographyExists := func(id string) bool {
		_, ok := snapshot.Geographies[id]
		return ok
	}
	locationExists := func(id string) bool {
		_, ok := snapshot.Locations[id]
		return ok
	}
	accessionExists := func(id string) bool {
		_, ok := snapshot.Accessions[id]
		return ok
	}
	sourceDetailExists := func(id string) bool {
		_, ok := snapshot.SourceDetails[id]
		return ok
	}

	for id, geography := range snapshot.Geographies {
		if geography.ParentID != nil && (*geography.ParentID == id || !geographyExists(*geography.ParentID)) {
			geography.ParentID = nil
		}
		snapshot.Geographies[id] = geography
	}

	for id, genus := range snapshot.Genera {
		if genus.FamilyID == "" || !familyExists(genus.FamilyID) {
			delete(snapshot.Genera, id)
		}
	}

	for id, species := range snapshot.Species {
		if species.GenusID == "" || !genusExists(species.GenusID) {
			delete(snapshot.Species, id)
			continue
		}
		if filtered, changed := filterIDs(species.DistributionIDs, geographyExists); changed {
			species.DistributionIDs = filtered
		}
		snapshot.Species[id] = species
	}

	for id, vernacular := range snapshot.VernacularNames {
		if vernacular.SpeciesID == "" || !speciesExists(vernacular.SpeciesID) {
			delete(snapshot.VernacularNames, id)
		}
	}

	// Default vernacular pointers are cleared after the vernacular pass so
	// names dropped above cannot be referenced.
	for id, species := range snapshot.Species {
		if species.DefaultVernacularID != nil && !vernacularExists(*species.DefaultVernacularID) {
			species.DefaultVernacularID = nil
			snapshot.Species[id] = species
		}
	}

	for id, accession := range snapshot.Accessions {
		if accession.Code == "" || accession.SpeciesID == "" || !speciesExists(accession.SpeciesID) {
			delete(snapshot.Accessions, id)
			continue
		}
		if accession.QuantityReceived < 0 {
			accession.QuantityReceived = 0
		}
		if accession.IntendedLocationID != nil && !locationExists(*accession.IntendedLocationID) {
			accession.IntendedLocationID = nil
		}
		if accession.Source != nil {
			if accession.Source.SourceDetailID != nil && !sourceDetailExists(*accession.Source.SourceDetailID) {
				accession.Source.SourceDetailID = nil
			}
			if accession.Source.Collection != nil {
				if accession.Source.Collection.GeographyID != nil && !geographyExists(*accession.Source.Collection.GeographyID) {
					accession.Source.Collection.GeographyID = nil
				}
			}
		}
		snapshot.Accessions[id] = accession
	}

	for id, plant := range snapshot.Plants {
		if plant.AccessionID == "" || !accessionExists(plant.AccessionID) {
			delete(snapshot.Plants, id)
			continue
		}
		if plant.LocationID == "" || !locationExists(plant.LocationID) {
			delete(snapshot.Plants, id)
			continue
		}
		if plant.Quantity < 0 {
			plant.Quantity = 0
		}
		snapshot.Plants[id] = plant
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.families {
		cloned.families[k] = cloneFamily(v)
	}
	for k, v := range s.genera {
		cloned.genera[k] = cloneGenus(v)
	}
	for k, v := range s.species {
		cloned.species[k] = cloneSpecies(v)
	}
	for k, v := range s.vernaculars {
		cloned.vernaculars[k] = cloneVernacularName(v)
	}
	for k, v := range s.geographies {
		cloned.geographies[k] = cloneGeography(v)
	}
	for k, v := range s.accessions {
		cloned.accessions[k] = cloneAccession(v)
	}
	for k, v := range s.plants {
		cloned.plants[k] = clonePlant(v)
	}
	for k, v := range s.locations {
		cloned.locations[k] = cloneLocation(v)
	}
	for k, v := range s.sourceDetails {
		cloned.sourceDetails[k] = cloneSourceDetail(v)
	}
	for k, v := range s.pluginRecords {
		cloned.pluginRecords[k] = clonePluginRecord(v)
	}
	return cloned
}

func cloneFamily(f Family) Family { return f }
func cloneGenus(g Genus) Genus    { return g }

func cloneVernacularName(v VernacularName) VernacularName { return v }
func cloneSourceDetail(d SourceDetail) SourceDetail       { return d }
func clonePluginRecord(p PluginRecord) PluginRecord       { return p }

func cloneSpecies(sp Species) Species {
	cp := sp
	cp.DefaultVernacularID = cloneStringPtr(sp.DefaultVernacularID)
	cp.DistributionIDs = append([]string(nil), sp.DistributionIDs...)
	cp.Notes = cloneNotes(sp.Notes)
	return cp
}

func cloneGeography(g Geography) Geography {
	cp := g
	cp.ParentID = cloneStringPtr(g.ParentID)
	return cp
}

func cloneAccession(a Accession) Accession {
	cp := a
	cp.DateAccessioned = cloneTimePtr(a.DateAccessioned)
	cp.DateReceived = cloneTimePtr(a.DateReceived)
	cp.IntendedLocationID = cloneStringPtr(a.IntendedLocationID)
	cp.Source = cloneSource(a.Source)
	cp.Notes = cloneNotes(a.Notes)
	return cp
}

func cloneSource(src *domain.Source) *domain.Source {
	if src == nil {
		return nil
	}
	cp := *src
	cp.SourceDetailID = cloneStringPtr(src.SourceDetailID)
	cp.Collection = cloneCollection(src.Collection)
	return &cp
}

func cloneCollection(c *domain.Collection) *domain.Collection {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Date = cloneTimePtr(c.Date)
	cp.GeographyID = cloneStringPtr(c.GeographyID)
	cp.Latitude = cloneFloatPtr(c.Latitude)
	cp.Longitude = cloneFloatPtr(c.Longitude)
	cp.Elevation = cloneFloatPtr(c.Elevation)
	cp.ElevationAccy = cloneFloatPtr(c.ElevationAccy)
	return &cp
}

func clonePlant(p Plant) Plant {
	cp := p
	cp.GeoJSON = cloneJSONMap(p.GeoJSON)
	cp.Notes = cloneNotes(p.Notes)
	return cp
}

func cloneLocation(l Location) Location {
	cp := l
	cp.GeoJSON = cloneJSONMap(l.GeoJSON)
	return cp
}

func cloneNotes(notes []domain.Note) []domain.Note {
	if len(notes) == 0 {
		return nil
	}
	out := make([]domain.Note, len(notes))
	for i, n := range notes {
		cp := n
		cp.Date = cloneTimePtr(n.Date)
		out[i] = cp
	}
	return out
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneJSONMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneJSONMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return v
	}
}

func containsString(values []string, id string) bool {
	for _, existing := range values {
		if existing == id {
			return true
		}
	}
	return false
}

func dedupeStrings(values []string) []string {
	if len(values) <= 1 {
		return append([]string(nil), values...)
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func filterIDs(values []string, exists func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	changed := false
	for _, v := range values {
		if _, ok := seen[v]; ok {
			changed = true
			continue
		}
		seen[v] = struct{}{}
		if !exists(v) {
			changed = true
			continue
		}
		out = append(out, v)
	}
	if !changed && len(out) == len(values) {
		return values, false
	}
	return out, true
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points like plugins.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state to rules.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListFamilies returns all families within the snapshot.
func (v transactionView) ListFamilies() []Family {
	out := make([]Family, 0, len(v.state.families))
	for _, f := range v.state.families {
		out = append(out, cloneFamily(f))
	}
	return out
}

// FindFamily retrieves a family by ID from the snapshot.
func (v transactionView) FindFamily(id string) (Family, bool) {
	f, ok := v.state.families[id]
	if !ok {
		return Family{}, false
	}
	return cloneFamily(f), true
}

// ListGenera returns all genera within the snapshot.
func (v transactionView) ListGenera() []Genus {
	out := make([]Genus, 0, len(v.state.genera))
	for _, g := range v.state.genera {
		out = append(out, cloneGenus(g))
	}
	return out
}

// FindGenus retrieves a genus by ID from the snapshot.
func (v transactionView) FindGenus(id string) (Genus, bool) {
	g, ok := v.state.genera[id]
	if !ok {
		return Genus{}, false
	}
	return cloneGenus(g), true
}

// ListSpecies returns all species within the snapshot.
func (v transactionView) ListSpecies() []Species {
	out := make([]Species, 0, len(v.state.species))
	for _, sp := range v.state.species {
		out = append(out, cloneSpecies(sp))
	}
	return out
}

// FindSpecies retrieves a species by ID from the snapshot.
func (v transactionView) FindSpecies(id string) (Species, bool) {
	sp, ok := v.state.species[id]
	if !ok {
		return Species{}, false
	}
	return cloneSpecies(sp), true
}

// ListVernacularNames returns all vernacular names within the snapshot.
func (v transactionView) ListVernacularNames() []VernacularName {
	out := make([]VernacularName, 0, len(v.state.vernaculars))
	for _, vn := range v.state.vernaculars {
		out = append(out, cloneVernacularName(vn))
	}
	return out
}

// FindVernacularName retrieves a vernacular name by ID from the snapshot.
func (v transactionView) FindVernacularName(id string) (VernacularName, bool) {
	vn, ok := v.state.vernaculars[id]
	if !ok {
		return VernacularName{}, false
	}
	return cloneVernacularName(vn), true
}

// ListGeographies returns all geographies within the snapshot.
func (v transactionView) ListGeographies() []Geography {
	out := make([]Geography, 0, len(v.state.geographies))
	for _, g := range v.state.geographies {
		out = append(out, cloneGeography(g))
	}
	return out
}

// FindGeography retrieves a geography by ID from the snapshot.
func (v transactionView) FindGeography(id string) (Geography, bool) {
	g, ok := v.state.geographies[id]
	if !ok {
		return Geography{}, false
	}
	return cloneGeography(g), true
}

// ListAccessions returns all accessions within the snapshot.
func (v transactionView) ListAccessions() []Accession {
	out := make([]Accession, 0, len(v.state.accessions))
	for _, a := range v.state.accessions {
		out = append(out, cloneAccession(a))
	}
	return out
}

// FindAccession retrieves an accession by ID from the snapshot.
func (v transactionView) FindAccession(id string) (Accession, bool) {
	a, ok := v.state.accessions[id]
	if !ok {
		return Accession{}, false
	}
	return cloneAccession(a), true
}

// ListPlants returns all plants within the snapshot.
func (v transactionView) ListPlants() []Plant {
	out := make([]Plant, 0, len(v.state.plants))
	for _, p := range v.state.plants {
		out = append(out, clonePlant(p))
	}
	return out
}

// FindPlant retrieves a plant by ID from the snapshot.
func (v transactionView) FindPlant(id string) (Plant, bool) {
	p, ok := v.state.plants[id]
	if !ok {
		return Plant{}, false
	}
	return clonePlant(p), true
}

// ListLocations returns all locations within the snapshot.
func (v transactionView) ListLocations() []Location {
	out := make([]Location, 0, len(v.state.locations))
	for _, l := range v.state.locations {
		out = append(out, cloneLocation(l))
	}
	return out
}

// FindLocation retrieves a location by ID from the snapshot.
func (v transactionView) FindLocation(id string) (Location, bool) {
	l, ok := v.state.locations[id]
	if !ok {
		return Location{}, false
	}
	return cloneLocation(l), true
}

// ListSourceDetails returns all source details within the snapshot.
func (v transactionView) ListSourceDetails() []SourceDetail {
	out := make([]SourceDetail, 0, len(v.state.sourceDetails))
	for _, d := range v.state.sourceDetails {
		out = append(out, cloneSourceDetail(d))
	}
	return out
}

// FindSourceDetail retrieves a source detail by ID from the snapshot.
func (v transactionView) FindSourceDetail(id string) (SourceDetail, bool) {
	d, ok := v.state.sourceDetails[id]
	if !ok {
		return SourceDetail{}, false
	}
	return cloneSourceDetail(d), true
}

// ListPluginRecords returns all installed-plugin records within the snapshot.
func (v transactionView) ListPluginRecords() []PluginRecord {
	out := make([]PluginRecord, 0, len(v.state.pluginRecords))
	for _, p := range v.state.pluginRecords {
		out = append(out, clonePluginRecord(p))
	}
	return out
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// helper to record and append change entries.
func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func checkFamily(state *memoryState, f Family) error {
	if f.Epithet == "" {
		return errors.New("family requires epithet")
	}
	for _, other := range state.families {
		if other.ID != f.ID && other.Epithet == f.Epithet && other.Author == f.Author {
			return fmt.Errorf("family %q (author %q) already exists as %q", f.Epithet, f.Author, other.ID)
		}
	}
	return nil
}

func checkGenus(state *memoryState, g Genus) error {
	if g.Epithet == "" {
		return errors.New("genus requires epithet")
	}
	if g.FamilyID == "" {
		return errors.New("genus requires family id")
	}
	if _, ok := state.families[g.FamilyID]; !ok {
		return fmt.Errorf("family %q not found", g.FamilyID)
	}
	for _, other := range state.genera {
		if other.ID != g.ID && other.FamilyID == g.FamilyID && other.Epithet == g.Epithet && other.Author == g.Author {
			return fmt.Errorf("genus %q (author %q) already exists as %q", g.Epithet, g.Author, other.ID)
		}
	}
	return nil
}

func checkSpecies(state *memoryState, sp Species) error {
	if sp.GenusID == "" {
		return errors.New("species requires genus id")
	}
	if _, ok := state.genera[sp.GenusID]; !ok {
		return fmt.Errorf("genus %q not found", sp.GenusID)
	}
	if sp.DefaultVernacularID != nil {
		vernacular, ok := state.vernaculars[*sp.DefaultVernacularID]
		if !ok {
			return fmt.Errorf("vernacular name %q not found", *sp.DefaultVernacularID)
		}
		if sp.ID != "" && vernacular.SpeciesID != "" && vernacular.SpeciesID != sp.ID {
			return fmt.Errorf("vernacular name %q does not belong to species %q", vernacular.ID, sp.ID)
		}
	}
	for _, id := range sp.DistributionIDs {
		if _, ok := state.geographies[id]; !ok {
			return fmt.Errorf("geography %q not found", id)
		}
	}
	for _, other := range state.species {
		if other.ID == sp.ID {
			continue
		}
		if other.GenusID == sp.GenusID && other.Epithet == sp.Epithet && other.Author == sp.Author &&
			other.InfraRank == sp.InfraRank && other.InfraEpithet == sp.InfraEpithet && other.Cultivar == sp.Cultivar {
			return fmt.Errorf("species %q already exists as %q", sp.Epithet, other.ID)
		}
	}
	return nil
}

func checkVernacularName(state *memoryState, vn VernacularName) error {
	if vn.Name == "" {
		return errors.New("vernacular name requires name")
	}
	if vn.SpeciesID == "" {
		return errors.New("vernacular name requires species id")
	}
	if _, ok := state.species[vn.SpeciesID]; !ok {
		return fmt.Errorf("species %q not found", vn.SpeciesID)
	}
	for _, other := range state.vernaculars {
		if other.ID != vn.ID && other.SpeciesID == vn.SpeciesID && other.Name == vn.Name && other.Language == vn.Language {
			return fmt.Errorf("vernacular name %q (%s) already exists as %q", vn.Name, vn.Language, other.ID)
		}
	}
	return nil
}

func checkGeography(state *memoryState, g Geography) error {
	if g.Name == "" {
		return errors.New("geography requires name")
	}
	if g.ParentID != nil {
		if *g.ParentID == g.ID {
			return fmt.Errorf("geography %q cannot be its own parent", g.ID)
		}
		parent, ok := state.geographies[*g.ParentID]
		if !ok {
			return fmt.Errorf("geography %q not found", *g.ParentID)
		}
		// Walk the ancestry to reject cycles through deeper levels.
		for steps := 0; steps < len(state.geographies)+1; steps++ {
			if parent.ID == g.ID {
				return fmt.Errorf("geography %q would create a parent cycle", g.ID)
			}
			if parent.ParentID == nil {
				break
			}
			next, ok := state.geographies[*parent.ParentID]
			if !ok {
				break
			}
			parent = next
		}
	}
	if g.Code != "" {
		for _, other := range state.geographies {
			if other.ID != g.ID && other.Code == g.Code {
				return fmt.Errorf("geography code %q already in use by %q", g.Code, other.ID)
			}
		}
	}
	return nil
}

func checkAccession(state *memoryState, a Accession) error {
	if a.Code == "" {
		return errors.New("accession requires code")
	}
	if a.SpeciesID == "" {
		return errors.New("accession requires species id")
	}
	if _, ok := state.species[a.SpeciesID]; !ok {
		return fmt.Errorf("species %q not found", a.SpeciesID)
	}
	if a.QuantityReceived < 0 {
		return errors.New("accession quantity received must not be negative")
	}
	if a.IntendedLocationID != nil {
		if _, ok := state.locations[*a.IntendedLocationID]; !ok {
			return fmt.Errorf("location %q not found", *a.IntendedLocationID)
		}
	}
	if a.Source != nil {
		if a.Source.SourceDetailID != nil {
			if _, ok := state.sourceDetails[*a.Source.SourceDetailID]; !ok {
				return fmt.Errorf("source detail %q not found", *a.Source.SourceDetailID)
			}
		}
		if a.Source.Collection != nil && a.Source.Collection.GeographyID != nil {
			if _, ok := state.geographies[*a.Source.Collection.GeographyID]; !ok {
				return fmt.Errorf("geography %q not found", *a.Source.Collection.GeographyID)
			}
		}
	}
	for _, other := range state.accessions {
		if other.ID != a.ID && other.Code == a.Code {
			return fmt.Errorf("accession code %q already in use by %q", a.Code, other.ID)
		}
	}
	return nil
}

func checkPlant(state *memoryState, p Plant) error {
	if p.Code == "" {
		return errors.New("plant requires code")
	}
	if p.AccessionID == "" {
		return errors.New("plant requires accession id")
	}
	if _, ok := state.accessions[p.AccessionID]; !ok {
		return fmt.Errorf("accession %q not found", p.AccessionID)
	}
	if p.LocationID == "" {
		return errors.New("plant requires location id")
	}
	if _, ok := state.locations[p.LocationID]; !ok {
		return fmt.Errorf("location %q not found", p.LocationID)
	}
	if p.Quantity < 0 {
		return errors.New("plant quantity must not be negative")
	}
	for _, other := range state.plants {
		if other.ID != p.ID && other.AccessionID == p.AccessionID && other.Code == p.Code {
			return fmt.Errorf("plant code %q already in use under accession %q", p.Code, p.AccessionID)
		}
	}
	return nil
}

func checkLocation(state *memoryState, l Location) error {
	if l.Code == "" {
		return errors.New("location requires code")
	}
	for _, other := range state.locations {
		if other.ID != l.ID && other.Code == l.Code {
			return fmt.Errorf("location code %q already in use by %q", l.Code, other.ID)
		}
	}
	return nil
}

func checkSourceDetail(state *memoryState, d SourceDetail) error {
	if d.Name == "" {
		return errors.New("source detail requires name")
	}
	for _, other := range state.sourceDetails {
		if other.ID != d.ID && other.Name == d.Name {
			return fmt.Errorf("source detail %q already exists as %q", d.Name, other.ID)
		}
	}
	return nil
}

// CreateFamily stores a new family within the transaction.
func (tx *transaction) CreateFamily(f Family) (Family, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.families[f.ID]; exists {
		return Family{}, fmt.Errorf("family %q already exists", f.ID)
	}
	if err := checkFamily(&tx.state, f); err != nil {
		return Family{}, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = tx.now
	}
	if f.UpdatedAt.IsZero() {
		f.UpdatedAt = tx.now
	}
	tx.state.families[f.ID] = cloneFamily(f)
	tx.recordChange(Change{Entity: domain.EntityFamily, Action: domain.ActionCreate, After: cloneFamily(f)})
	return cloneFamily(f), nil
}

// UpdateFamily mutates a family using the provided mutator function.
func (tx *transaction) UpdateFamily(id string, mutator func(*Family) error) (Family, error) {
	current, ok := tx.state.families[id]
	if !ok {
		return Family{}, fmt.Errorf("family %q not found", id)
	}
	before := cloneFamily(current)
	if err := mutator(&current); err != nil {
		return Family{}, err
	}
	current.ID = id
	if err := checkFamily(&tx.state, current); err != nil {
		return Family{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.families[id] = cloneFamily(current)
	tx.recordChange(Change{Entity: domain.EntityFamily, Action: domain.ActionUpdate, Before: before, After: cloneFamily(current)})
	return cloneFamily(current), nil
}

// DeleteFamily removes a family from the transaction state.
func (tx *transaction) DeleteFamily(id string) error {
	current, ok := tx.state.families[id]
	if !ok {
		return fmt.Errorf("family %q not found", id)
	}
	for _, genus := range tx.state.genera {
		if genus.FamilyID == id {
			return fmt.Errorf("family %q still referenced by genus %q", id, genus.ID)
		}
	}
	delete(tx.state.families, id)
	tx.recordChange(Change{Entity: domain.EntityFamily, Action: domain.ActionDelete, Before: cloneFamily(current)})
	return nil
}

// CreateGenus stores a new genus.
func (tx *transaction) CreateGenus(g Genus) (Genus, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.genera[g.ID]; exists {
		return Genus{}, fmt.Errorf("genus %q already exists", g.ID)
	}
	if err := checkGenus(&tx.state, g); err != nil {
		return Genus{}, err
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = tx.now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = tx.now
	}
	tx.state.genera[g.ID] = cloneGenus(g)
	tx.recordChange(Change{Entity: domain.EntityGenus, Action: domain.ActionCreate, After: cloneGenus(g)})
	return cloneGenus(g), nil
}

// UpdateGenus mutates an existing genus.
func (tx *transaction) UpdateGenus(id string, mutator func(*Genus) error) (Genus, error) {
	current, ok := tx.state.genera[id]
	if !ok {
		return Genus{}, fmt.Errorf("genus %q not found", id)
	}
	before := cloneGenus(current)
	if err := mutator(&current); err != nil {
		return Genus{}, err
	}
	current.ID = id
	if err := checkGenus(&tx.state, current); err != nil {
		return Genus{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.genera[id] = cloneGenus(current)
	tx.recordChange(Change{Entity: domain.EntityGenus, Action: domain.ActionUpdate, Before: before, After: cloneGenus(current)})
	return cloneGenus(current), nil
}

// DeleteGenus removes a genus from state.
func (tx *transaction) DeleteGenus(id string) error {
	current, ok := tx.state.genera[id]
	if !ok {
		return fmt.Errorf("genus %q not found", id)
	}
	for _, sp := range tx.state.species {
		if sp.GenusID == id {
			return fmt.Errorf("genus %q still referenced by species %q", id, sp.ID)
		}
	}
	delete(tx.state.genera, id)
	tx.recordChange(Change{Entity: domain.EntityGenus, Action: domain.ActionDelete, Before: cloneGenus(current)})
	return nil
}

// CreateSpecies stores a new species.
func (tx *transaction) CreateSpecies(sp Species) (Species, error) {
	if sp.ID == "" {
		sp.ID = tx.store.newID()
	}
	if _, exists := tx.state.species[sp.ID]; exists {
		return Species{}, fmt.Errorf("species %q already exists", sp.ID)
	}
	sp.DistributionIDs = dedupeStrings(sp.DistributionIDs)
	if len(sp.DistributionIDs) == 0 {
		sp.DistributionIDs = nil
	}
	if err := checkSpecies(&tx.state, sp); err != nil {
		return Species{}, err
	}
	if sp.CreatedAt.IsZero() {
		sp.CreatedAt = tx.now
	}
	if sp.UpdatedAt.IsZero() {
		sp.UpdatedAt = tx.now
	}
	tx.state.species[sp.ID] = cloneSpecies(sp)
	tx.recordChange(Change{Entity: domain.EntitySpecies, Action: domain.ActionCreate, After: cloneSpecies(sp)})
	return cloneSpecies(sp), nil
}

// UpdateSpecies mutates an existing species.
func (tx *transaction) UpdateSpecies(id string, mutator func(*Species) error) (Species, error) {
	current, ok := tx.state.species[id]
	if !ok {
		return Species{}, fmt.Errorf("species %q not found", id)
	}
	before := cloneSpecies(current)
	if err := mutator(&current); err != nil {
		return Species{}, err
	}
	current.ID = id
	current.DistributionIDs = dedupeStrings(current.DistributionIDs)
	if len(current.DistributionIDs) == 0 {
		current.DistributionIDs = nil
	}
	if err := checkSpecies(&tx.state, current); err != nil {
		return Species{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.species[id] = cloneSpecies(current)
	tx.recordChange(Change{Entity: domain.EntitySpecies, Action: domain.ActionUpdate, Before: before, After: cloneSpecies(current)})
	return cloneSpecies(current), nil
}

// DeleteSpecies removes a species from state.
func (tx *transaction) DeleteSpecies(id string) error {
	current, ok := tx.state.species[id]
	if !ok {
		return fmt.Errorf("species %q not found", id)
	}
	for _, accession := range tx.state.accessions {
		if accession.SpeciesID == id {
			return fmt.Errorf("species %q still referenced by accession %q", id, accession.ID)
		}
	}
	for _, vernacular := range tx.state.vernaculars {
		if vernacular.SpeciesID == id {
			return fmt.Errorf("species %q still referenced by vernacular name %q", id, vernacular.ID)
		}
	}
	delete(tx.state.species, id)
	tx.recordChange(Change{Entity: domain.EntitySpecies, Action: domain.ActionDelete, Before: cloneSpecies(current)})
	return nil
}

// CreateVernacularName stores a new vernacular name.
func (tx *transaction) CreateVernacularName(vn VernacularName) (VernacularName, error) {
	if vn.ID == "" {
		vn.ID = tx.store.newID()
	}
	if _, exists := tx.state.vernaculars[vn.ID]; exists {
		return VernacularName{}, fmt.Errorf("vernacular name %q already exists", vn.ID)
	}
	if err := checkVernacularName(&tx.state, vn); err != nil {
		return VernacularName{}, err
	}
	if vn.CreatedAt.IsZero() {
		vn.CreatedAt = tx.now
	}
	if vn.UpdatedAt.IsZero() {
		vn.UpdatedAt = tx.now
	}
	tx.state.vernaculars[vn.ID] = cloneVernacularName(vn)
	tx.recordChange(Change{Entity: domain.EntityVernacularName, Action: domain.ActionCreate, After: cloneVernacularName(vn)})
	return cloneVernacularName(vn), nil
}

// UpdateVernacularName mutates an existing vernacular name.
func (tx *transaction) UpdateVernacularName(id string, mutator func(*VernacularName) error) (VernacularName, error) {
	current, ok := tx.state.vernaculars[id]
	if !ok {
		return VernacularName{}, fmt.Errorf("vernacular name %q not found", id)
	}
	before := cloneVernacularName(current)
	if err := mutator(&current); err != nil {
		return VernacularName{}, err
	}
	current.ID = id
	if err := checkVernacularName(&tx.state, current); err != nil {
		return VernacularName{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.vernaculars[id] = cloneVernacularName(current)
	tx.recordChange(Change{Entity: domain.EntityVernacularName, Action: domain.ActionUpdate, Before: before, After: cloneVernacularName(current)})
	return cloneVernacularName(current), nil
}

// DeleteVernacularName removes a vernacular name from state.
func (tx *transaction) DeleteVernacularName(id string) error {
	current, ok := tx.state.vernaculars[id]
	if !ok {
		return fmt.Errorf("vernacular name %q not found", id)
	}
	for _, sp := range tx.state.species {
		if sp.DefaultVernacularID != nil && *sp.DefaultVernacularID == id {
			return fmt.Errorf("vernacular name %q is the default for species %q", id, sp.ID)
		}
	}
	delete(tx.state.vernaculars, id)
	tx.recordChange(Change{Entity: domain.EntityVernacularName, Action: domain.ActionDelete, Before: cloneVernacularName(current)})
	return nil
}

// CreateGeography stores a new geography.
func (tx *transaction) CreateGeography(g Geography) (Geography, error) {
	if g.ID == "" {
		g.ID = tx.store.newID()
	}
	if _, exists := tx.state.geographies[g.ID]; exists {
		return Geography{}, fmt.Errorf("geography %q already exists", g.ID)
	}
	if err := checkGeography(&tx.state, g); err != nil {
		return Geography{}, err
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = tx.now
	}
	if g.UpdatedAt.IsZero() {
		g.UpdatedAt = tx.now
	}
	tx.state.geographies[g.ID] = cloneGeography(g)
	tx.recordChange(Change{Entity: domain.EntityGeography, Action: domain.ActionCreate, After: cloneGeography(g)})
	return cloneGeography(g), nil
}

// UpdateGeography mutates an existing geography.
func (tx *transaction) UpdateGeography(id string, mutator func(*Geography) error) (Geography, error) {
	current, ok := tx.state.geographies[id]
	if !ok {
		return Geography{}, fmt.Errorf("geography %q not found", id)
	}
	before := cloneGeography(current)
	if err := mutator(&current); err != nil {
		return Geography{}, err
	}
	current.ID = id
	if err := checkGeography(&tx.state, current); err != nil {
		return Geography{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.geographies[id] = cloneGeography(current)
	tx.recordChange(Change{Entity: domain.EntityGeography, Action: domain.ActionUpdate, Before: before, After: cloneGeography(current)})
	return cloneGeography(current), nil
}

// DeleteGeography removes a geography from state.
func (tx *transaction) DeleteGeography(id string) error {
	current, ok := tx.state.geographies[id]
	if !ok {
		return fmt.Errorf("geography %q not found", id)
	}
	for _, child := range tx.state.geographies {
		if child.ParentID != nil && *child.ParentID == id {
			return fmt.Errorf("geography %q still referenced by geography %q", id, child.ID)
		}
	}
	for _, sp := range tx.state.species {
		if containsString(sp.DistributionIDs, id) {
			return fmt.Errorf("geography %q still referenced by species %q", id, sp.ID)
		}
	}
	for _, accession := range tx.state.accessions {
		if accession.Source != nil && accession.Source.Collection != nil &&
			accession.Source.Collection.GeographyID != nil && *accession.Source.Collection.GeographyID == id {
			return fmt.Errorf("geography %q still referenced by accession %q", id, accession.ID)
		}
	}
	delete(tx.state.geographies, id)
	tx.recordChange(Change{Entity: domain.EntityGeography, Action: domain.ActionDelete, Before: cloneGeography(current)})
	return nil
}

// CreateAccession stores a new accession.
func (tx *transaction) CreateAccession(a Accession) (Accession, error) {
	if a.ID == "" {
		a.ID = tx.store.newID()
	}
	if _, exists := tx.state.accessions[a.ID]; exists {
		return Accession{}, fmt.Errorf("accession %q already exists", a.ID)
	}
	if err := checkAccession(&tx.state, a); err != nil {
		return Accession{}, err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = tx.now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = tx.now
	}
	tx.state.accessions[a.ID] = cloneAccession(a)
	tx.recordChange(Change{Entity: domain.EntityAccession, Action: domain.ActionCreate, After: cloneAccession(a)})
	return cloneAccession(a), nil
}

// UpdateAccession mutates an existing accession.
func (tx *transaction) UpdateAccession(id string, mutator func(*Accession) error) (Accession, error) {
	current, ok := tx.state.accessions[id]
	if !ok {
		return Accession{}, fmt.Errorf("accession %q not found", id)
	}
	before := cloneAccession(current)
	if err := mutator(&current); err != nil {
		return Accession{}, err
	}
	current.ID = id
	if err := checkAccession(&tx.state, current); err != nil {
		return Accession{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.accessions[id] = cloneAccession(current)
	tx.recordChange(Change{Entity: domain.EntityAccession, Action: domain.ActionUpdate, Before: before, After: cloneAccession(current)})
	return cloneAccession(current), nil
}

// DeleteAccession removes an accession from state.
func (tx *transaction) DeleteAccession(id string) error {
	current, ok := tx.state.accessions[id]
	if !ok {
		return fmt.Errorf("accession %q not found", id)
	}
	for _, plant := range tx.state.plants {
		if plant.AccessionID == id {
			return fmt.Errorf("accession %q still referenced by plant %q", id, plant.ID)
		}
	}
	delete(tx.state.accessions, id)
	tx.recordChange(Change{Entity: domain.EntityAccession, Action: domain.ActionDelete, Before: cloneAccession(current)})
	return nil
}

// CreatePlant stores a new plant.
func (tx *transaction) CreatePlant(p Plant) (Plant, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.plants[p.ID]; exists {
		return Plant{}, fmt.Errorf("plant %q already exists", p.ID)
	}
	if err := checkPlant(&tx.state, p); err != nil {
		return Plant{}, err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = tx.now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = tx.now
	}
	tx.state.plants[p.ID] = clonePlant(p)
	tx.recordChange(Change{Entity: domain.EntityPlant, Action: domain.ActionCreate, After: clonePlant(p)})
	return clonePlant(p), nil
}

// UpdatePlant mutates an existing plant.
func (tx *transaction) UpdatePlant(id string, mutator func(*Plant) error) (Plant, error) {
	current, ok := tx.state.plants[id]
	if !ok {
		return Plant{}, fmt.Errorf("plant %q not found", id)
	}
	before := clonePlant(current)
	if err := mutator(&current); err != nil {
		return Plant{}, err
	}
	current.ID = id
	if err := checkPlant(&tx.state, current); err != nil {
		return Plant{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.plants[id] = clonePlant(current)
	tx.recordChange(Change{Entity: domain.EntityPlant, Action: domain.ActionUpdate, Before: before, After: clonePlant(current)})
	return clonePlant(current), nil
}

// DeletePlant removes a plant from state.
func (tx *transaction) DeletePlant(id string) error {
	current, ok := tx.state.plants[id]
	if !ok {
		return fmt.Errorf("plant %q not found", id)
	}
	delete(tx.state.plants, id)
	tx.recordChange(Change{Entity: domain.EntityPlant, Action: domain.ActionDelete, Before: clonePlant(current)})
	return nil
}

// CreateLocation stores a new location.
func (tx *transaction) CreateLocation(l Location) (Location, error) {
	if l.ID == "" {
		l.ID = tx.store.newID()
	}
	if _, exists := tx.state.locations[l.ID]; exists {
		return Location{}, fmt.Errorf("location %q already exists", l.ID)
	}
	if err := checkLocation(&tx.state, l); err != nil {
		return Location{}, err
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = tx.now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = tx.now
	}
	tx.state.locations[l.ID] = cloneLocation(l)
	tx.recordChange(Change{Entity: domain.EntityLocation, Action: domain.ActionCreate, After: cloneLocation(l)})
	return cloneLocation(l), nil
}

// UpdateLocation mutates an existing location.
func (tx *transaction) UpdateLocation(id string, mutator func(*Location) error) (Location, error) {
	current, ok := tx.state.locations[id]
	if !ok {
		return Location{}, fmt.Errorf("location %q not found", id)
	}
	before := cloneLocation(current)
	if err := mutator(&current); err != nil {
		return Location{}, err
	}
	current.ID = id
	if err := checkLocation(&tx.state, current); err != nil {
		return Location{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.locations[id] = cloneLocation(current)
	tx.recordChange(Change{Entity: domain.EntityLocation, Action: domain.ActionUpdate, Before: before, After: cloneLocation(current)})
	return cloneLocation(current), nil
}

// DeleteLocation removes a location from state.
func (tx *transaction) DeleteLocation(id string) error {
	current, ok := tx.state.locations[id]
	if !ok {
		return fmt.Errorf("location %q not found", id)
	}
	for _, plant := range tx.state.plants {
		if plant.LocationID == id {
			return fmt.Errorf("location %q still referenced by plant %q", id, plant.ID)
		}
	}
	for _, accession := range tx.state.accessions {
		if accession.IntendedLocationID != nil && *accession.IntendedLocationID == id {
			return fmt.Errorf("location %q still referenced by accession %q", id, accession.ID)
		}
	}
	delete(tx.state.locations, id)
	tx.recordChange(Change{Entity: domain.EntityLocation, Action: domain.ActionDelete, Before: cloneLocation(current)})
	return nil
}

// CreateSourceDetail stores a new source detail.
func (tx *transaction) CreateSourceDetail(d SourceDetail) (SourceDetail, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.sourceDetails[d.ID]; exists {
		return SourceDetail{}, fmt.Errorf("source detail %q already exists", d.ID)
	}
	if err := checkSourceDetail(&tx.state, d); err != nil {
		return SourceDetail{}, err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = tx.now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = tx.now
	}
	tx.state.sourceDetails[d.ID] = cloneSourceDetail(d)
	tx.recordChange(Change{Entity: domain.EntitySourceDetail, Action: domain.ActionCreate, After: cloneSourceDetail(d)})
	return cloneSourceDetail(d), nil
}

// UpdateSourceDetail mutates an existing source detail.
func (tx *transaction) UpdateSourceDetail(id string, mutator func(*SourceDetail) error) (SourceDetail, error) {
	current, ok := tx.state.sourceDetails[id]
	if !ok {
		return SourceDetail{}, fmt.Errorf("source detail %q not found", id)
	}
	before := cloneSourceDetail(current)
	if err := mutator(&current); err != nil {
		return SourceDetail{}, err
	}
	current.ID = id
	if err := checkSourceDetail(&tx.state, current); err != nil {
		return SourceDetail{}, err
	}
	current.UpdatedAt = tx.now
	tx.state.sourceDetails[id] = cloneSourceDetail(current)
	tx.recordChange(Change{Entity: domain.EntitySourceDetail, Action: domain.ActionUpdate, Before: before, After: cloneSourceDetail(current)})
	return cloneSourceDetail(current), nil
}

// DeleteSourceDetail removes a source detail from state.
func (tx *transaction) DeleteSourceDetail(id string) error {
	current, ok := tx.state.sourceDetails[id]
	if !ok {
		return fmt.Errorf("source detail %q not found", id)
	}
	for _, accession := range tx.state.accessions {
		if accession.Source != nil && accession.Source.SourceDetailID != nil && *accession.Source.SourceDetailID == id {
			return fmt.Errorf("source detail %q still referenced by accession %q", id, accession.ID)
		}
	}
	delete(tx.state.sourceDetails, id)
	tx.recordChange(Change{Entity: domain.EntitySourceDetail, Action: domain.ActionDelete, Before: cloneSourceDetail(current)})
	return nil
}

// SavePluginRecord upserts the bookkeeping record for an installed plugin.
func (tx *transaction) SavePluginRecord(p PluginRecord) (PluginRecord, error) {
	if p.Name == "" {
		return PluginRecord{}, errors.New("plugin record requires name")
	}
	current, exists := tx.state.pluginRecords[p.Name]
	if exists {
		p.InstalledAt = current.InstalledAt
	} else if p.InstalledAt.IsZero() {
		p.InstalledAt = tx.now
	}
	p.UpdatedAt = tx.now
	tx.state.pluginRecords[p.Name] = clonePluginRecord(p)
	if exists {
		tx.recordChange(Change{Entity: domain.EntityPluginRecord, Action: domain.ActionUpdate, Before: clonePluginRecord(current), After: clonePluginRecord(p)})
	} else {
		tx.recordChange(Change{Entity: domain.EntityPluginRecord, Action: domain.ActionCreate, After: clonePluginRecord(p)})
	}
	return clonePluginRecord(p), nil
}

// GetFamily retrieves a family by ID.
func (s *Store) GetFamily(id string) (Family, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.families[id]
	if !ok {
		return Family{}, false
	}
	return cloneFamily(f), true
}

// ListFamilies returns all families.
func (s *Store) ListFamilies() []Family {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Family, 0, len(s.state.families))
	for _, f := range s.state.families {
		out = append(out, cloneFamily(f))
	}
	return out
}

// GetGenus retrieves a genus by ID.
func (s *Store) GetGenus(id string) (Genus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.genera[id]
	if !ok {
		return Genus{}, false
	}
	return cloneGenus(g), true
}

// ListGenera returns all genera.
func (s *Store) ListGenera() []Genus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Genus, 0, len(s.state.genera))
	for _, g := range s.state.genera {
		out = append(out, cloneGenus(g))
	}
	return out
}

// GetSpecies retrieves a species by ID.
func (s *Store) GetSpecies(id string) (Species, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sp, ok := s.state.species[id]
	if !ok {
		return Species{}, false
	}
	return cloneSpecies(sp), true
}

// ListSpecies returns all species.
func (s *Store) ListSpecies() []Species {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Species, 0, len(s.state.species))
	for _, sp := range s.state.species {
		out = append(out, cloneSpecies(sp))
	}
	return out
}

// GetVernacularName retrieves a vernacular name by ID.
func (s *Store) GetVernacularName(id string) (VernacularName, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vn, ok := s.state.vernaculars[id]
	if !ok {
		return VernacularName{}, false
	}
	return cloneVernacularName(vn), true
}

// ListVernacularNames returns all vernacular names.
func (s *Store) ListVernacularNames() []VernacularName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]VernacularName, 0, len(s.state.vernaculars))
	for _, vn := range s.state.vernaculars {
		out = append(out, cloneVernacularName(vn))
	}
	return out
}

// GetGeography retrieves a geography by ID.
func (s *Store) GetGeography(id string) (Geography, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.state.geographies[id]
	if !ok {
		return Geography{}, false
	}
	return cloneGeography(g), true
}

// ListGeographies returns all geographies.
func (s *Store) ListGeographies() []Geography {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Geography, 0, len(s.state.geographies))
	for _, g := range s.state.geographies {
		out = append(out, cloneGeography(g))
	}
	return out
}

// GetAccession retrieves an accession by ID.
func (s *Store) GetAccession(id string) (Accession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.state.accessions[id]
	if !ok {
		return Accession{}, false
	}
	return cloneAccession(a), true
}

// ListAccessions returns all accessions.
func (s *Store) ListAccessions() []Accession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Accession, 0, len(s.state.accessions))
	for _, a := range s.state.accessions {
		out = append(out, cloneAccession(a))
	}
	return out
}

// GetPlant retrieves a plant by ID.
func (s *Store) GetPlant(id string) (Plant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.plants[id]
	if !ok {
		return Plant{}, false
	}
	return clonePlant(p), true
}

// ListPlants returns all plants.
func (s *Store) ListPlants() []Plant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Plant, 0, len(s.state.plants))
	for _, p := range s.state.plants {
		out = append(out, clonePlant(p))
	}
	return out
}

// GetLocation retrieves a location by ID.
func (s *Store) GetLocation(id string) (Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.state.locations[id]
	if !ok {
		return Location{}, false
	}
	return cloneLocation(l), true
}

// ListLocations returns all locations.
func (s *Store) ListLocations() []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Location, 0, len(s.state.locations))
	for _, l := range s.state.locations {
		out = append(out, cloneLocation(l))
	}
	return out
}

// GetSourceDetail retrieves a source detail by ID.
func (s *Store) GetSourceDetail(id string) (SourceDetail, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.sourceDetails[id]
	if !ok {
		return SourceDetail{}, false
	}
	return cloneSourceDetail(d), true
}

// ListSourceDetails returns all source details.
func (s *Store) ListSourceDetails() []SourceDetail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SourceDetail, 0, len(s.state.sourceDetails))
	for _, d := range s.state.sourceDetails {
		out = append(out, cloneSourceDetail(d))
	}
	return out
}

// ListPluginRecords returns all installed-plugin records.
func (s *Store) ListPluginRecords() []PluginRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PluginRecord, 0, len(s.state.pluginRecords))
	for _, p := range s.state.pluginRecords {
		out = append(out, clonePluginRecord(p))
	}
	return out
}
