package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"floracore/internal/infra/persistence/memory"
	"floracore/pkg/reportapi"
)

// Service exposes higher-level transactional CRUD operations for the core schema.
// Every mutating operation runs inside a store transaction, is traced, measured,
// and audited.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	nowFn   func() time.Time

	delimiter string

	mu        sync.RWMutex
	plugins   map[string]PluginMetadata
	templates map[string]*reportapi.HostTemplate
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return &Service{
		store:     store,
		engine:    extractRulesEngine(store),
		clock:     options.clock,
		logger:    options.logger,
		audit:     options.audit,
		metrics:   options.metrics,
		tracer:    options.tracer,
		nowFn:     selectNowFunc(store, options.clock),
		delimiter: DefaultPlantDelimiter,
		plugins:   make(map[string]PluginMetadata),
		templates: make(map[string]*reportapi.HostTemplate),
	}
}

// NewInMemoryService creates a service and in-memory store with the given rules engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine validating transactions, when the store exposes one.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// Now returns the service time source, aligned with store timestamps.
func (s *Service) Now() time.Time {
	return s.nowFn()
}

// PlantDelimiter returns the separator joining accession and plant codes.
func (s *Service) PlantDelimiter() string {
	return s.delimiter
}

// SetPlantDelimiter overrides the separator joining accession and plant codes.
func (s *Service) SetPlantDelimiter(delimiter string) {
	if delimiter != "" {
		s.delimiter = delimiter
	}
}

// auditOperations maps operation names to the entity and action recorded in
// audit entries. Operations absent from the map are not audited.
var auditOperations = map[string]struct {
	Entity EntityType
	Action Action
}{
	"create_family":          {EntityFamily, ActionCreate},
	"update_family":          {EntityFamily, ActionUpdate},
	"delete_family":          {EntityFamily, ActionDelete},
	"create_genus":           {EntityGenus, ActionCreate},
	"update_genus":           {EntityGenus, ActionUpdate},
	"delete_genus":           {EntityGenus, ActionDelete},
	"create_species":         {EntitySpecies, ActionCreate},
	"update_species":         {EntitySpecies, ActionUpdate},
	"delete_species":         {EntitySpecies, ActionDelete},
	"create_vernacular_name": {EntityVernacularName, ActionCreate},
	"update_vernacular_name": {EntityVernacularName, ActionUpdate},
	"delete_vernacular_name": {EntityVernacularName, ActionDelete},
	"set_default_vernacular": {EntitySpecies, ActionUpdate},
	"create_geography":       {EntityGeography, ActionCreate},
	"update_geography":       {EntityGeography, ActionUpdate},
	"delete_geography":       {EntityGeography, ActionDelete},
	"create_accession":       {EntityAccession, ActionCreate},
	"update_accession":       {EntityAccession, ActionUpdate},
	"delete_accession":       {EntityAccession, ActionDelete},
	"create_plant":           {EntityPlant, ActionCreate},
	"update_plant":           {EntityPlant, ActionUpdate},
	"delete_plant":           {EntityPlant, ActionDelete},
	"assign_plant_location":  {EntityPlant, ActionUpdate},
	"create_location":        {EntityLocation, ActionCreate},
	"update_location":        {EntityLocation, ActionUpdate},
	"delete_location":        {EntityLocation, ActionDelete},
	"create_source_detail":   {EntitySourceDetail, ActionCreate},
	"update_source_detail":   {EntitySourceDetail, ActionUpdate},
	"delete_source_detail":   {EntitySourceDetail, ActionDelete},
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.Entity,
		Action:    meta.Action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, operation string, opErr error, duration time.Duration) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: operation,
		Entity:    meta.Entity,
		Action:    meta.Action,
		Status:    AuditStatusError,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	s.audit.Record(ctx, entry)
}

// run executes fn inside a store transaction with tracing, metrics, audit, and
// logging applied uniformly. entityID is read after fn completes so callers can
// point it at the created or updated record's identifier.
func (s *Service) run(ctx context.Context, operation string, entityID *string, fn func(tx Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, operation)
	start := s.clock.Now()
	s.logger.Debug("operation started", "operation", operation)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock.Now().Sub(start)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	span.End(err)
	if err != nil {
		s.logger.Error("operation failed", "operation", operation, "error", err)
		s.recordAuditError(ctx, operation, err, duration)
		return res, err
	}
	id := ""
	if entityID != nil {
		id = *entityID
	}
	s.logger.Info("operation completed", "operation", operation, "entity_id", id)
	s.recordAuditSuccess(ctx, operation, id, duration)
	return res, nil
}

// CreateFamily persists a new family.
func (s *Service) CreateFamily(ctx context.Context, family Family) (Family, Result, error) {
	var created Family
	res, err := s.run(ctx, "create_family", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateFamily(family)
		return err
	})
	return created, res, err
}

// UpdateFamily mutates a family using the provided mutator.
func (s *Service) UpdateFamily(ctx context.Context, id string, mutator func(*Family) error) (Family, Result, error) {
	var updated Family
	res, err := s.run(ctx, "update_family", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateFamily(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteFamily removes a family record.
func (s *Service) DeleteFamily(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_family", nil, func(tx Transaction) error {
		return tx.DeleteFamily(id)
	})
}

// CreateGenus persists a new genus.
func (s *Service) CreateGenus(ctx context.Context, genus Genus) (Genus, Result, error) {
	var created Genus
	res, err := s.run(ctx, "create_genus", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateGenus(genus)
		return err
	})
	return created, res, err
}

// UpdateGenus mutates a genus.
func (s *Service) UpdateGenus(ctx context.Context, id string, mutator func(*Genus) error) (Genus, Result, error) {
	var updated Genus
	res, err := s.run(ctx, "update_genus", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateGenus(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteGenus removes a genus record.
func (s *Service) DeleteGenus(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_genus", nil, func(tx Transaction) error {
		return tx.DeleteGenus(id)
	})
}

// CreateSpecies persists a new species.
func (s *Service) CreateSpecies(ctx context.Context, species Species) (Species, Result, error) {
	var created Species
	res, err := s.run(ctx, "create_species", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateSpecies(species)
		return err
	})
	return created, res, err
}

// UpdateSpecies mutates a species.
func (s *Service) UpdateSpecies(ctx context.Context, id string, mutator func(*Species) error) (Species, Result, error) {
	var updated Species
	res, err := s.run(ctx, "update_species", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateSpecies(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteSpecies removes a species record.
func (s *Service) DeleteSpecies(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_species", nil, func(tx Transaction) error {
		return tx.DeleteSpecies(id)
	})
}

// CreateVernacularName persists a common name attached to a species.
func (s *Service) CreateVernacularName(ctx context.Context, name VernacularName) (VernacularName, Result, error) {
	var created VernacularName
	res, err := s.run(ctx, "create_vernacular_name", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateVernacularName(name)
		return err
	})
	return created, res, err
}

// UpdateVernacularName mutates a vernacular name.
func (s *Service) UpdateVernacularName(ctx context.Context, id string, mutator func(*VernacularName) error) (VernacularName, Result, error) {
	var updated VernacularName
	res, err := s.run(ctx, "update_vernacular_name", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateVernacularName(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteVernacularName removes a vernacular name record.
func (s *Service) DeleteVernacularName(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_vernacular_name", nil, func(tx Transaction) error {
		return tx.DeleteVernacularName(id)
	})
}

// SetDefaultVernacularName marks one of a species' vernacular names as the
// default shown in summaries. An empty vernacularID clears the default. The
// name must belong to the species.
func (s *Service) SetDefaultVernacularName(ctx context.Context, speciesID, vernacularID string) (Species, Result, error) {
	var updated Species
	res, err := s.run(ctx, "set_default_vernacular", &updated.ID, func(tx Transaction) error {
		if vernacularID != "" {
			name, ok := tx.Snapshot().FindVernacularName(vernacularID)
			if !ok {
				return ErrNotFound{Entity: EntityVernacularName, ID: vernacularID}
			}
			if name.SpeciesID != speciesID {
				return fmt.Errorf("vernacular name %s does not belong to species %s", vernacularID, speciesID)
			}
		}
		var err error
		updated, err = tx.UpdateSpecies(speciesID, func(sp *Species) error {
			if vernacularID == "" {
				sp.DefaultVernacularID = nil
				return nil
			}
			id := vernacularID
			sp.DefaultVernacularID = &id
			return nil
		})
		return err
	})
	return updated, res, err
}

// CreateGeography persists a geographic area.
func (s *Service) CreateGeography(ctx context.Context, geography Geography) (Geography, Result, error) {
	var created Geography
	res, err := s.run(ctx, "create_geography", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateGeography(geography)
		return err
	})
	return created, res, err
}

// UpdateGeography mutates a geographic area.
func (s *Service) UpdateGeography(ctx context.Context, id string, mutator func(*Geography) error) (Geography, Result, error) {
	var updated Geography
	res, err := s.run(ctx, "update_geography", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateGeography(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteGeography removes a geographic area record.
func (s *Service) DeleteGeography(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_geography", nil, func(tx Transaction) error {
		return tx.DeleteGeography(id)
	})
}

// CreateAccession persists a new accession.
func (s *Service) CreateAccession(ctx context.Context, accession Accession) (Accession, Result, error) {
	var created Accession
	res, err := s.run(ctx, "create_accession", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateAccession(accession)
		return err
	})
	return created, res, err
}

// UpdateAccession mutates an accession.
func (s *Service) UpdateAccession(ctx context.Context, id string, mutator func(*Accession) error) (Accession, Result, error) {
	var updated Accession
	res, err := s.run(ctx, "update_accession", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateAccession(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteAccession removes an accession record.
func (s *Service) DeleteAccession(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_accession", nil, func(tx Transaction) error {
		return tx.DeleteAccession(id)
	})
}

// CreatePlant persists a living plant under an accession.
func (s *Service) CreatePlant(ctx context.Context, plant Plant) (Plant, Result, error) {
	var created Plant
	res, err := s.run(ctx, "create_plant", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreatePlant(plant)
		return err
	})
	return created, res, err
}

// UpdatePlant mutates a plant.
func (s *Service) UpdatePlant(ctx context.Context, id string, mutator func(*Plant) error) (Plant, Result, error) {
	var updated Plant
	res, err := s.run(ctx, "update_plant", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePlant(id, mutator)
		return err
	})
	return updated, res, err
}

// DeletePlant removes a plant record.
func (s *Service) DeletePlant(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_plant", nil, func(tx Transaction) error {
		return tx.DeletePlant(id)
	})
}

// AssignPlantLocation moves a plant to a garden location within a transaction
// that validates the location exists.
func (s *Service) AssignPlantLocation(ctx context.Context, plantID, locationID string) (Plant, Result, error) {
	var updated Plant
	res, err := s.run(ctx, "assign_plant_location", &updated.ID, func(tx Transaction) error {
		if _, ok := tx.Snapshot().FindLocation(locationID); !ok {
			return ErrNotFound{Entity: EntityLocation, ID: locationID}
		}
		var err error
		updated, err = tx.UpdatePlant(plantID, func(p *Plant) error {
			p.LocationID = locationID
			return nil
		})
		return err
	})
	return updated, res, err
}

// CreateLocation persists a garden location.
func (s *Service) CreateLocation(ctx context.Context, location Location) (Location, Result, error) {
	var created Location
	res, err := s.run(ctx, "create_location", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateLocation(location)
		return err
	})
	return created, res, err
}

// UpdateLocation mutates a garden location.
func (s *Service) UpdateLocation(ctx context.Context, id string, mutator func(*Location) error) (Location, Result, error) {
	var updated Location
	res, err := s.run(ctx, "update_location", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateLocation(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteLocation removes a garden location record.
func (s *Service) DeleteLocation(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_location", nil, func(tx Transaction) error {
		return tx.DeleteLocation(id)
	})
}

// CreateSourceDetail persists a contact or institution record.
func (s *Service) CreateSourceDetail(ctx context.Context, detail SourceDetail) (SourceDetail, Result, error) {
	var created SourceDetail
	res, err := s.run(ctx, "create_source_detail", &created.ID, func(tx Transaction) error {
		var err error
		created, err = tx.CreateSourceDetail(detail)
		return err
	})
	return created, res, err
}

// UpdateSourceDetail mutates a contact or institution record.
func (s *Service) UpdateSourceDetail(ctx context.Context, id string, mutator func(*SourceDetail) error) (SourceDetail, Result, error) {
	var updated SourceDetail
	res, err := s.run(ctx, "update_source_detail", &updated.ID, func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateSourceDetail(id, mutator)
		return err
	})
	return updated, res, err
}

// DeleteSourceDetail removes a contact or institution record.
func (s *Service) DeleteSourceDetail(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_source_detail", nil, func(tx Transaction) error {
		return tx.DeleteSourceDetail(id)
	})
}

// ErrNotFound is returned when reference validation fails within transactional helpers.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}
