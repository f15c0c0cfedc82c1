package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"floracore/pkg/domain"
)

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

type spanRecord struct {
	op  string
	err error
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	for _, record := range c.ended {
		if record.op == op {
			if success && record.err == nil {
				return true
			}
			if !success && record.err != nil {
				return true
			}
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func TestServiceObservabilityAcrossEntities(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}

	svc := NewInMemoryService(domain.NewRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
	)

	family, _, err := svc.CreateFamily(ctx, Family{Epithet: "Fabaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	if !audit.has("create_family", AuditStatusSuccess, func(entry AuditEntry) bool { return entry.EntityID == family.ID }) {
		t.Fatalf("expected audit entry for create_family success")
	}

	if _, _, err := svc.UpdateFamily(ctx, family.ID, func(f *Family) error {
		f.Author = "Lindl."
		return nil
	}); err != nil {
		t.Fatalf("update family: %v", err)
	}
	if !audit.has("update_family", AuditStatusSuccess, nil) {
		t.Fatalf("expected audit entry for update_family success")
	}

	if _, err := svc.DeleteGenus(ctx, "missing-genus"); err == nil {
		t.Fatalf("expected delete_genus error for missing id")
	}
	if !audit.has("delete_genus", AuditStatusError, nil) {
		t.Fatalf("expected audit error entry for delete_genus")
	}
	if !metrics.has("delete_genus", false) {
		t.Fatalf("expected metrics entry for failed delete_genus")
	}
	if !tracer.has("delete_genus", false) {
		t.Fatalf("expected trace span for failed delete_genus")
	}

	genus, _, err := svc.CreateGenus(ctx, Genus{Epithet: "Acacia", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}
	species, _, err := svc.CreateSpecies(ctx, Species{GenusID: genus.ID, Epithet: "dealbata"})
	if err != nil {
		t.Fatalf("create species: %v", err)
	}

	name, _, err := svc.CreateVernacularName(ctx, VernacularName{SpeciesID: species.ID, Name: "silver wattle", Language: "en"})
	if err != nil {
		t.Fatalf("create vernacular: %v", err)
	}
	if _, _, err := svc.SetDefaultVernacularName(ctx, species.ID, name.ID); err != nil {
		t.Fatalf("set default vernacular: %v", err)
	}
	if !audit.has("set_default_vernacular", AuditStatusSuccess, func(entry AuditEntry) bool { return entry.EntityID == species.ID }) {
		t.Fatalf("expected audit entry for set_default_vernacular")
	}

	location, _, err := svc.CreateLocation(ctx, Location{Code: "BED1", Name: "Front bed"})
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	accession, _, err := svc.CreateAccession(ctx, Accession{Code: "2024.0001", SpeciesID: species.ID, QuantityReceived: 3})
	if err != nil {
		t.Fatalf("create accession: %v", err)
	}
	plant, _, err := svc.CreatePlant(ctx, Plant{Code: "1", AccessionID: accession.ID, LocationID: location.ID, Quantity: 3})
	if err != nil {
		t.Fatalf("create plant: %v", err)
	}

	shade, _, err := svc.CreateLocation(ctx, Location{Code: "SHD1", Name: "Shade house"})
	if err != nil {
		t.Fatalf("create second location: %v", err)
	}
	moved, _, err := svc.AssignPlantLocation(ctx, plant.ID, shade.ID)
	if err != nil {
		t.Fatalf("assign plant location: %v", err)
	}
	if moved.LocationID != shade.ID {
		t.Fatalf("expected plant moved to %s, got %s", shade.ID, moved.LocationID)
	}
	if !audit.has("assign_plant_location", AuditStatusSuccess, nil) {
		t.Fatalf("expected audit entry for assign_plant_location")
	}

	detail, _, err := svc.CreateSourceDetail(ctx, SourceDetail{Name: "Mt Annan seed bank", SourceType: domain.SourceGeneBank})
	if err != nil {
		t.Fatalf("create source detail: %v", err)
	}
	if _, _, err := svc.UpdateSourceDetail(ctx, detail.ID, func(d *SourceDetail) error {
		d.Description = "national collection"
		return nil
	}); err != nil {
		t.Fatalf("update source detail: %v", err)
	}

	geo, _, err := svc.CreateGeography(ctx, Geography{Code: "AUS", Name: "Australia"})
	if err != nil {
		t.Fatalf("create geography: %v", err)
	}
	if _, _, err := svc.UpdateGeography(ctx, geo.ID, func(g *Geography) error {
		g.Code = "AU-NSW"
		return nil
	}); err != nil {
		t.Fatalf("update geography: %v", err)
	}

	if _, err := svc.DeletePlant(ctx, plant.ID); err != nil {
		t.Fatalf("delete plant: %v", err)
	}
	if _, err := svc.DeleteAccession(ctx, accession.ID); err != nil {
		t.Fatalf("delete accession: %v", err)
	}
	if !metrics.has("delete_accession", true) {
		t.Fatalf("expected metrics entry for delete_accession")
	}
	if !tracer.has("create_plant", true) {
		t.Fatalf("expected trace span for create_plant")
	}
}

func TestServiceRunErrorLogging(t *testing.T) {
	log := &captureLogger{}
	svc := NewInMemoryService(domain.NewRulesEngine(), WithLogger(log))
	if _, _, err := svc.UpdateSpecies(context.Background(), "missing", func(*Species) error { return nil }); err == nil {
		t.Fatalf("expected error updating missing species")
	}
	var found bool
	for _, c := range log.calls {
		if strings.HasPrefix(c, "e:") {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected error log entry, got %v", log.calls)
	}
}

func TestSetDefaultVernacularNameValidatesOwnership(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(domain.NewRulesEngine())

	family, _, err := svc.CreateFamily(ctx, Family{Epithet: "Myrtaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	genus, _, err := svc.CreateGenus(ctx, Genus{Epithet: "Eucalyptus", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}
	first, _, err := svc.CreateSpecies(ctx, Species{GenusID: genus.ID, Epithet: "globulus"})
	if err != nil {
		t.Fatalf("create species: %v", err)
	}
	second, _, err := svc.CreateSpecies(ctx, Species{GenusID: genus.ID, Epithet: "regnans"})
	if err != nil {
		t.Fatalf("create second species: %v", err)
	}
	name, _, err := svc.CreateVernacularName(ctx, VernacularName{SpeciesID: second.ID, Name: "mountain ash", Language: "en"})
	if err != nil {
		t.Fatalf("create vernacular: %v", err)
	}

	if _, _, err := svc.SetDefaultVernacularName(ctx, first.ID, name.ID); err == nil {
		t.Fatal("expected ownership error")
	}

	var notFound ErrNotFound
	if _, _, err := svc.SetDefaultVernacularName(ctx, first.ID, "missing-name"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	} else if notFound.Entity != EntityVernacularName {
		t.Fatalf("unexpected entity in ErrNotFound: %s", notFound.Entity)
	}

	if _, _, err := svc.SetDefaultVernacularName(ctx, second.ID, name.ID); err != nil {
		t.Fatalf("set default: %v", err)
	}
	cleared, _, err := svc.SetDefaultVernacularName(ctx, second.ID, "")
	if err != nil {
		t.Fatalf("clear default: %v", err)
	}
	if cleared.DefaultVernacularID != nil {
		t.Fatal("expected default cleared")
	}
}

func TestAssignPlantLocationRequiresLocation(t *testing.T) {
	ctx := context.Background()
	svc := NewInMemoryService(domain.NewRulesEngine())

	var notFound ErrNotFound
	if _, _, err := svc.AssignPlantLocation(ctx, "plant-1", "missing-loc"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Entity != EntityLocation || notFound.ID != "missing-loc" {
		t.Fatalf("unexpected ErrNotFound contents: %+v", notFound)
	}
}

type quantityRule struct{}

func (quantityRule) Name() string { return "accession_quantity_cap" }

func (quantityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	var res Result
	for _, change := range changes {
		acc, ok := change.After.(Accession)
		if !ok {
			continue
		}
		if acc.QuantityReceived > 100 {
			res.Violations = append(res.Violations, Violation{
				Rule:     "accession_quantity_cap",
				Severity: SeverityBlock,
				Message:  "quantity exceeds cap",
				Entity:   EntityAccession,
				EntityID: acc.ID,
			})
		}
	}
	return res, nil
}

func TestServiceSurfacesRuleViolations(t *testing.T) {
	ctx := context.Background()
	engine := domain.NewRulesEngine()
	engine.Register(quantityRule{})
	svc := NewInMemoryService(engine)

	family, _, err := svc.CreateFamily(ctx, Family{Epithet: "Proteaceae"})
	if err != nil {
		t.Fatalf("create family: %v", err)
	}
	genus, _, err := svc.CreateGenus(ctx, Genus{Epithet: "Banksia", FamilyID: family.ID})
	if err != nil {
		t.Fatalf("create genus: %v", err)
	}
	species, _, err := svc.CreateSpecies(ctx, Species{GenusID: genus.ID, Epithet: "serrata"})
	if err != nil {
		t.Fatalf("create species: %v", err)
	}

	_, res, err := svc.CreateAccession(ctx, Accession{Code: "2024.0002", SpeciesID: species.ID, QuantityReceived: 500})
	if err == nil {
		t.Fatal("expected rule violation error")
	}
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %T", err)
	}
	if !res.HasBlocking() {
		t.Fatal("expected blocking result")
	}
	if svc.Store().ListAccessions() != nil && len(svc.Store().ListAccessions()) != 0 {
		t.Fatal("expected accession rolled back")
	}
}

func TestServiceClockAndDelimiterDefaults(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewInMemoryService(nil, WithClock(ClockFunc(func() time.Time { return fixed })))
	if svc.PlantDelimiter() != DefaultPlantDelimiter {
		t.Fatalf("unexpected delimiter %q", svc.PlantDelimiter())
	}
	svc.SetPlantDelimiter("/")
	if svc.PlantDelimiter() != "/" {
		t.Fatalf("expected overridden delimiter, got %q", svc.PlantDelimiter())
	}
	if svc.Now().IsZero() {
		t.Fatal("expected service time source")
	}
}
