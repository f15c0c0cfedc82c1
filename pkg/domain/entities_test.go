package domain

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	if res.HasBlocking() {
		t.Fatalf("empty result should not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "a", Severity: SeverityWarn}}})
	res.Merge(Result{})
	if len(res.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(res.Violations))
	}
	if res.HasBlocking() {
		t.Fatalf("warn severity should not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "b", Severity: SeverityBlock}}})
	if !res.HasBlocking() {
		t.Fatalf("blocking violation not detected")
	}
}

func TestRuleViolationErrorMessage(t *testing.T) {
	err := RuleViolationError{Result: Result{Violations: []Violation{{Rule: "x", Severity: SeverityBlock}}}}
	if err.Error() != "transaction blocked by rules" {
		t.Fatalf("unexpected error message %q", err.Error())
	}
}

func TestAccessionJSONRoundTripKeepsSource(t *testing.T) {
	date := time.Date(2023, 4, 12, 0, 0, 0, 0, time.UTC)
	detail := "sd-1"
	lat := -33.87
	acc := Accession{
		Base:       Base{ID: "acc-1", CreatedAt: date, UpdatedAt: date},
		Code:       "2023.0001",
		SpeciesID:  "sp-1",
		Provenance: ProvenanceWild,
		Source: &Source{
			SourcesCode:    "KX-12",
			SourceDetailID: &detail,
			Collection: &Collection{
				Collector: "E. Chambers",
				Date:      &date,
				Locale:    "Blue Mountains, NSW",
				Latitude:  &lat,
			},
		},
	}
	payload, err := json.Marshal(acc)
	if err != nil {
		t.Fatalf("marshal accession: %v", err)
	}
	var decoded Accession
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal accession: %v", err)
	}
	if decoded.Source == nil || decoded.Source.Collection == nil {
		t.Fatalf("embedded source block lost in round trip")
	}
	if decoded.Source.Collection.Collector != "E. Chambers" {
		t.Fatalf("collector mismatch: %q", decoded.Source.Collection.Collector)
	}
	if decoded.Source.SourceDetailID == nil || *decoded.Source.SourceDetailID != "sd-1" {
		t.Fatalf("source detail reference mismatch")
	}
}

func TestRulesEngineAggregatesResults(t *testing.T) {
	engine := NewRulesEngine()
	engine.Register(stubRule{name: "warn", result: Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}}})
	engine.Register(stubRule{name: "log", result: Result{Violations: []Violation{{Rule: "log", Severity: SeverityLog}}}})
	res, err := engine.Evaluate(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected merged violations, got %d", len(res.Violations))
	}
	if res.HasBlocking() {
		t.Fatalf("no blocking severity registered")
	}
}

type stubRule struct {
	name   string
	result Result
}

func (r stubRule) Name() string { return r.name }

func (r stubRule) Evaluate(_ context.Context, _ RuleView, _ []Change) (Result, error) {
	return r.result, nil
}
