package entitymodel

import (
	"strings"
	"testing"
)

func TestTablesAreDependencyOrdered(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range Tables() {
		for _, rel := range d.Relationships {
			if rel.Kind != RelToOne || rel.Deferred {
				continue
			}
			if rel.Target == d.Table {
				continue
			}
			if target, ok := Lookup(rel.Target); ok && target.Entity != "" && !seen[rel.Target] {
				t.Fatalf("%s references %s before it is declared", d.Table, rel.Target)
			}
		}
		seen[d.Table] = true
	}
}

func TestLookupByEntityAndTableAgree(t *testing.T) {
	for _, d := range Tables() {
		byEntity, ok := LookupEntity(d.Entity)
		if !ok {
			t.Fatalf("no descriptor for entity %q", d.Entity)
		}
		byTable, ok := Lookup(d.Table)
		if !ok {
			t.Fatalf("no descriptor for table %q", d.Table)
		}
		if byEntity.Table != byTable.Table {
			t.Fatalf("entity and table lookups disagree for %s", d.Table)
		}
	}
}

func TestUniqueSetsNameDeclaredFields(t *testing.T) {
	for _, d := range Tables() {
		for _, set := range d.UniqueSets {
			for _, column := range set {
				if _, ok := d.Field(column); !ok {
					t.Fatalf("%s unique set names unknown column %q", d.Table, column)
				}
			}
		}
	}
}

func TestRetrieveKeysResolveThroughGraph(t *testing.T) {
	for _, d := range Tables() {
		for _, key := range d.RetrieveKeys {
			if _, _, err := PathTarget(d, key); err != nil {
				t.Fatalf("%s retrieve key %q does not resolve: %v", d.Table, key, err)
			}
		}
	}
}

func TestPathTargetWalksRelationships(t *testing.T) {
	plant, ok := Lookup("plant")
	if !ok {
		t.Fatal("missing plant descriptor")
	}
	owner, attr, err := PathTarget(plant, "accession.species.genus.family.epithet")
	if err != nil {
		t.Fatalf("resolve taxon path: %v", err)
	}
	if owner.Table != "family" || attr != "epithet" {
		t.Fatalf("unexpected path target %s.%s", owner.Table, attr)
	}

	accession, _ := Lookup("accession")
	owner, attr, err = PathTarget(accession, "source.collection.geography.code")
	if err != nil {
		t.Fatalf("resolve embedded path: %v", err)
	}
	if owner.Table != "geography" || attr != "code" {
		t.Fatalf("unexpected embedded target %s.%s", owner.Table, attr)
	}

	_, _, err = PathTarget(plant, "accession.nursery.code")
	if err == nil {
		t.Fatal("expected unknown relationship segment to fail")
	}
	if !strings.Contains(err.Error(), "nursery") {
		t.Fatalf("error should name the bad segment: %v", err)
	}
}

func TestDeferredEdgeBreaksVernacularCycle(t *testing.T) {
	species, _ := Lookup("species")
	rel, ok := species.Relationship("default_vernacular_name")
	if !ok {
		t.Fatal("species is missing default_vernacular_name relationship")
	}
	if !rel.Deferred {
		t.Fatal("default vernacular reference must be deferred, vernacular names point back at species")
	}
}
