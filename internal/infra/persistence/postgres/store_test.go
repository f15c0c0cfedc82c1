package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"floracore/internal/infra/persistence/postgres/testutil"
	"floracore/pkg/domain"
)

func openStubStore(t *testing.T, db *sql.DB) *Store {
	t.Helper()
	restore := OverrideSQLOpen(func(driverName, _ string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("unexpected driver %q", driverName)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore("postgres://stub/floracore", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestNewStoreAppliesEntityModelDDL(t *testing.T) {
	db, conn := testutil.NewStubDB()
	openStubStore(t, db)

	execs := strings.Join(conn.Execs, "\n")
	for _, table := range []string{"family", "genus", "species", "accession", "plant", "location", "state"} {
		if !strings.Contains(execs, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("expected DDL for table %s, got:\n%s", table, execs)
		}
	}
}

func TestNewStoreHydratesSnapshot(t *testing.T) {
	db, conn := testutil.NewStubDB()
	families, err := json.Marshal(map[string]domain.Family{
		"fam-1": {Base: domain.Base{ID: "fam-1"}, Epithet: "Myrtaceae"},
	})
	if err != nil {
		t.Fatalf("marshal families: %v", err)
	}
	conn.Buckets["families"] = families

	store := openStubStore(t, db)
	fam, ok := store.GetFamily("fam-1")
	if !ok {
		t.Fatal("expected hydrated family")
	}
	if fam.Epithet != "Myrtaceae" {
		t.Fatalf("unexpected epithet %q", fam.Epithet)
	}
}

func TestRunInTransactionPersistsAllBuckets(t *testing.T) {
	db, conn := testutil.NewStubDB()
	store := openStubStore(t, db)

	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateFamily(domain.Family{Epithet: "Proteaceae"})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}

	for _, bucket := range postgresBuckets {
		if _, ok := conn.Buckets[bucket]; !ok {
			t.Fatalf("expected bucket %s to be persisted", bucket)
		}
	}
	var families map[string]domain.Family
	if err := json.Unmarshal(conn.Buckets["families"], &families); err != nil {
		t.Fatalf("decode families bucket: %v", err)
	}
	if len(families) != 1 {
		t.Fatalf("expected 1 persisted family, got %d", len(families))
	}
}

func TestRunInTransactionSurfacesCommitFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	store := openStubStore(t, db)
	conn.FailCommit = true

	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateFamily(domain.Family{Epithet: "Rosaceae"})
		return err
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
}

func TestNewStoreFailsWhenPingFails(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	if _, err := NewStore("", domain.NewRulesEngine()); err == nil {
		t.Fatal("expected ping failure")
	}
}
