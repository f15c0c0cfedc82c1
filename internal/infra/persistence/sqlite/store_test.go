package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"floracore/pkg/domain"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floracore.db")
	store := openTestStore(t, path)

	ctx := context.Background()
	var famID, genID string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		fam, err := tx.CreateFamily(domain.Family{Epithet: "Fabaceae"})
		if err != nil {
			return err
		}
		famID = fam.ID
		gen, err := tx.CreateGenus(domain.Genus{Epithet: "Acacia", FamilyID: fam.ID})
		if err != nil {
			return err
		}
		genID = gen.ID
		return nil
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	fam, ok := reopened.GetFamily(famID)
	if !ok {
		t.Fatal("expected family to survive reopen")
	}
	if fam.Epithet != "Fabaceae" {
		t.Fatalf("unexpected epithet %q", fam.Epithet)
	}
	gen, ok := reopened.GetGenus(genID)
	if !ok {
		t.Fatal("expected genus to survive reopen")
	}
	if gen.FamilyID != famID {
		t.Fatalf("unexpected family link %q", gen.FamilyID)
	}
}

func TestStoreAppliesEntityModelDDL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floracore.db")
	store := openTestStore(t, path)

	rows, err := store.DB().Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	defer func() { _ = rows.Close() }()
	tables := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		tables[name] = true
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	for _, want := range []string{"family", "genus", "species", "vernacular_name", "geography", "accession", "plant", "location", "source_detail", "plugin_record", "state"} {
		if !tables[want] {
			t.Fatalf("expected table %s, have %v", want, tables)
		}
	}
}

func TestStoreRejectsInvalidStateOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "floracore.db")
	store := openTestStore(t, path)

	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('families', 'not json')
		ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`); err != nil {
		t.Fatalf("corrupt bucket: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := NewStore(path, domain.NewRulesEngine()); err == nil {
		t.Fatal("expected decode error on reload")
	}
}

func TestStoreDefaultsPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state", "floracore.db")
	store := openTestStore(t, path)
	if store.Path() != path {
		t.Fatalf("unexpected path %q", store.Path())
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateLocation(domain.Location{Code: "BED1", Name: "Front bed"})
		return err
	}); err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	if len(store.ListLocations()) != 1 {
		t.Fatal("expected one location")
	}
}
