package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"floracore/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("driver: %s", store.Driver())
	}

	info, err := store.Put(ctx, "imports/failures.csv", bytes.NewReader([]byte("row,error\n")),
		core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"job": "import-7"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 10 || info.ETag == "" {
		t.Fatalf("unexpected info %+v", info)
	}

	head, err := store.Head(ctx, "imports/failures.csv")
	if err != nil || head.Metadata["job"] != "import-7" {
		t.Fatalf("head: %v %+v", err, head)
	}
	_, rc, err := store.Get(ctx, "imports/failures.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(payload) != "row,error\n" {
		t.Fatalf("payload: %q", payload)
	}

	ok, err := store.Delete(ctx, "imports/failures.csv")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "imports/failures.csv"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "imports/failures.csv"); err == nil {
		t.Fatalf("expected missing after delete")
	}
}

func TestStorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v1")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("v2")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}
	if _, err := store.Put(ctx, "  ", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatalf("expected blank key to fail")
	}
}

func TestStoreListPrefixOrdered(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"exports/z.xml", "exports/a.csv", "reports/r.json"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports/a.csv" || list[1].Key != "exports/z.xml" {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestStorePresignUnsupported(t *testing.T) {
	store := New()
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestStoreMetadataIsolated(t *testing.T) {
	ctx := context.Background()
	store := New()
	md := map[string]string{"a": "1"}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["a"] = "2"
	head, err := store.Head(ctx, "k")
	if err != nil || head.Metadata["a"] != "1" {
		t.Fatalf("expected stored copy unaffected, got %v %+v", err, head.Metadata)
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "shared", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Head(ctx, "shared"); err != nil {
				t.Errorf("head: %v", err)
			}
			if _, err := store.List(ctx, ""); err != nil {
				t.Errorf("list: %v", err)
			}
		}()
	}
	wg.Wait()
}
