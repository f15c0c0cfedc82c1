package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"floracore/internal/blob/core"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if store.Driver() != core.DriverFilesystem {
		t.Fatalf("driver: %s", store.Driver())
	}

	info, err := store.Put(ctx, "exports/species.csv", bytes.NewReader([]byte("epithet\ndealbata\n")),
		core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"job": "export-1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/species.csv" || info.Size != 17 || info.ContentType != "text/csv" {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.ETag == "" {
		t.Fatalf("expected content hash etag")
	}

	head, err := store.Head(ctx, "exports/species.csv")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	got, rc, err := store.Get(ctx, "exports/species.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	payload, _ := io.ReadAll(rc)
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if string(payload) != "epithet\ndealbata\n" || got.ETag != head.ETag {
		t.Fatalf("get mismatch: %q etag %q vs %q", payload, got.ETag, head.ETag)
	}
	if head.Metadata["job"] != "export-1" {
		t.Fatalf("metadata lost: %+v", head.Metadata)
	}

	ok, err := store.Delete(ctx, "exports/species.csv")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "exports/species.csv")
	if err != nil || ok {
		t.Fatalf("second delete should report missing, got %v %v", ok, err)
	}
}

func TestStorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "backups/full.zip", bytes.NewReader([]byte("v1")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "backups/full.zip", bytes.NewReader([]byte("v2")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"", "../escape.txt", "/abs.txt", "a/../b"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
			t.Fatalf("expected error for key %q", key)
		}
	}
}

type errorReader struct{}

func (errorReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestStorePutReaderError(t *testing.T) {
	store := newTempStore(t)
	if _, err := store.Put(context.Background(), "bad.bin", errorReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected copy error")
	}
}

func TestStoreMetaSidecar(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "reports/list.xlsx", bytes.NewReader([]byte("abc")),
		core.PutOptions{ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	dataPath, metaPath, err := store.pathFor("reports/list.xlsx")
	if err != nil {
		t.Fatalf("pathFor: %v", err)
	}
	if _, err := os.Stat(dataPath); err != nil {
		t.Fatalf("data file: %v", err)
	}
	raw, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("read sidecar: %v", err)
	}
	if !bytes.Contains(raw, []byte("spreadsheetml")) {
		t.Fatalf("sidecar missing content type: %s", raw)
	}

	// Without the sidecar the blob is unreadable.
	if err := os.Remove(metaPath); err != nil {
		t.Fatalf("remove sidecar: %v", err)
	}
	if _, err := store.Head(ctx, "reports/list.xlsx"); err == nil {
		t.Fatalf("expected head error without sidecar")
	}
	if _, _, err := store.Get(ctx, "reports/list.xlsx"); err == nil {
		t.Fatalf("expected get error without sidecar")
	}
}

func TestStoreListPrefixAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	for _, key := range []string{"exports/b.csv", "exports/a.csv", "backups/full.zip"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("data")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "exports/a.csv" || list[1].Key != "exports/b.csv" {
		t.Fatalf("unexpected listing %+v", list)
	}
	all, err := store.List(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v len=%d", err, len(all))
	}
}

func TestStoreListCorruptSidecar(t *testing.T) {
	store := newTempStore(t)
	data := filepath.Join(store.root, "bad.txt")
	if err := os.WriteFile(data, []byte("data"), 0o644); err != nil {
		t.Fatalf("write data: %v", err)
	}
	if err := os.WriteFile(data+".meta", []byte("{"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}
	if _, err := store.List(context.Background(), ""); err == nil {
		t.Fatalf("expected list error on corrupt sidecar")
	}
}

func TestStorePresign(t *testing.T) {
	ctx := context.Background()
	store := newTempStore(t)
	if _, err := store.Put(ctx, "exports/a.csv", bytes.NewReader([]byte("a")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{})
	if err != nil || url != "http://local.blob/exports/a.csv" {
		t.Fatalf("presign: %v %s", err, url)
	}
	if _, err := store.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{Method: "get"}); err != nil {
		t.Fatalf("lowercase method: %v", err)
	}
	if _, err := store.PresignURL(ctx, "exports/a.csv", core.SignedURLOptions{Method: "PUT"}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}

func TestStoreTimestampsUTC(t *testing.T) {
	store := newTempStore(t)
	info, err := store.Put(context.Background(), "t/x", bytes.NewReader([]byte("abc")), core.PutOptions{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !info.LastModified.Equal(info.LastModified.UTC()) {
		t.Fatalf("expected UTC timestamp, got %v", info.LastModified)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "afile")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := New(path); err == nil {
		t.Fatalf("expected error when root is a file")
	}
}

func TestReadMetaUnmarshalError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.meta")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := readMeta(path); err == nil {
		t.Fatalf("expected unmarshal error")
	}
}

func TestCloneMetadataIsolation(t *testing.T) {
	if cloneMetadata(nil) != nil {
		t.Fatalf("expected nil pass-through")
	}
	src := map[string]string{"a": "1"}
	cp := cloneMetadata(src)
	src["a"] = "2"
	if cp["a"] != "1" {
		t.Fatalf("expected independent copy, got %#v", cp)
	}
}
