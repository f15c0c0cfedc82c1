package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDomainImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"floracore/pkg/domain", true},
		{"floracore/pkg/domain@v1", true},
		{"floracore/pkg/pluginapi", false},
		{"floracore/internal/core", false},
	}
	for _, c := range cases {
		if got := DomainImportForbidden(c.in); got != c.want {
			t.Fatalf("DomainImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInfraImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"floracore/internal/infra/persistence/memory", true},
		{"floracore/internal/infra/blob/s3", true},
		{"floracore/internal/blob", false},
		{"floracore/internal/core", false},
	}
	for _, c := range cases {
		if got := InfraImportForbidden(c.in); got != c.want {
			t.Fatalf("InfraImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestBlobBackendImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"floracore/internal/infra/blob", true},
		{"floracore/internal/infra/blob/s3", true},
		{"floracore/internal/infra/persistence/sqlite", false},
		{"floracore/internal/blob", false},
	}
	for _, c := range cases {
		if got := BlobBackendImportForbidden(c.in); got != c.want {
			t.Fatalf("BlobBackendImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestInternalImportForbiddenPredicate(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"floracore/internal/imex", true},
		{"floracore/pkg/reportapi", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"clean.go":     "package tmp\nimport \"fmt\"\nfunc A(){fmt.Println(1)}\n",
		"dirty.go":     "package tmp\nimport _ \"floracore/pkg/domain\"\n",
		"dirty_2.go":   "package tmp\nimport (\n\t_ \"floracore/internal/infra/blob/s3\"\n)\n",
		"skip_test.go": "package tmp\nimport _ \"floracore/pkg/domain\"\n",
	}
	for name, src := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	viols, err := directImportViolations(dir, DomainImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	// Only dirty.go trips the domain predicate; the _test.go file is skipped.
	if len(viols) != 1 || !strings.Contains(viols[0], "dirty.go") {
		t.Fatalf("violations = %v", viols)
	}

	viols, err = directImportViolations(dir, InfraImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.Contains(viols[0], "dirty_2.go") {
		t.Fatalf("violations = %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.go"), []byte("package (\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := directImportViolations(dir, DomainImportForbidden); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestTransitiveDependencyViolationsStubbed(t *testing.T) {
	orig := goListDeps
	defer func() { goListDeps = orig }()

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nfloracore/pkg/domain\n\n  floracore/internal/infra/blob/s3  \n"), nil
	}
	viols, _, err := transitiveDependencyViolations("floracore/plugins/taxonomy", BlobBackendImportForbidden)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "floracore/internal/infra/blob/s3" {
		t.Fatalf("violations = %v", viols)
	}

	goListDeps = func(string) ([]byte, error) {
		return []byte("go: malformed pattern"), errors.New("exit status 1")
	}
	if _, out, err := transitiveDependencyViolations("???", BlobBackendImportForbidden); err == nil {
		t.Fatal("expected go list error")
	} else if !strings.Contains(string(out), "malformed") {
		t.Fatalf("output = %q", out)
	}
}

type fatalRecorder struct {
	called bool
	msg    string
}

func (f *fatalRecorder) Fatalf(format string, args ...any) {
	f.called = true
	f.msg = format
}

func TestFailHelpers(t *testing.T) {
	var rec fatalRecorder
	failIfTransitiveViolations(&rec, "plugins stay off blob backends", nil)
	failIfDirectViolations(&rec, "plugins stay off pkg/domain", nil)
	if rec.called {
		t.Fatal("no violations must not fail the test")
	}

	failIfTransitiveViolations(&rec, "plugins stay off blob backends", []string{"floracore/internal/infra/blob"})
	if !rec.called || !strings.Contains(rec.msg, "transitive") {
		t.Fatalf("recorder = %+v", rec)
	}

	rec = fatalRecorder{}
	failIfDirectViolations(&rec, "plugins stay off pkg/domain", []string{"floracore/pkg/domain (in plugin.go)"})
	if !rec.called || !strings.Contains(rec.msg, "direct") {
		t.Fatalf("recorder = %+v", rec)
	}
}

func TestAssertNoDirectImports(t *testing.T) {
	dir := t.TempDir()
	src := []byte("package tmp\nimport \"fmt\"\nfunc X(){fmt.Println(1)}")
	if err := os.WriteFile(filepath.Join(dir, "x.go"), src, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	AssertNoDirectImports(t, dir, DomainImportForbidden, "none expected")
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	orig := goListDeps
	defer func() { goListDeps = orig }()
	goListDeps = func(pattern string) ([]byte, error) {
		if pattern != "floracore/testutil" {
			t.Fatalf("pattern = %q", pattern)
		}
		return []byte("fmt\nstrings\n"), nil
	}
	AssertNoTransitiveDependency(t, "floracore/testutil", InfraImportForbidden, "helpers stay infra free")
}
