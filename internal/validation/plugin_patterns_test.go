package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestBuiltinPluginDirectoriesAreClean(t *testing.T) {
	for _, name := range []string{"taxonomy", "garden", "report"} {
		t.Run(name, func(t *testing.T) {
			dir := filepath.Join("..", "..", "plugins", name)
			for _, e := range ValidatePluginDirectory(dir) {
				t.Errorf("%s:%d: %s (%s)", e.File, e.Line, e.Message, e.Code)
			}
		})
	}
}

func TestForbiddenImportsAreFlagged(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "plugin.go", `package demo

import (
	raw "floracore/pkg/domain"
	"floracore/internal/infra/persistence/memory"
	"database/sql"
)

var (
	_ = raw.EntitySpecies
	_ = memory.NewStore
	_ sql.DB
)
`)

	errors := ValidatePluginDirectory(dir)
	if len(errors) != 3 {
		t.Fatalf("errors = %+v", errors)
	}
	// The alias does not hide the import path from the AST walk.
	codes := make(map[string]bool, len(errors))
	for _, e := range errors {
		if e.Line == 0 {
			t.Fatalf("missing line: %+v", e)
		}
		codes[e.Code] = true
	}
	for _, want := range []string{"floracore/pkg/domain", "floracore/internal/infra/persistence/memory", "database/sql"} {
		if !codes[want] {
			t.Fatalf("missing violation for %s in %+v", want, errors)
		}
	}
}

func TestHostBypassCallsAreFlagged(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "rules.go", `package demo

import (
	"os"
	"time"
)

func setup() {
	if os.Getenv("DEMO_MODE") == "strict" {
		panic("unsupported")
	}
	_ = time.Now()
}
`)

	errors := ValidatePluginDirectory(dir)
	if len(errors) != 3 {
		t.Fatalf("errors = %+v", errors)
	}
	var sawEnv, sawClock, sawPanic bool
	for _, e := range errors {
		switch {
		case strings.Contains(e.Message, "environment variables"):
			sawEnv = true
		case strings.Contains(e.Message, "reproducible"):
			sawClock = true
		case strings.Contains(e.Message, "panicking"):
			sawPanic = true
		}
	}
	if !sawEnv || !sawClock || !sawPanic {
		t.Fatalf("env=%v clock=%v panic=%v: %+v", sawEnv, sawClock, sawPanic, errors)
	}
}

func TestTextPatternsAreFlagged(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "query.go", `package demo

import "fmt"

// The commented query below must not count: "SELECT id FROM accession".
func dump() {
	q := "SELECT id FROM accession"
	fmt.Println(q)
}
`)

	errors := ValidatePluginDirectory(dir)
	var sawSQL, sawPrint bool
	for _, e := range errors {
		switch {
		case strings.Contains(e.Message, "raw SQL"):
			sawSQL = true
			if e.Line != 7 {
				t.Fatalf("sql violation line = %d", e.Line)
			}
		case strings.Contains(e.Message, "standard streams"):
			sawPrint = true
		}
	}
	if !sawSQL || !sawPrint {
		t.Fatalf("sql=%v print=%v: %+v", sawSQL, sawPrint, errors)
	}
}

func TestTestFilesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "plugin_test.go", `package demo

import _ "floracore/pkg/domain"
`)

	if errors := ValidatePluginDirectory(dir); len(errors) != 0 {
		t.Fatalf("test files must be exempt: %+v", errors)
	}
}

func TestMissingDirectoryReportsWalkError(t *testing.T) {
	errors := ValidatePluginDirectory(filepath.Join(t.TempDir(), "absent"))
	if len(errors) != 1 || !strings.Contains(errors[0].Message, "walk") {
		t.Fatalf("errors = %+v", errors)
	}
}
