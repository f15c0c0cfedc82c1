// Package testutil provides assertion helpers for the architectural guard
// tests spread across the repository: plugin packages must reach entities
// through the service aliases rather than pkg/domain, the pkg API surface
// must stay free of internal packages, and blob storage backends must stay
// behind the internal/blob facade.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// AssertNoTransitiveDependency shells out to `go list -deps` with the given
// pattern (a package path or ./... style wildcard) and fails the test when
// any dependency in the closure satisfies the forbidden predicate. Test-only
// imports are not part of the closure, so fixture packages never trip it.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, out, err := transitiveDependencyViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, string(out))
	}
	failIfTransitiveViolations(t, reason, viols)
}

// AssertNoDirectImports scans the non-test .go files of a single directory
// and fails when any import path satisfies the forbidden predicate. It does
// not recurse and does not evaluate build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	failIfDirectViolations(t, reason, viols)
}

// DomainImportForbidden matches the raw entity model package. Plugin code is
// expected to use the aliases re-exported by internal/core so the host keeps
// one sanctioned route to domain types.
func DomainImportForbidden(path string) bool {
	return strings.HasSuffix(path, "/pkg/domain") || strings.Contains(path, "/pkg/domain@")
}

// InfraImportForbidden matches any storage or blob backend under
// internal/infra. Code outside the host wiring talks to storage through
// domain.PersistentStore and to blobs through the internal/blob facade.
func InfraImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/")
}

// BlobBackendImportForbidden matches the blob backends behind the
// internal/blob facade. Unlike InfraImportForbidden it holds transitively
// for plugin packages, which do reach the persistence backends through the
// service but must never pull in the blob drivers or their SDKs.
func BlobBackendImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/infra/blob")
}

// InternalImportForbidden matches any /internal/ package. The pkg tree is
// the plugin author surface and must remain importable without dragging
// host internals along.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/")
}

var goListDeps = func(pattern string) ([]byte, error) {
	cmd := exec.Command("go", "list", "-deps", pattern)
	return cmd.CombinedOutput()
}

func transitiveDependencyViolations(pattern string, forbidden func(path string) bool) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if forbidden(line) {
			viols = append(viols, line)
		}
	}
	return viols, out, nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		path := filepath.Join(dir, name)
		fileAst, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			return nil, err
		}
		for _, imp := range fileAst.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitiveViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependency detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
