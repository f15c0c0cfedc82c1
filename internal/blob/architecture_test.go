package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestInfraBackendsStayBehindFacade verifies that the driver
// implementations under internal/infra/blob are reached only through
// this package. Everything else programs against blob.Store.
func TestInfraBackendsStayBehindFacade(t *testing.T) {
	const (
		infraPrefix   = "floracore/internal/infra/blob"
		allowedPrefix = "floracore/internal/blob"
	)

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "floracore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	violations := make(map[string]struct{})
	for _, pkg := range pkgs {
		if strings.HasPrefix(pkg.PkgPath, allowedPrefix) || strings.HasPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == infraPrefix || strings.HasPrefix(importPath, infraPrefix+"/") {
				violations[pkg.PkgPath+" imports "+importPath] = struct{}{}
			}
		}
	}

	if len(violations) > 0 {
		lines := make([]string, 0, len(violations))
		for v := range violations {
			lines = append(lines, v)
		}
		sort.Strings(lines)
		for _, line := range lines {
			t.Errorf("backend import outside the blob facade: %s", line)
		}
		t.Fatalf("found %d packages bypassing the blob facade", len(lines))
	}
}
