package plugins

import (
	"testing"

	"floracore/testutil"
)

// TestPluginPackagesStayOnHostSurface checks every built-in plugin package
// against the plugin author contract: entities are handled through the
// aliases in internal/core, storage is reached through the service and the
// blob drivers never enter the dependency closure. The fixture package
// plugins/testhelper is exempt; it builds rule-view fixtures from domain
// entities and is imported by tests only.
func TestPluginPackagesStayOnHostSurface(t *testing.T) {
	direct := func(path string) bool {
		return testutil.DomainImportForbidden(path) || testutil.InfraImportForbidden(path)
	}
	for _, name := range []string{"taxonomy", "garden", "report"} {
		t.Run(name, func(t *testing.T) {
			testutil.AssertNoDirectImports(t, name, direct,
				"plugin code uses the internal/core aliases, not pkg/domain or infra backends")
			testutil.AssertNoTransitiveDependency(t, "floracore/plugins/"+name, testutil.BlobBackendImportForbidden,
				"plugins must not drag blob drivers or their SDKs into the closure")
		})
	}
}
