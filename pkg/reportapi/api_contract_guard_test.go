package reportapi

import (
	"testing"

	"floracore/testutil"
)

// Report templates ship inside plugin modules, so the template contract
// surface obeys the same rule as pkg/pluginapi: no host internals, directly
// or through the dependency closure.
func TestReportAPIStaysFreeOfInternals(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/reportapi imports only the pkg tree and the standard library")
	testutil.AssertNoTransitiveDependency(t, "floracore/pkg/reportapi", testutil.InternalImportForbidden,
		"the template contract must not depend on host internals")
}
