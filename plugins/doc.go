// Package plugins hosts the built-in plugin subpackages: taxonomy, garden
// and report. It intentionally contains no production runtime code itself;
// this file exists so the architectural guard test alongside it belongs to
// a real package.
//
// A note on testhelper: the subpackage plugins/testhelper is a deliberate
// escape hatch used only in tests to construct rule-view fixtures from
// domain entities. It is excluded from the architecture test that forbids
// importing floracore/pkg/domain so that real plugin packages remain fully
// decoupled from internal domain shapes and talk to the host through
// pkg/pluginapi and the aliases in internal/core. Do not import testhelper
// in production plugin code; its presence is solely to aid unit tests and
// may change without stability guarantees.
package plugins
