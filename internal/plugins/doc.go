// Package plugins verifies the built-in plugin suite as a whole: taxonomy,
// garden and report installed together through the PluginManager against one
// store. The per-plugin packages test their own rules and templates; the
// tests here cover what only the assembled suite can show, such as install
// ordering across the dependency chain and seed idempotency across restarts.
package plugins
