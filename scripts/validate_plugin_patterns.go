// Command validate_plugin_patterns lints plugin packages against the host
// contract: source files must stay on the pluginapi surface, and every
// contribution the built-in suite registers must resolve against the entity
// model. Pass plugin directories as arguments to lint an out-of-tree plugin;
// with no arguments the built-in suite is checked.
package main

import (
	"fmt"
	"io"
	"os"

	"floracore/internal/validation"
	"floracore/pkg/pluginapi"
	"floracore/plugins/garden"
	reportplugin "floracore/plugins/report"
	"floracore/plugins/taxonomy"
)

var builtinDirs = []string{"plugins/taxonomy", "plugins/garden", "plugins/report"}

func builtinSuite() []pluginapi.Plugin {
	return []pluginapi.Plugin{taxonomy.New(), garden.New(), reportplugin.New()}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stderr, validation.ValidatePluginDirectory, validation.ValidateSuite))
}

func run(dirs []string, stderr io.Writer, lintDir func(string) []validation.Error, lintSuite func(...pluginapi.Plugin) []validation.Error) int {
	suite := true
	if len(dirs) == 0 {
		dirs = builtinDirs
	} else {
		// Out-of-tree plugins cannot be instantiated from here, so only
		// their source is checked.
		suite = false
	}

	total := 0
	for _, dir := range dirs {
		for _, e := range lintDir(dir) {
			total++
			reportError(stderr, e)
		}
	}
	if suite {
		for _, e := range lintSuite(builtinSuite()...) {
			total++
			reportError(stderr, e)
		}
	}

	if total > 0 {
		fmt.Fprintf(stderr, "\n%d plugin contract violations\n", total)
		return 1
	}
	return 0
}

func reportError(w io.Writer, e validation.Error) {
	if e.Line > 0 {
		fmt.Fprintf(w, "%s:%d: %s\n", e.File, e.Line, e.Message)
	} else {
		fmt.Fprintf(w, "%s: %s\n", e.File, e.Message)
	}
	if e.Code != "" {
		fmt.Fprintf(w, "    %s\n", e.Code)
	}
}
