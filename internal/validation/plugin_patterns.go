// Package validation lints plugin packages against the host contract.
// The static half scans plugin source for imports and calls that bypass
// the pluginapi surface; the dynamic half registers a plugin against a
// capturing registry and checks every contribution against the entity
// model before the plugin manager ever sees it.
package validation

import (
	"bufio"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Error is one contract violation. File carries the source path for static
// findings and the plugin name for registration findings.
type Error struct {
	File    string
	Line    int
	Message string
	Code    string
}

// forbiddenImports maps import path prefixes to the reason plugin code must
// not use them. Plugins reach entities through the internal/core aliases
// and persistence through domain.PersistentStore.
var forbiddenImports = map[string]string{
	"floracore/pkg/domain":     "Import the type aliases from internal/core instead of pkg/domain",
	"floracore/internal/infra": "Storage backends are host wiring; plugins receive a store through the registry",
	"floracore/internal/blob":  "Blob storage is host wiring; report payloads are returned, not stored",
	"database/sql":             "Plugins persist through the store interface, never raw SQL",
}

// ValidatePluginDirectory scans every non-test Go file under dir and
// reports contract violations in plugin source.
func ValidatePluginDirectory(dir string) []Error {
	var errors []Error

	err := filepath.Walk(dir, func(path string, _ os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		errors = append(errors, validatePluginFile(path)...)
		return nil
	})

	if err != nil {
		errors = append(errors, Error{
			File:    dir,
			Message: "Failed to walk directory: " + err.Error(),
		})
	}

	return errors
}

func validatePluginFile(filePath string) []Error {
	var errors []Error
	errors = append(errors, validateFileText(filePath)...)
	errors = append(errors, validateFileAST(filePath)...)
	return errors
}

// validateFileText catches string-level anti-patterns the AST walk does
// not see, such as SQL text waiting to be handed to some executor.
func validateFileText(filePath string) []Error {
	var errors []Error

	file, err := os.Open(filepath.Clean(filePath))
	if err != nil {
		return append(errors, Error{
			File:    filePath,
			Message: "Failed to open file: " + err.Error(),
		})
	}
	defer func() {
		_ = file.Close()
	}()

	antiPatterns := getAntiPatterns()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || isCommentLine(line) {
			continue
		}
		for pattern, message := range antiPatterns {
			if matched, _ := regexp.MatchString(pattern, line); matched {
				errors = append(errors, Error{
					File:    filePath,
					Line:    lineNum,
					Message: message,
					Code:    strings.TrimSpace(line),
				})
			}
		}
	}

	return errors
}

func getAntiPatterns() map[string]string {
	return map[string]string{
		`(?i)"\s*(select\s.+\sfrom|insert\s+into|update\s.+\sset|delete\s+from)\b`: "Plugins persist through the store interface, never raw SQL",
		`\bfmt\.Print(ln|f)?\(`: "Plugins must not write to the host's standard streams; violations and errors carry the message",
	}
}

func validateFileAST(filePath string) []Error {
	var errors []Error

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		// The text pass already saw the file; a parse failure here means
		// the compiler will complain louder than we can.
		return errors
	}

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, "\"")
		for prefix, message := range forbiddenImports {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				pos := fset.Position(imp.Pos())
				errors = append(errors, Error{
					File:    pos.Filename,
					Line:    pos.Line,
					Message: message,
					Code:    path,
				})
			}
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		errors = append(errors, validateCallExpr(fset, call)...)
		return true
	})

	return errors
}

func validateCallExpr(fset *token.FileSet, call *ast.CallExpr) []Error {
	var errors []Error

	switch fun := call.Fun.(type) {
	case *ast.SelectorExpr:
		ident, ok := fun.X.(*ast.Ident)
		if !ok {
			return errors
		}
		switch {
		case ident.Name == "os" && (fun.Sel.Name == "Getenv" || fun.Sel.Name == "LookupEnv" || fun.Sel.Name == "Setenv"):
			pos := fset.Position(call.Pos())
			errors = append(errors, Error{
				File:    pos.Filename,
				Line:    pos.Line,
				Message: "Plugin behavior is declared through registration, not ambient environment variables",
				Code:    ident.Name + "." + fun.Sel.Name + "(...)",
			})
		case ident.Name == "time" && fun.Sel.Name == "Now":
			pos := fset.Position(call.Pos())
			errors = append(errors, Error{
				File:    pos.Filename,
				Line:    pos.Line,
				Message: "Take time from the host environment (reportapi.Environment.Now) so runs stay reproducible",
				Code:    "time.Now()",
			})
		}
	case *ast.Ident:
		if fun.Name == "panic" {
			pos := fset.Position(call.Pos())
			errors = append(errors, Error{
				File:    pos.Filename,
				Line:    pos.Line,
				Message: "Return errors from registration and rule evaluation instead of panicking inside the host",
				Code:    "panic(...)",
			})
		}
	}

	return errors
}

func isCommentLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "/*")
}
