// Program entitymodelvalidate checks the entity-model registry against the
// DDL bundles the SQL stores apply at open. Every registered table, column,
// foreign key and unique set must have backing in both dialects, and the
// dialects must agree on the table set. Drift between the registry and the
// bundles surfaces here instead of at store open.
package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"floracore/internal/entitymodel"
	"floracore/internal/entitymodel/sqlbundle"
)

var (
	exitFn              = os.Exit
	errWriter io.Writer = os.Stderr
)

func main() {
	problems := checkBundle("sqlite", sqlbundle.SQLite())
	problems = append(problems, checkBundle("postgres", sqlbundle.Postgres())...)
	problems = append(problems, checkDialectParity(sqlbundle.SQLite(), sqlbundle.Postgres())...)

	if len(problems) > 0 {
		sort.Strings(problems)
		for _, p := range problems {
			fmt.Fprintln(errWriter, p)
		}
		fmt.Fprintf(errWriter, "entity-model validation failed: %d problems\n", len(problems))
		exitFn(1)
		return
	}

	fmt.Println("entity-model validation: OK")
}

// checkBundle verifies one dialect bundle against the registry.
func checkBundle(dialect, ddl string) []string {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, dialect+": "+fmt.Sprintf(format, args...))
	}

	blocks := tableBlocks(ddl)
	uniqueIndexes := uniqueIndexColumns(ddl)

	for _, desc := range entitymodel.Tables() {
		block, ok := blocks[desc.Table]
		if !ok {
			fail("table %s missing from bundle", desc.Table)
			continue
		}
		columns := columnLines(block)

		for _, field := range desc.Fields {
			if _, ok := columns[field.Name]; !ok {
				fail("table %s: column %s missing", desc.Table, field.Name)
			}
		}

		for _, rel := range desc.Relationships {
			if rel.Kind != entitymodel.RelToOne {
				continue
			}
			if _, ok := columns[rel.FK]; !ok {
				fail("table %s: foreign key column %s missing", desc.Table, rel.FK)
				continue
			}
			if rel.Deferred {
				// Deferred references are applied by the restore pass and
				// stay unconstrained in the DDL.
				continue
			}
			clause := "REFERENCES " + rel.Target + "(id)"
			if !strings.Contains(columns[rel.FK], clause) {
				fail("table %s: column %s lacks %s", desc.Table, rel.FK, clause)
			}
		}

		for _, set := range desc.UniqueSets {
			if !uniqueSatisfied(desc.Table, set, block, columns, uniqueIndexes) {
				fail("table %s: unique set (%s) has no DDL backing", desc.Table, strings.Join(set, ", "))
			}
		}
	}

	// The stores record plugin installs relationally even though the table
	// is not part of the import/export registry.
	block, ok := blocks["plugin_record"]
	if !ok {
		fail("table plugin_record missing from bundle")
	} else {
		columns := columnLines(block)
		for _, col := range []string{"name", "version", "installed_at", "updated_at"} {
			if _, ok := columns[col]; !ok {
				fail("table plugin_record: column %s missing", col)
			}
		}
	}

	return problems
}

// checkDialectParity verifies both bundles declare the same table set.
func checkDialectParity(sqliteDDL, postgresDDL string) []string {
	var problems []string
	lite := tableBlocks(sqliteDDL)
	pg := tableBlocks(postgresDDL)
	for name := range lite {
		if _, ok := pg[name]; !ok {
			problems = append(problems, fmt.Sprintf("parity: table %s present in sqlite but not postgres", name))
		}
	}
	for name := range pg {
		if _, ok := lite[name]; !ok {
			problems = append(problems, fmt.Sprintf("parity: table %s present in postgres but not sqlite", name))
		}
	}
	return problems
}

const createTablePrefix = "CREATE TABLE IF NOT EXISTS "

// tableBlocks maps table names onto their CREATE TABLE statements.
func tableBlocks(ddl string) map[string]string {
	blocks := make(map[string]string)
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if !strings.HasPrefix(stmt, createTablePrefix) {
			continue
		}
		rest := stmt[len(createTablePrefix):]
		open := strings.IndexAny(rest, " (")
		if open < 0 {
			continue
		}
		blocks[strings.TrimSpace(rest[:open])] = stmt
	}
	return blocks
}

// columnLines maps column names onto their declaration lines within one
// CREATE TABLE statement. Constraint lines are skipped.
func columnLines(block string) map[string]string {
	open := strings.Index(block, "(")
	closing := strings.LastIndex(block, ")")
	if open < 0 || closing <= open {
		return nil
	}
	columns := make(map[string]string)
	for _, line := range strings.Split(block[open+1:closing], "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ","))
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "UNIQUE") || strings.HasPrefix(upper, "PRIMARY KEY") ||
			strings.HasPrefix(upper, "CHECK") || strings.HasPrefix(upper, "FOREIGN KEY") {
			continue
		}
		name, _, _ := strings.Cut(line, " ")
		columns[name] = line
	}
	return columns
}

// uniqueIndexColumns collects the column lists of CREATE UNIQUE INDEX
// statements, keyed by table name.
func uniqueIndexColumns(ddl string) map[string][][]string {
	indexes := make(map[string][][]string)
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if !strings.HasPrefix(stmt, "CREATE UNIQUE INDEX ") {
			continue
		}
		_, target, ok := strings.Cut(stmt, " ON ")
		if !ok {
			continue
		}
		table, rest, ok := strings.Cut(target, "(")
		if !ok {
			continue
		}
		list, _, ok := strings.Cut(rest, ")")
		if !ok {
			continue
		}
		cols := strings.Split(list, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		table = strings.TrimSpace(table)
		indexes[table] = append(indexes[table], cols)
	}
	return indexes
}

// uniqueSatisfied reports whether a registry unique set is backed by a
// table constraint, an inline UNIQUE column or a unique index.
func uniqueSatisfied(table string, set []string, block string, columns map[string]string, indexes map[string][][]string) bool {
	if strings.Contains(block, "UNIQUE ("+strings.Join(set, ", ")+")") {
		return true
	}
	if len(set) == 1 {
		if line, ok := columns[set[0]]; ok && strings.Contains(line, " UNIQUE") {
			return true
		}
	}
	for _, cols := range indexes[table] {
		if equalStrings(cols, set) {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
