package imex

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

// PathValue resolves a dotted path from an encoded row, following
// foreign keys through the view and descending into embedded blocks.
// Broken or absent links yield nil rather than an error so sparse data
// exports as empty cells.
func PathValue(view domain.RuleView, desc entitymodel.Descriptor, row map[string]any, path string) (any, error) {
	segments := strings.Split(path, ".")
	current := desc
	for i, segment := range segments {
		if i == len(segments)-1 {
			if _, ok := current.Field(segment); !ok {
				return nil, fmt.Errorf("%s: no field %q on %s", path, segment, current.Table)
			}
			if row == nil {
				return nil, nil
			}
			return row[segment], nil
		}
		rel, ok := current.Relationship(segment)
		if !ok {
			return nil, fmt.Errorf("%s: no relationship %q on %s", path, segment, current.Table)
		}
		next, ok := entitymodel.Lookup(rel.Target)
		if !ok {
			return nil, fmt.Errorf("%s: relationship %q targets unknown table %q", path, segment, rel.Target)
		}
		if row != nil {
			switch rel.Kind {
			case entitymodel.RelEmbedded:
				nested, _ := row[rel.Name].(map[string]any)
				row = nested
			default:
				row = followFK(view, rel, next, row)
			}
		}
		current = next
	}
	return nil, fmt.Errorf("empty path")
}

func followFK(view domain.RuleView, rel entitymodel.Relationship, target entitymodel.Descriptor, row map[string]any) map[string]any {
	id := canon(row[rel.FK])
	if id == "" {
		return nil
	}
	bind, ok := bindingFor(target.Table)
	if !ok {
		return nil
	}
	linked, found := bind.find(view, id)
	if !found {
		return nil
	}
	return linked
}

// ExportRows materializes one cell row per record of the table, with
// every column resolved as a dotted path through the relationship
// graph. The header is the path list itself so the output round-trips
// through the importer. Rows sort by the table's retrieve key values.
func ExportRows(view domain.RuleView, table string, paths []string) ([]string, [][]string, error) {
	desc, ok := entitymodel.Lookup(table)
	if !ok || desc.Entity == "" {
		return nil, nil, fmt.Errorf("unknown export table %q", table)
	}
	resolved := make([]string, len(paths))
	for i, path := range paths {
		full, err := resolveExportPath(desc, path)
		if err != nil {
			return nil, nil, err
		}
		resolved[i] = full
	}
	bind, ok := bindingFor(desc.Table)
	if !ok {
		return nil, nil, fmt.Errorf("no store binding for table %s", desc.Table)
	}
	records, err := bind.rows(view)
	if err != nil {
		return nil, nil, err
	}
	sortRecords(view, desc, records)

	rows := make([][]string, 0, len(records))
	for _, record := range records {
		cells := make([]string, len(resolved))
		for i, path := range resolved {
			value, err := PathValue(view, desc, record, path)
			if err != nil {
				return nil, nil, err
			}
			cells[i] = canon(value)
		}
		rows = append(rows, cells)
	}
	return append([]string(nil), paths...), rows, nil
}

// ResolveRecord resolves dotted paths against a single entity record,
// returning one value per path. Reports use this to materialize their
// columns with the same path semantics exports use.
func ResolveRecord(view domain.RuleView, table string, record any, paths []string) ([]any, error) {
	desc, ok := entitymodel.Lookup(table)
	if !ok || desc.Entity == "" {
		return nil, fmt.Errorf("unknown export table %q", table)
	}
	row, err := rowOf(record)
	if err != nil {
		return nil, fmt.Errorf("encode %s record: %w", table, err)
	}
	values := make([]any, len(paths))
	for i, path := range paths {
		full, err := resolveExportPath(desc, path)
		if err != nil {
			return nil, err
		}
		value, err := PathValue(view, desc, row, full)
		if err != nil {
			return nil, err
		}
		values[i] = value
	}
	return values, nil
}

// resolveExportPath validates a column path. A path ending at the
// default vernacular relationship stands in for the vernacular name so
// the same column spells both directions of a round trip.
func resolveExportPath(desc entitymodel.Descriptor, path string) (string, error) {
	_, _, err := entitymodel.PathTarget(desc, path)
	if err == nil {
		return path, nil
	}
	if rel, ok := pathRelationship(desc, path); ok && rel.Name == "default_vernacular_name" {
		return path + ".name", nil
	}
	return "", err
}

// sortRecords orders encoded rows by the table's retrieve key values so
// exports are stable: accessions by code, plants by accession code then
// plant code, taxa by their epithets.
func sortRecords(view domain.RuleView, desc entitymodel.Descriptor, records []map[string]any) {
	keys := desc.RetrieveKeys
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	rank := func(record map[string]any) string {
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			value, err := PathValue(view, desc, record, key)
			if err != nil {
				value = record[key]
			}
			parts = append(parts, canon(value))
		}
		return strings.Join(parts, "\x00")
	}
	sort.SliceStable(records, func(i, j int) bool {
		return rank(records[i]) < rank(records[j])
	})
}

// WriteCSV writes a materialized table as RFC 4180 CSV.
func WriteCSV(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
