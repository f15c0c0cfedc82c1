// Package imex moves collection records in and out of the store: a
// generic dotted-path import engine with get-or-create resolution,
// field-map CSV export, full CSV backup/restore, and XML/XLSX dumps.
// All record traffic goes through the wire maps defined here so one
// codec serves every pipeline.
package imex

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

// rowOf flattens a domain record into its wire map keyed by the JSON
// field names the entity model declares.
func rowOf(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	row := map[string]any{}
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return row, nil
}

// recordOf is the inverse of rowOf: it decodes a wire map into a typed
// domain record. Unknown keys are ignored, null values leave the zero
// value in place.
func recordOf[T any](row map[string]any) (T, error) {
	var record T
	raw, err := json.Marshal(row)
	if err != nil {
		return record, fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return record, fmt.Errorf("decode row: %w", err)
	}
	return record, nil
}

func encodeRows[T any](items []T) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row, err := rowOf(item)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// applyFields returns an update mutator overlaying the supplied wire
// values onto the current record. Nested maps merge key by key so a
// partial embedded block updates the existing one instead of replacing
// it.
func applyFields[T any](fields map[string]any) func(*T) error {
	return func(record *T) error {
		current, err := rowOf(*record)
		if err != nil {
			return err
		}
		overlay(current, fields)
		merged, err := recordOf[T](current)
		if err != nil {
			return err
		}
		*record = merged
		return nil
	}
}

func overlay(dst, src map[string]any) {
	for key, value := range src {
		next, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		existing, ok := dst[key].(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		overlay(existing, next)
		dst[key] = existing
	}
}

// canon renders a wire value as its canonical cell string. It is used
// both for CSV materialization and for field matching, so two values
// are considered equal exactly when their canonical strings are.
func canon(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return v.String()
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

// Cell renders a value the way CSV cells are rendered. Packages
// materializing tabular output outside this one share the convention
// through it.
func Cell(value any) string {
	return canon(value)
}

func valueEqual(a, b any) bool {
	return canon(a) == canon(b)
}

// valueDiffers reports whether overlaying want onto current would change
// it. Maps compare key by key so a partial embedded block equals the
// stored block it is a subset of.
func valueDiffers(current, want any) bool {
	wantMap, wok := want.(map[string]any)
	currentMap, cok := current.(map[string]any)
	if wok && cok {
		for key, value := range wantMap {
			if valueDiffers(currentMap[key], value) {
				return true
			}
		}
		return false
	}
	return !valueEqual(current, want)
}

// coerceValue converts a raw CSV cell into the wire representation of
// the field's kind. Empty cells yield nil so absent values never match
// or overwrite concrete ones by accident.
func coerceValue(field entitymodel.Field, raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	switch field.Kind {
	case entitymodel.KindString:
		if len(field.Enum) > 0 && !containsString(field.Enum, raw) {
			return nil, fmt.Errorf("%s: value %q not one of %s", field.Name, raw, strings.Join(field.Enum, ", "))
		}
		return raw, nil
	case entitymodel.KindInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an integer", field.Name, raw)
		}
		return n, nil
	case entitymodel.KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a number", field.Name, raw)
		}
		return f, nil
	case entitymodel.KindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not a boolean", field.Name, raw)
		}
		return b, nil
	case entitymodel.KindDate:
		if t, err := time.Parse("2006-01-02", raw); err == nil {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t.UTC().Format(time.RFC3339Nano), nil
		}
		return nil, fmt.Errorf("%s: %q is not a date (want 2006-01-02)", field.Name, raw)
	case entitymodel.KindTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %q is not an RFC 3339 timestamp", field.Name, raw)
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	case entitymodel.KindJSON:
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("%s: %q is not valid JSON", field.Name, raw)
		}
		return doc, nil
	default:
		return raw, nil
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// memoKey builds the canonical cache key for a resolved field tuple.
func memoKey(table string, fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	parts = append(parts, table)
	for _, k := range keys {
		parts = append(parts, k+"="+canon(fields[k]))
	}
	return strings.Join(parts, "|")
}

// binding adapts one entity table to the store's typed operations so
// the import and export machinery can stay generic.
type binding struct {
	rows   func(view domain.RuleView) ([]map[string]any, error)
	find   func(view domain.RuleView, id string) (map[string]any, bool)
	create func(tx domain.Transaction, row map[string]any) (map[string]any, error)
	update func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error)
	remove func(tx domain.Transaction, id string) error
}

func bindingFor(table string) (binding, bool) {
	b, ok := bindings[table]
	return b, ok
}

var bindings = map[string]binding{
	"family": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListFamilies()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindFamily(id))
		},
		create: createRow[domain.Family](func(tx domain.Transaction, rec domain.Family) (domain.Family, error) {
			return tx.CreateFamily(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateFamily(id, applyFields[domain.Family](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteFamily(id) },
	},
	"genus": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListGenera()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindGenus(id))
		},
		create: createRow[domain.Genus](func(tx domain.Transaction, rec domain.Genus) (domain.Genus, error) {
			return tx.CreateGenus(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateGenus(id, applyFields[domain.Genus](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteGenus(id) },
	},
	"species": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListSpecies()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindSpecies(id))
		},
		create: createRow[domain.Species](func(tx domain.Transaction, rec domain.Species) (domain.Species, error) {
			return tx.CreateSpecies(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateSpecies(id, applyFields[domain.Species](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteSpecies(id) },
	},
	"vernacular_name": {
		rows: func(view domain.RuleView) ([]map[string]any, error) {
			return encodeRows(view.ListVernacularNames())
		},
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindVernacularName(id))
		},
		create: createRow[domain.VernacularName](func(tx domain.Transaction, rec domain.VernacularName) (domain.VernacularName, error) {
			return tx.CreateVernacularName(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateVernacularName(id, applyFields[domain.VernacularName](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteVernacularName(id) },
	},
	"geography": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListGeographies()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindGeography(id))
		},
		create: createRow[domain.Geography](func(tx domain.Transaction, rec domain.Geography) (domain.Geography, error) {
			return tx.CreateGeography(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateGeography(id, applyFields[domain.Geography](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteGeography(id) },
	},
	"location": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListLocations()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindLocation(id))
		},
		create: createRow[domain.Location](func(tx domain.Transaction, rec domain.Location) (domain.Location, error) {
			return tx.CreateLocation(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateLocation(id, applyFields[domain.Location](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteLocation(id) },
	},
	"source_detail": {
		rows: func(view domain.RuleView) ([]map[string]any, error) {
			return encodeRows(view.ListSourceDetails())
		},
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindSourceDetail(id))
		},
		create: createRow[domain.SourceDetail](func(tx domain.Transaction, rec domain.SourceDetail) (domain.SourceDetail, error) {
			return tx.CreateSourceDetail(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateSourceDetail(id, applyFields[domain.SourceDetail](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteSourceDetail(id) },
	},
	"accession": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListAccessions()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindAccession(id))
		},
		create: createRow[domain.Accession](func(tx domain.Transaction, rec domain.Accession) (domain.Accession, error) {
			return tx.CreateAccession(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdateAccession(id, applyFields[domain.Accession](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeleteAccession(id) },
	},
	"plant": {
		rows: func(view domain.RuleView) ([]map[string]any, error) { return encodeRows(view.ListPlants()) },
		find: func(view domain.RuleView, id string) (map[string]any, bool) {
			return encodeFound(view.FindPlant(id))
		},
		create: createRow[domain.Plant](func(tx domain.Transaction, rec domain.Plant) (domain.Plant, error) {
			return tx.CreatePlant(rec)
		}),
		update: func(tx domain.Transaction, id string, fields map[string]any) (map[string]any, error) {
			updated, err := tx.UpdatePlant(id, applyFields[domain.Plant](fields))
			if err != nil {
				return nil, err
			}
			return rowOf(updated)
		},
		remove: func(tx domain.Transaction, id string) error { return tx.DeletePlant(id) },
	},
}

func createRow[T any](create func(domain.Transaction, T) (T, error)) func(domain.Transaction, map[string]any) (map[string]any, error) {
	return func(tx domain.Transaction, row map[string]any) (map[string]any, error) {
		record, err := recordOf[T](row)
		if err != nil {
			return nil, err
		}
		created, err := create(tx, record)
		if err != nil {
			return nil, err
		}
		return rowOf(created)
	}
}

func encodeFound[T any](record T, ok bool) (map[string]any, bool) {
	if !ok {
		return nil, false
	}
	row, err := rowOf(record)
	if err != nil {
		return nil, false
	}
	return row, true
}
