package imex

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

// Backup materializes every entity table as a CSV file keyed
// "<table>.csv". Each file carries the table's full column set with
// embedded blocks serialized as JSON cells, so the output restores
// without loss. Rows sort by id for stable payloads.
func Backup(ctx context.Context, store domain.PersistentStore) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := store.View(ctx, func(view domain.TransactionView) error {
		for _, desc := range entitymodel.Tables() {
			bind, ok := bindingFor(desc.Table)
			if !ok {
				return fmt.Errorf("no store binding for table %s", desc.Table)
			}
			records, err := bind.rows(view)
			if err != nil {
				return err
			}
			sort.Slice(records, func(i, j int) bool {
				return canon(records[i]["id"]) < canon(records[j]["id"])
			})
			header := desc.Columns()
			rows := make([][]string, 0, len(records))
			for _, record := range records {
				cells := make([]string, len(header))
				for i, col := range header {
					cells[i] = canon(record[col])
				}
				rows = append(rows, cells)
			}
			var buf bytes.Buffer
			if err := WriteCSV(&buf, header, rows); err != nil {
				return fmt.Errorf("%s: %w", desc.Table, err)
			}
			files[desc.Table+".csv"] = buf.Bytes()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Restore replaces the store's contents with the records held in a set
// of backup files. Every file is parsed and coerced before any write so
// a malformed payload cannot leave the store half wiped; the wipe and
// reload then run in one transaction. Tables load in dependency order,
// geography rows parent first, and species default vernacular pointers
// apply in a second pass once the vernacular names exist. Returns the
// created row count per table.
func Restore(ctx context.Context, store domain.PersistentStore, files map[string][]byte) (map[string]int, error) {
	known := make(map[string]entitymodel.Descriptor)
	for _, desc := range entitymodel.Tables() {
		known[desc.Table] = desc
	}
	parsed := make(map[string][]map[string]any)
	for name, payload := range files {
		table := strings.TrimSuffix(name, ".csv")
		desc, ok := known[table]
		if !ok {
			return nil, fmt.Errorf("unknown restore file %q", name)
		}
		if _, dup := parsed[table]; dup {
			return nil, fmt.Errorf("duplicate restore file for table %s", table)
		}
		rows, err := parseBackupTable(desc, payload)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		parsed[table] = rows
	}

	created := make(map[string]int)
	_, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := wipe(tx); err != nil {
			return fmt.Errorf("wipe store: %w", err)
		}
		defaultVernaculars := make(map[string]string)
		for _, desc := range entitymodel.Tables() {
			rows := parsed[desc.Table]
			if desc.SelfRef != "" {
				var err error
				rows, err = orderSelfRef(rows, desc.SelfRef)
				if err != nil {
					return fmt.Errorf("%s: %w", desc.Table, err)
				}
			}
			bind, ok := bindingFor(desc.Table)
			if !ok {
				return fmt.Errorf("no store binding for table %s", desc.Table)
			}
			for _, row := range rows {
				// The default vernacular points forward to a table that
				// loads later, so it is withheld here and applied below.
				if desc.Table == "species" {
					if dv := canon(row["default_vernacular_id"]); dv != "" {
						defaultVernaculars[canon(row["id"])] = dv
						row = withoutColumn(row, "default_vernacular_id")
					}
				}
				if _, err := bind.create(tx, row); err != nil {
					return fmt.Errorf("%s: %w", desc.Table, err)
				}
				created[desc.Table]++
			}
		}
		for speciesID, vernacularID := range defaultVernaculars {
			id := vernacularID
			if _, err := tx.UpdateSpecies(speciesID, func(s *domain.Species) error {
				s.DefaultVernacularID = &id
				return nil
			}); err != nil {
				return fmt.Errorf("species %s default vernacular: %w", speciesID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Zip packs named payloads into one archive with entries in name order
// so identical backups produce identical bytes.
func Zip(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	for _, name := range names {
		entry, err := archive.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		if _, err := entry.Write(files[name]); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unzip expands an archive produced by Zip back into named payloads.
func Unzip(payload []byte) (map[string][]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	files := make(map[string][]byte, len(reader.File))
	for _, entry := range reader.File {
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", entry.Name, err)
		}
		data, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name, err)
		}
		if closeErr != nil {
			return nil, fmt.Errorf("close %s: %w", entry.Name, closeErr)
		}
		files[entry.Name] = data
	}
	return files, nil
}

func parseBackupTable(desc entitymodel.Descriptor, payload []byte) ([]map[string]any, error) {
	header, records, err := ReadRecords(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for i, record := range records {
		row := make(map[string]any, len(header))
		for _, col := range header {
			field, ok := desc.Field(col)
			if !ok {
				return nil, fmt.Errorf("row %d: unknown column %q", i+1, col)
			}
			value, err := coerceValue(field, record[col])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, ColumnError{Column: col, Err: err})
			}
			if value != nil {
				row[col] = value
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// orderSelfRef arranges rows of a self-referential table so every row
// appears after the row its ref column points at. Rows pointing nowhere
// go first.
func orderSelfRef(rows []map[string]any, ref string) ([]map[string]any, error) {
	ordered := make([]map[string]any, 0, len(rows))
	emitted := make(map[string]bool, len(rows))
	pending := append([]map[string]any(nil), rows...)
	for len(pending) > 0 {
		var rest []map[string]any
		for _, row := range pending {
			parent := canon(row[ref])
			if parent == "" || emitted[parent] {
				ordered = append(ordered, row)
				emitted[canon(row["id"])] = true
			} else {
				rest = append(rest, row)
			}
		}
		if len(rest) == len(pending) {
			return nil, fmt.Errorf("%d rows reference missing or cyclic %s values", len(rest), ref)
		}
		pending = rest
	}
	return ordered, nil
}

// wipe deletes every record in reverse dependency order. Default
// vernacular pointers clear first because they block vernacular name
// deletion, and geographies leave deepest first.
func wipe(tx domain.Transaction) error {
	view := tx.Snapshot()
	for _, sp := range view.ListSpecies() {
		if sp.DefaultVernacularID == nil {
			continue
		}
		if _, err := tx.UpdateSpecies(sp.ID, func(s *domain.Species) error {
			s.DefaultVernacularID = nil
			return nil
		}); err != nil {
			return err
		}
	}
	for _, p := range view.ListPlants() {
		if err := tx.DeletePlant(p.ID); err != nil {
			return err
		}
	}
	for _, a := range view.ListAccessions() {
		if err := tx.DeleteAccession(a.ID); err != nil {
			return err
		}
	}
	for _, s := range view.ListSourceDetails() {
		if err := tx.DeleteSourceDetail(s.ID); err != nil {
			return err
		}
	}
	for _, l := range view.ListLocations() {
		if err := tx.DeleteLocation(l.ID); err != nil {
			return err
		}
	}
	for _, v := range view.ListVernacularNames() {
		if err := tx.DeleteVernacularName(v.ID); err != nil {
			return err
		}
	}
	for _, s := range view.ListSpecies() {
		if err := tx.DeleteSpecies(s.ID); err != nil {
			return err
		}
	}
	for _, g := range view.ListGenera() {
		if err := tx.DeleteGenus(g.ID); err != nil {
			return err
		}
	}
	for _, f := range view.ListFamilies() {
		if err := tx.DeleteFamily(f.ID); err != nil {
			return err
		}
	}
	geographies := view.ListGeographies()
	depths := make(map[string]int, len(geographies))
	byID := make(map[string]domain.Geography, len(geographies))
	for _, g := range geographies {
		byID[g.ID] = g
	}
	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := depths[id]; ok {
			return d
		}
		depths[id] = 0
		g, ok := byID[id]
		if ok && g.ParentID != nil {
			depths[id] = depth(*g.ParentID) + 1
		}
		return depths[id]
	}
	sort.SliceStable(geographies, func(i, j int) bool {
		return depth(geographies[i].ID) > depth(geographies[j].ID)
	})
	for _, g := range geographies {
		if err := tx.DeleteGeography(g.ID); err != nil {
			return err
		}
	}
	return nil
}

func withoutColumn(row map[string]any, column string) map[string]any {
	trimmed := make(map[string]any, len(row))
	for k, v := range row {
		if k == column {
			continue
		}
		trimmed[k] = v
	}
	return trimmed
}
