package imex

import (
	"fmt"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

// memoCache remembers which record each field tuple resolved to during
// one import run, so the run never creates the same related record
// twice and repeated lookups skip the scan.
type memoCache struct {
	ids map[string]string
}

func newMemoCache() *memoCache {
	return &memoCache{ids: map[string]string{}}
}

func (c *memoCache) get(key string) (string, bool) {
	id, ok := c.ids[key]
	return id, ok
}

func (c *memoCache) merge(entries map[string]string) {
	for key, id := range entries {
		c.ids[key] = id
	}
}

// resolver performs get-or-create resolution inside one row's
// transaction. Resolutions are staged locally and promoted to the run
// cache only after the row commits, so a rolled-back row leaves no
// stale cache entries behind.
type resolver struct {
	run     *memoCache
	staged  map[string]string
	created int
	updated int
}

func newResolver(run *memoCache) *resolver {
	return &resolver{run: run, staged: map[string]string{}}
}

func (r *resolver) lookup(key string) (string, bool) {
	if id, ok := r.staged[key]; ok {
		return id, true
	}
	return r.run.get(key)
}

// resolve finds the record matching the supplied fields or creates it,
// applying differing values as updates on a match.
func (r *resolver) resolve(tx domain.Transaction, desc entitymodel.Descriptor, fields map[string]any) (map[string]any, error) {
	bind, ok := bindingFor(desc.Table)
	if !ok {
		return nil, fmt.Errorf("no store binding for table %s", desc.Table)
	}
	view := tx.Snapshot()
	key := memoKey(desc.Table, fields)
	if id, ok := r.lookup(key); ok {
		if row, found := bind.find(view, id); found {
			return row, nil
		}
	}

	row, found, err := r.match(view, desc, fields)
	if err != nil {
		return nil, err
	}
	if found {
		row, err = r.applyDiff(tx, bind, row, fields)
		if err != nil {
			return nil, err
		}
		r.staged[key] = canon(row["id"])
		return row, nil
	}

	row, err = bind.create(tx, fields)
	if err != nil {
		return nil, err
	}
	r.created++
	r.staged[key] = canon(row["id"])
	return row, nil
}

// match runs the lookup cascade without creating: all supplied fields
// first, then the primary key if supplied, then each unique column set.
// More than one hit at any stage is ambiguous and refuses to guess.
func (r *resolver) match(view domain.RuleView, desc entitymodel.Descriptor, fields map[string]any) (map[string]any, bool, error) {
	bind, ok := bindingFor(desc.Table)
	if !ok {
		return nil, false, fmt.Errorf("no store binding for table %s", desc.Table)
	}
	rows, err := bind.rows(view)
	if err != nil {
		return nil, false, err
	}

	matches := matchRows(rows, fields)
	if len(matches) == 1 {
		return matches[0], true, nil
	}
	if len(matches) > 1 {
		return nil, false, fmt.Errorf("%s: %d records match the supplied values, refusing to guess", desc.Table, len(matches))
	}

	if id := canon(fields["id"]); id != "" {
		if row, found := bind.find(view, id); found {
			return row, true, nil
		}
	}

	for _, set := range desc.UniqueSets {
		subset := map[string]any{}
		for _, col := range set {
			if value, ok := fields[col]; ok && canon(value) != "" {
				subset[col] = value
			}
		}
		if len(subset) == 0 {
			continue
		}
		narrowed := matchRows(rows, subset)
		if len(narrowed) > 1 {
			return nil, false, fmt.Errorf("%s: %d records match unique columns %v, refusing to guess", desc.Table, len(narrowed), set)
		}
		if len(narrowed) == 1 {
			return narrowed[0], true, nil
		}
	}
	return nil, false, nil
}

// applyDiff updates a matched record with the supplied values that
// differ from its current state.
func (r *resolver) applyDiff(tx domain.Transaction, bind binding, row, fields map[string]any) (map[string]any, error) {
	diff := fieldsDiff(row, fields)
	if len(diff) == 0 {
		return row, nil
	}
	updated, err := bind.update(tx, canon(row["id"]), diff)
	if err != nil {
		return nil, err
	}
	r.updated++
	return updated, nil
}

func matchRows(rows []map[string]any, fields map[string]any) []map[string]any {
	var matches []map[string]any
	for _, row := range rows {
		if rowMatches(row, fields) {
			matches = append(matches, row)
		}
	}
	return matches
}

func rowMatches(row, fields map[string]any) bool {
	for key, want := range fields {
		if valueDiffers(row[key], want) {
			return false
		}
	}
	return true
}

// fieldsDiff returns the supplied values that disagree with the row,
// excluding the primary key.
func fieldsDiff(row, fields map[string]any) map[string]any {
	diff := map[string]any{}
	for key, want := range fields {
		if key == "id" {
			continue
		}
		if valueDiffers(row[key], want) {
			diff[key] = want
		}
	}
	return diff
}
