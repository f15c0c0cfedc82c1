package imex

import (
	"fmt"
	"sort"
	"strings"

	"floracore/internal/entitymodel"
)

// ColumnError ties a path-resolution or coercion failure to the column
// it came from so row failures stay actionable.
type ColumnError struct {
	Column string
	Err    error
}

func (e ColumnError) Error() string {
	return fmt.Sprintf("column %s: %v", e.Column, e.Err)
}

func (e ColumnError) Unwrap() error { return e.Err }

// group collects the values destined for one record of a row: the base
// record itself (path "") or a related record addressed by the dotted
// prefix shared by its columns.
type group struct {
	path   string
	owner  string
	rel    entitymodel.Relationship
	desc   entitymodel.Descriptor
	fields map[string]any
}

func (g *group) depth() int {
	if g.path == "" {
		return 0
	}
	return strings.Count(g.path, ".") + 1
}

// organiseRecord turns a flat dotted-path record into resolution groups.
// Deeper paths sort first so related records are found or created before
// the records that reference them; empty cells become nil.
func organiseRecord(base entitymodel.Descriptor, record map[string]string) ([]*group, error) {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := strings.Count(keys[i], "."), strings.Count(keys[j], ".")
		if di != dj {
			return di > dj
		}
		return keys[i] < keys[j]
	})

	groups := map[string]*group{}
	for _, key := range keys {
		path := key
		leafDesc, field, err := pathField(base, path)
		if err != nil {
			// Assigning the default vernacular relationship directly
			// takes the common name itself as the value.
			rel, ok := pathRelationship(base, path)
			switch {
			case ok && rel.Name == "default_vernacular_name":
				path += ".name"
				leafDesc, field, err = pathField(base, path)
				if err != nil {
					return nil, ColumnError{Column: key, Err: err}
				}
			case ok:
				return nil, ColumnError{Column: key, Err: fmt.Errorf("path ends at relationship %q", rel.Name)}
			default:
				return nil, ColumnError{Column: key, Err: err}
			}
		}
		value, err := coerceValue(field, record[key])
		if err != nil {
			return nil, ColumnError{Column: key, Err: err}
		}
		prefix := ""
		if i := strings.LastIndex(path, "."); i >= 0 {
			prefix = path[:i]
		}
		grp, err := ensureGroup(groups, base, prefix)
		if err != nil {
			return nil, ColumnError{Column: key, Err: err}
		}
		if grp.desc.Table != leafDesc.Table {
			return nil, ColumnError{Column: key, Err: fmt.Errorf("path resolves to %s, group is %s", leafDesc.Table, grp.desc.Table)}
		}
		grp.fields[field.Name] = value
	}

	if _, ok := groups[""]; !ok {
		groups[""] = &group{desc: base, fields: map[string]any{}}
	}

	ordered := make([]*group, 0, len(groups))
	for _, grp := range groups {
		ordered = append(ordered, grp)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].depth() != ordered[j].depth() {
			return ordered[i].depth() > ordered[j].depth()
		}
		return ordered[i].path < ordered[j].path
	})
	return ordered, nil
}

func ensureGroup(groups map[string]*group, base entitymodel.Descriptor, path string) (*group, error) {
	if grp, ok := groups[path]; ok {
		return grp, nil
	}
	if path == "" {
		grp := &group{desc: base, fields: map[string]any{}}
		groups[""] = grp
		return grp, nil
	}
	owner := ""
	relName := path
	if i := strings.LastIndex(path, "."); i >= 0 {
		owner = path[:i]
		relName = path[i+1:]
	}
	ownerDesc := base
	if owner != "" {
		var err error
		ownerDesc, _, err = walkRelationships(base, owner)
		if err != nil {
			return nil, err
		}
	}
	rel, ok := ownerDesc.Relationship(relName)
	if !ok {
		return nil, fmt.Errorf("no relationship %q on %s", relName, ownerDesc.Table)
	}
	desc, ok := entitymodel.Lookup(rel.Target)
	if !ok {
		return nil, fmt.Errorf("relationship %q targets unknown table %q", relName, rel.Target)
	}
	grp := &group{path: path, owner: owner, rel: rel, desc: desc, fields: map[string]any{}}
	groups[path] = grp
	return grp, nil
}

// walkRelationships follows a dotted relationship chain and returns the
// final target descriptor plus the edge that reached it.
func walkRelationships(base entitymodel.Descriptor, path string) (entitymodel.Descriptor, entitymodel.Relationship, error) {
	current := base
	var last entitymodel.Relationship
	for _, segment := range strings.Split(path, ".") {
		rel, ok := current.Relationship(segment)
		if !ok {
			return entitymodel.Descriptor{}, entitymodel.Relationship{}, fmt.Errorf("no relationship %q on %s", segment, current.Table)
		}
		next, ok := entitymodel.Lookup(rel.Target)
		if !ok {
			return entitymodel.Descriptor{}, entitymodel.Relationship{}, fmt.Errorf("relationship %q targets unknown table %q", segment, rel.Target)
		}
		current, last = next, rel
	}
	return current, last, nil
}

// pathRelationship reports whether the whole path names a relationship
// rather than a field.
func pathRelationship(base entitymodel.Descriptor, path string) (entitymodel.Relationship, bool) {
	_, rel, err := walkRelationships(base, path)
	if err != nil || rel.Name == "" {
		return entitymodel.Relationship{}, false
	}
	return rel, true
}

// pathField resolves the descriptor and field addressed by a dotted
// path whose last segment is an attribute.
func pathField(base entitymodel.Descriptor, path string) (entitymodel.Descriptor, entitymodel.Field, error) {
	desc, name, err := entitymodel.PathTarget(base, path)
	if err != nil {
		return entitymodel.Descriptor{}, entitymodel.Field{}, err
	}
	field, ok := desc.Field(name)
	if !ok {
		return entitymodel.Descriptor{}, entitymodel.Field{}, fmt.Errorf("no field %q on %s", name, desc.Table)
	}
	return desc, field, nil
}
