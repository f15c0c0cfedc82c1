package imex

import (
	"errors"
	"strings"
	"testing"

	"floracore/internal/entitymodel"
)

func descriptor(t *testing.T, table string) entitymodel.Descriptor {
	t.Helper()
	desc, ok := entitymodel.Lookup(table)
	if !ok {
		t.Fatalf("no descriptor for table %s", table)
	}
	return desc
}

func TestOrganiseRecordGroupsDeepestFirst(t *testing.T) {
	record := map[string]string{
		"code":                                   "1",
		"quantity":                               "3",
		"accession.code":                         "2024.0001",
		"accession.species.epithet":              "dealbata",
		"accession.species.genus.epithet":        "Acacia",
		"accession.species.genus.family.epithet": "Fabaceae",
		"location.code":                          "BED1",
	}
	groups, err := organiseRecord(descriptor(t, "plant"), record)
	if err != nil {
		t.Fatalf("organise: %v", err)
	}
	var paths []string
	for _, grp := range groups {
		paths = append(paths, grp.path)
	}
	want := []string{
		"accession.species.genus.family",
		"accession.species.genus",
		"accession.species",
		"accession",
		"location",
		"",
	}
	if len(paths) != len(want) {
		t.Fatalf("got %d groups (%v), want %d", len(paths), paths, len(want))
	}
	for i, path := range want {
		if paths[i] != path {
			t.Fatalf("group %d: got %q, want %q", i, paths[i], path)
		}
	}

	base := groups[len(groups)-1]
	if base.desc.Table != "plant" {
		t.Fatalf("base group table = %s", base.desc.Table)
	}
	if got, ok := base.fields["quantity"].(int64); !ok || got != 3 {
		t.Fatalf("quantity = %#v, want int64(3)", base.fields["quantity"])
	}
	family := groups[0]
	if family.desc.Table != "family" || family.owner != "accession.species.genus" {
		t.Fatalf("deepest group = %s owned by %q", family.desc.Table, family.owner)
	}
	if family.fields["epithet"] != "Fabaceae" {
		t.Fatalf("family epithet = %#v", family.fields["epithet"])
	}
}

func TestOrganiseRecordEmptyCellsBecomeNil(t *testing.T) {
	groups, err := organiseRecord(descriptor(t, "species"), map[string]string{
		"epithet": "dealbata",
		"author":  "",
	})
	if err != nil {
		t.Fatalf("organise: %v", err)
	}
	base := groups[len(groups)-1]
	if value, present := base.fields["author"]; !present || value != nil {
		t.Fatalf("author = %#v (present %v), want explicit nil", value, present)
	}
}

func TestOrganiseRecordDefaultVernacularTakesName(t *testing.T) {
	groups, err := organiseRecord(descriptor(t, "species"), map[string]string{
		"epithet":                 "dealbata",
		"default_vernacular_name": "silver wattle",
	})
	if err != nil {
		t.Fatalf("organise: %v", err)
	}
	var vernacular *group
	for _, grp := range groups {
		if grp.path == "default_vernacular_name" {
			vernacular = grp
		}
	}
	if vernacular == nil {
		t.Fatal("no default_vernacular_name group")
	}
	if !vernacular.rel.Deferred {
		t.Fatal("default vernacular edge should be deferred")
	}
	if vernacular.desc.Table != "vernacular_name" {
		t.Fatalf("group table = %s", vernacular.desc.Table)
	}
	if vernacular.fields["name"] != "silver wattle" {
		t.Fatalf("name = %#v", vernacular.fields["name"])
	}
}

func TestOrganiseRecordSourceColumnIsField(t *testing.T) {
	groups, err := organiseRecord(descriptor(t, "accession"), map[string]string{
		"code":   "2024.0001",
		"source": `{"sources_code":"A1"}`,
	})
	if err != nil {
		t.Fatalf("organise: %v", err)
	}
	base := groups[len(groups)-1]
	block, ok := base.fields["source"].(map[string]any)
	if !ok {
		t.Fatalf("source = %#v, want JSON object on the base record", base.fields["source"])
	}
	if block["sources_code"] != "A1" {
		t.Fatalf("sources_code = %#v", block["sources_code"])
	}
}

func TestOrganiseRecordErrors(t *testing.T) {
	cases := []struct {
		name   string
		table  string
		record map[string]string
		want   string
	}{
		{
			name:   "relationship terminal",
			table:  "species",
			record: map[string]string{"genus": "Acacia"},
			want:   `path ends at relationship "genus"`,
		},
		{
			name:   "unknown column",
			table:  "species",
			record: map[string]string{"bogus": "x"},
			want:   `no field "bogus"`,
		},
		{
			name:   "enum violation",
			table:  "species",
			record: map[string]string{"infraspecific_rank": "variety"},
			want:   "not one of",
		},
		{
			name:   "bad integer",
			table:  "plant",
			record: map[string]string{"code": "1", "quantity": "many"},
			want:   "not an integer",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := organiseRecord(descriptor(t, tc.table), tc.record)
			if err == nil {
				t.Fatal("expected error")
			}
			var colErr ColumnError
			if !errors.As(err, &colErr) {
				t.Fatalf("error %T is not a ColumnError", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
