package imex

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

type xmlColumn struct {
	XMLName xml.Name `xml:"column"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:",chardata"`
}

type xmlRow struct {
	XMLName xml.Name    `xml:"row"`
	Columns []xmlColumn `xml:"column"`
}

type xmlTable struct {
	XMLName xml.Name `xml:"table"`
	Name    string   `xml:"name,attr"`
	Rows    []xmlRow `xml:"row"`
}

type xmlTableset struct {
	XMLName xml.Name   `xml:"tableset"`
	Tables  []xmlTable `xml:"table"`
}

// DumpXML renders the whole store as one XML document: a tableset of
// tables, each row listing its columns by name. Empty values appear as
// empty elements rather than being omitted.
func DumpXML(ctx context.Context, store domain.PersistentStore) ([]byte, error) {
	var tableset xmlTableset
	err := store.View(ctx, func(view domain.TransactionView) error {
		for _, desc := range entitymodel.Tables() {
			table, err := xmlTableOf(view, desc)
			if err != nil {
				return err
			}
			tableset.Tables = append(tableset.Tables, table)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renderXML(tableset)
}

// DumpXMLTables renders one XML document per entity table, keyed
// "<table>.xml". Each document is a tableset holding a single table so
// the per-table files share the combined dump's shape.
func DumpXMLTables(ctx context.Context, store domain.PersistentStore) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := store.View(ctx, func(view domain.TransactionView) error {
		for _, desc := range entitymodel.Tables() {
			table, err := xmlTableOf(view, desc)
			if err != nil {
				return err
			}
			payload, err := renderXML(xmlTableset{Tables: []xmlTable{table}})
			if err != nil {
				return err
			}
			files[desc.Table+".xml"] = payload
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// TableXML renders one already-materialized table as an XML document in
// the dump shape: a tableset holding a single named table whose rows
// pair the header columns with their cell values.
func TableXML(name string, header []string, rows [][]string) ([]byte, error) {
	table := xmlTable{Name: name, Rows: make([]xmlRow, 0, len(rows))}
	for _, cells := range rows {
		row := xmlRow{Columns: make([]xmlColumn, 0, len(header))}
		for i, col := range header {
			value := ""
			if i < len(cells) {
				value = cells[i]
			}
			row.Columns = append(row.Columns, xmlColumn{Name: col, Value: value})
		}
		table.Rows = append(table.Rows, row)
	}
	return renderXML(xmlTableset{Tables: []xmlTable{table}})
}

func xmlTableOf(view domain.RuleView, desc entitymodel.Descriptor) (xmlTable, error) {
	bind, ok := bindingFor(desc.Table)
	if !ok {
		return xmlTable{}, fmt.Errorf("no store binding for table %s", desc.Table)
	}
	records, err := bind.rows(view)
	if err != nil {
		return xmlTable{}, err
	}
	sort.Slice(records, func(i, j int) bool {
		return canon(records[i]["id"]) < canon(records[j]["id"])
	})
	columns := desc.Columns()
	table := xmlTable{Name: desc.Table, Rows: make([]xmlRow, 0, len(records))}
	for _, record := range records {
		row := xmlRow{Columns: make([]xmlColumn, 0, len(columns))}
		for _, col := range columns {
			row.Columns = append(row.Columns, xmlColumn{Name: col, Value: canon(record[col])})
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func renderXML(tableset xmlTableset) ([]byte, error) {
	body, err := xml.MarshalIndent(tableset, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), append(body, '\n')...), nil
}
