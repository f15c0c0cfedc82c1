package report

import (
	"bytes"
	"encoding/json"
	"fmt"

	"floracore/internal/imex"
	"floracore/pkg/reportapi"
)

// Artifact is a rendered report payload ready for blob storage.
type Artifact struct {
	Format      reportapi.Format `json:"format"`
	ContentType string           `json:"content_type"`
	Extension   string           `json:"extension"`
	Rows        int              `json:"rows"`
	Payload     []byte           `json:"-"`
}

// Materialize encodes a run result in the requested output format.
func Materialize(template reportapi.TemplateDescriptor, result reportapi.RunResult, format reportapi.Format) (Artifact, error) {
	columns := result.Schema
	if len(columns) == 0 {
		columns = template.Columns
	}
	switch format {
	case reportapi.FormatJSON:
		result.Format = format
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return Artifact{}, fmt.Errorf("marshal report json: %w", err)
		}
		payload = append(payload, '\n')
		return artifact(format, "application/json", "json", len(result.Rows), payload), nil
	case reportapi.FormatCSV:
		header, cells := tabulate(columns, result.Rows)
		buf := &bytes.Buffer{}
		if err := imex.WriteCSV(buf, header, cells); err != nil {
			return Artifact{}, err
		}
		return artifact(format, "text/csv", "csv", len(result.Rows), buf.Bytes()), nil
	case reportapi.FormatXML:
		header, cells := tabulate(columns, result.Rows)
		payload, err := imex.TableXML(documentName(template), header, cells)
		if err != nil {
			return Artifact{}, err
		}
		return artifact(format, "application/xml", "xml", len(result.Rows), payload), nil
	case reportapi.FormatXLSX:
		header, cells := tabulate(columns, result.Rows)
		payload, err := imex.Workbook(sheetName(template), header, cells)
		if err != nil {
			return Artifact{}, err
		}
		const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		return artifact(format, contentType, "xlsx", len(result.Rows), payload), nil
	}
	return Artifact{}, fmt.Errorf("report: unsupported report format %q", format)
}

func artifact(format reportapi.Format, contentType, extension string, rows int, payload []byte) Artifact {
	return Artifact{
		Format:      format,
		ContentType: contentType,
		Extension:   extension,
		Rows:        rows,
		Payload:     payload,
	}
}

// tabulate renders result rows as ordered cells under the column names.
func tabulate(columns []reportapi.Column, rows []map[string]any) ([]string, [][]string) {
	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.Name
	}
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		line := make([]string, len(columns))
		for i, col := range columns {
			line[i] = imex.Cell(row[col.Name])
		}
		cells = append(cells, line)
	}
	return header, cells
}

func documentName(template reportapi.TemplateDescriptor) string {
	if template.Key == "" {
		return "report"
	}
	return template.Key
}

// sheetName derives a worksheet title from the template key, clamped to
// the 31 character sheet name limit.
func sheetName(template reportapi.TemplateDescriptor) string {
	name := documentName(template)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}
