package jobs

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"floracore/internal/blob"
	"floracore/internal/imex"
	"floracore/internal/report"
	"floracore/pkg/domain"
	"floracore/pkg/reportapi"
)

type outcome struct {
	artifacts []Artifact
	counters  map[string]int
}

func (w *Worker) execute(ctx context.Context, t task) (outcome, error) {
	switch t.request.Kind {
	case KindImport:
		return w.runImport(ctx, t)
	case KindExport:
		return w.runExport(ctx, t)
	case KindBackup:
		return w.runBackup(ctx, t)
	case KindReport:
		return w.runReport(ctx, t)
	}
	return outcome{}, fmt.Errorf("unknown job kind %q", t.request.Kind)
}

func (w *Worker) runImport(ctx context.Context, t task) (outcome, error) {
	params := t.request.Parameters
	table := stringParam(params, "table")
	opts := imex.Options{Behavior: imex.MatchBehavior(stringParam(params, "behavior"))}
	if opts.Behavior == "" {
		opts.Behavior = imex.Upsert
	}
	importer := imex.NewImporter(w.store, w.log)
	summary, err := importer.ImportCSV(ctx, table, bytes.NewReader(t.request.Payload), opts)
	if err != nil {
		return outcome{}, err
	}
	w.monitor.ImportRows(summary.Committed, summary.Failed, summary.Skipped)

	out := outcome{counters: map[string]int{
		"rows":            summary.Rows,
		"committed":       summary.Committed,
		"failed":          summary.Failed,
		"skipped":         summary.Skipped,
		"records_created": summary.RecordsCreated,
		"records_updated": summary.RecordsUpdated,
	}}
	if summary.Failures != nil && summary.Failures.Len() > 0 {
		var buf bytes.Buffer
		if err := summary.Failures.WriteCSV(&buf); err != nil {
			return outcome{}, err
		}
		artifact, err := w.storeArtifact(ctx, path.Join("imports", t.id, "failures.csv"), "failures", "text/csv", buf.Bytes())
		if err != nil {
			return outcome{}, err
		}
		out.artifacts = append(out.artifacts, artifact)
	}
	return out, nil
}

func (w *Worker) runExport(ctx context.Context, t task) (outcome, error) {
	params := t.request.Parameters
	format := stringParam(params, "format")
	if format == "" {
		format = "csv"
	}
	table := stringParam(params, "table")

	// A bare xml export dumps the entire database as one document.
	if table == "" {
		payload, err := imex.DumpXML(ctx, w.store)
		if err != nil {
			return outcome{}, err
		}
		artifact, err := w.storeArtifact(ctx, path.Join("exports", t.id, "floracore.xml"), "export", "application/xml", payload)
		if err != nil {
			return outcome{}, err
		}
		return outcome{artifacts: []Artifact{artifact}, counters: map[string]int{"bytes": len(payload)}}, nil
	}

	paths := stringsParam(params, "paths")
	var header []string
	var rows [][]string
	err := w.store.View(ctx, func(view domain.TransactionView) error {
		var viewErr error
		header, rows, viewErr = imex.ExportRows(view, table, paths)
		return viewErr
	})
	if err != nil {
		return outcome{}, err
	}

	var payload []byte
	var contentType, ext string
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := imex.WriteCSV(&buf, header, rows); err != nil {
			return outcome{}, err
		}
		payload, contentType, ext = buf.Bytes(), "text/csv", "csv"
	case "xml":
		payload, err = imex.TableXML(table, header, rows)
		if err != nil {
			return outcome{}, err
		}
		contentType, ext = "application/xml", "xml"
	case "xlsx":
		payload, err = imex.Workbook(table, header, rows)
		if err != nil {
			return outcome{}, err
		}
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		ext = "xlsx"
	default:
		return outcome{}, fmt.Errorf("unknown export format %q", format)
	}

	artifact, err := w.storeArtifact(ctx, path.Join("exports", t.id, table+"."+ext), "export", contentType, payload)
	if err != nil {
		return outcome{}, err
	}
	return outcome{artifacts: []Artifact{artifact}, counters: map[string]int{"rows": len(rows)}}, nil
}

func (w *Worker) runBackup(ctx context.Context, t task) (outcome, error) {
	files, err := imex.Backup(ctx, w.store)
	if err != nil {
		return outcome{}, err
	}
	payload, err := imex.Zip(files)
	if err != nil {
		return outcome{}, err
	}
	artifact, err := w.storeArtifact(ctx, path.Join("backups", t.id, "floracore-backup.zip"), "backup", "application/zip", payload)
	if err != nil {
		return outcome{}, err
	}
	return outcome{artifacts: []Artifact{artifact}, counters: map[string]int{"tables": len(files)}}, nil
}

func (w *Worker) runReport(ctx context.Context, t task) (outcome, error) {
	params := t.request.Parameters
	slug := stringParam(params, "template")
	if w.catalog == nil {
		return outcome{}, fmt.Errorf("report templates unavailable")
	}
	runtime, ok := w.catalog.ReportTemplate(slug)
	if !ok {
		return outcome{}, fmt.Errorf("report template %s not installed", slug)
	}
	format := reportapi.Format(stringParam(params, "format"))
	if format == "" {
		format = reportapi.FormatCSV
	}
	selection := selectionParam(params)

	cleaned, paramErrs := runtime.ValidateParameters(mapParam(params, "parameters"))
	if len(paramErrs) > 0 {
		return outcome{}, fmt.Errorf("invalid report parameters: %v", paramErrs)
	}
	result, paramErrs, err := runtime.Run(ctx, cleaned, selection, format)
	if err != nil {
		return outcome{}, err
	}
	if len(paramErrs) > 0 {
		return outcome{}, fmt.Errorf("invalid report parameters: %v", paramErrs)
	}

	rendered, err := report.Materialize(runtime.Descriptor(), result, format)
	if err != nil {
		return outcome{}, err
	}
	key := path.Join("reports", t.id, runtime.Descriptor().Key+"."+rendered.Extension)
	artifact, err := w.storeArtifact(ctx, key, "report", rendered.ContentType, rendered.Payload)
	if err != nil {
		return outcome{}, err
	}
	return outcome{artifacts: []Artifact{artifact}, counters: map[string]int{"rows": rendered.Rows}}, nil
}

func (w *Worker) storeArtifact(ctx context.Context, key, label, contentType string, payload []byte) (Artifact, error) {
	info, err := w.blobs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"label": label},
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("store %s artifact: %w", label, err)
	}
	return Artifact{
		Key:         info.Key,
		Label:       label,
		ContentType: contentType,
		SizeBytes:   info.Size,
		URL:         info.URL,
		CreatedAt:   info.LastModified,
	}, nil
}

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// stringsParam accepts both []string (direct callers) and []any
// (JSON-decoded parameters).
func stringsParam(params map[string]any, key string) []string {
	switch v := params[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func mapParam(params map[string]any, key string) map[string]any {
	if v, ok := params[key].(map[string]any); ok {
		return v
	}
	return nil
}

func selectionParam(params map[string]any) reportapi.Selection {
	raw := mapParam(params, "selection")
	if raw == nil {
		return reportapi.Selection{}
	}
	return reportapi.Selection{
		Domain: reportapi.Domain(stringParam(raw, "domain")),
		IDs:    stringsParam(raw, "ids"),
	}
}
