package imex

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
)

// MatchBehavior controls how rows map onto existing base records.
type MatchBehavior string

const (
	// Upsert matches existing records and updates them, creating the
	// rest. It is the default.
	Upsert MatchBehavior = "upsert"
	// CreateOnly skips rows whose base record already exists.
	CreateOnly MatchBehavior = "create_only"
	// UpdateOnly skips rows whose base record does not exist yet.
	UpdateOnly MatchBehavior = "update_only"
)

// errSkipRow aborts a row's transaction without counting it as failed.
var errSkipRow = errors.New("row skipped by match behavior")

// Progress reports import advancement at a fixed row interval.
type Progress struct {
	Done      int
	Total     int
	Committed int
	Failed    int
}

// Options tunes one import run.
type Options struct {
	Behavior MatchBehavior
	// ProgressEvery fires OnProgress every n rows. Zero derives the
	// interval from the row count.
	ProgressEvery int
	OnProgress    func(Progress)
}

// Summary reports the outcome of an import run. RecordsCreated counts
// every record the run created, related records included, so an
// unchanged re-import reports zero.
type Summary struct {
	Rows           int
	Committed      int
	Failed         int
	Skipped        int
	RecordsCreated int
	RecordsUpdated int
	Failures       *FailureSet
}

// Importer is the generic record import engine. Each row is organised
// into related-record groups, resolved depth-first with get-or-create
// semantics, and committed in its own transaction; failures roll the
// row back and accumulate for a CSV dump.
type Importer struct {
	store  domain.PersistentStore
	logger logrus.FieldLogger
}

// NewImporter builds an importer over the store. A nil logger discards
// row diagnostics.
func NewImporter(store domain.PersistentStore, logger logrus.FieldLogger) *Importer {
	if logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		logger = silent
	}
	return &Importer{store: store, logger: logger}
}

// ReadRecords decodes a CSV stream into its header and one flat record
// per row. Rows with a deviating cell count are padded or truncated to
// the header so their problems surface as row errors instead of
// aborting the file.
func ReadRecords(r io.Reader) ([]string, []map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	var records []map[string]string
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", len(records)+2, err)
		}
		record := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(cells) {
				record[column] = cells[i]
			} else {
				record[column] = ""
			}
		}
		records = append(records, record)
	}
	return header, records, nil
}

// ImportCSV reads a CSV stream and runs the import against the named
// base table.
func (im *Importer) ImportCSV(ctx context.Context, table string, r io.Reader, opts Options) (Summary, error) {
	header, records, err := ReadRecords(r)
	if err != nil {
		return Summary{Failures: newFailureSet(nil)}, err
	}
	return im.Run(ctx, table, header, records, opts)
}

// Run imports flat records into the named base table, one transaction
// per row. Failed rows roll back and are retained with their error;
// the remaining rows still commit. Cancellation is honored between
// rows and returns the partial summary.
func (im *Importer) Run(ctx context.Context, table string, header []string, records []map[string]string, opts Options) (Summary, error) {
	summary := Summary{Failures: newFailureSet(header)}
	desc, ok := entitymodel.Lookup(table)
	if !ok || desc.Entity == "" {
		return summary, fmt.Errorf("unknown import table %q", table)
	}
	behavior := opts.Behavior
	if behavior == "" {
		behavior = Upsert
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = len(records) / 20
		if every == 0 {
			every = 1
		}
	}

	run := newMemoCache()
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Rows++
		res := newResolver(run)
		_, err := im.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			return im.populate(tx, res, desc, record, behavior)
		})
		switch {
		case errors.Is(err, errSkipRow):
			summary.Skipped++
		case err != nil:
			summary.Failed++
			summary.Failures.add(record, err)
			im.logger.WithFields(logrus.Fields{
				"table": table,
				"row":   i + 1,
				"error": err.Error(),
			}).Warn("import row failed")
		default:
			summary.Committed++
			summary.RecordsCreated += res.created
			summary.RecordsUpdated += res.updated
			run.merge(res.staged)
		}
		if opts.OnProgress != nil && (i+1)%every == 0 {
			opts.OnProgress(Progress{
				Done:      i + 1,
				Total:     len(records),
				Committed: summary.Committed,
				Failed:    summary.Failed,
			})
		}
	}
	im.logger.WithFields(logrus.Fields{
		"table":     table,
		"rows":      summary.Rows,
		"committed": summary.Committed,
		"failed":    summary.Failed,
		"skipped":   summary.Skipped,
	}).Info("import finished")
	return summary, nil
}

// populate resolves one row inside its transaction: related groups
// depth-first, embedded blocks assembled in place, then the base record
// matched per behavior, and deferred edges applied last.
func (im *Importer) populate(tx domain.Transaction, res *resolver, desc entitymodel.Descriptor, record map[string]string, behavior MatchBehavior) error {
	groups, err := organiseRecord(desc, record)
	if err != nil {
		return err
	}
	byPath := make(map[string]*group, len(groups))
	for _, grp := range groups {
		byPath[grp.path] = grp
	}

	resolved := map[string]map[string]any{}
	var deferred []*group
	var base *group
	for _, grp := range groups {
		if grp.path == "" {
			base = grp
			continue
		}
		if grp.rel.Deferred {
			deferred = append(deferred, grp)
			continue
		}
		if grp.rel.Kind == entitymodel.RelEmbedded {
			im.attach(byPath, grp, grp.fields)
			continue
		}
		row, err := res.resolve(tx, grp.desc, grp.fields)
		if err != nil {
			return fmt.Errorf("%s: %w", grp.path, err)
		}
		resolved[grp.path] = row
		im.attach(byPath, grp, row["id"])
	}

	baseRow, err := im.resolveBase(tx, res, desc, base.fields, behavior)
	if err != nil {
		return err
	}
	resolved[""] = baseRow

	for _, grp := range deferred {
		if err := im.applyDeferred(tx, res, byPath, resolved, grp); err != nil {
			return fmt.Errorf("%s: %w", grp.path, err)
		}
	}
	return nil
}

// attach writes a resolved value into the owning group: the foreign key
// for to-one edges, the assembled block itself for embedded ones. A
// missing owner group means the header never addressed the owner; the
// resolved record stays, unlinked.
func (im *Importer) attach(byPath map[string]*group, grp *group, value any) {
	owner, ok := byPath[grp.owner]
	if !ok {
		im.logger.WithFields(logrus.Fields{"path": grp.path}).Debug("no owner group, leaving record unlinked")
		return
	}
	if grp.rel.Kind == entitymodel.RelEmbedded {
		owner.fields[grp.rel.Name] = value
		return
	}
	owner.fields[grp.rel.FK] = value
}

func (im *Importer) resolveBase(tx domain.Transaction, res *resolver, desc entitymodel.Descriptor, fields map[string]any, behavior MatchBehavior) (map[string]any, error) {
	bind, ok := bindingFor(desc.Table)
	if !ok {
		return nil, fmt.Errorf("no store binding for table %s", desc.Table)
	}
	row, found, err := res.match(tx.Snapshot(), desc, fields)
	if err != nil {
		return nil, err
	}
	switch {
	case found && behavior == CreateOnly:
		return nil, errSkipRow
	case !found && behavior == UpdateOnly:
		return nil, errSkipRow
	case found:
		return res.applyDiff(tx, bind, row, fields)
	default:
		created, err := bind.create(tx, fields)
		if err != nil {
			return nil, err
		}
		res.created++
		return created, nil
	}
}

// applyDeferred resolves an edge that cannot exist before its owner
// does, such as a species' default vernacular name: the child record is
// resolved with a back-reference to the owner, then the owner's foreign
// key is pointed at it.
func (im *Importer) applyDeferred(tx domain.Transaction, res *resolver, byPath map[string]*group, resolved map[string]map[string]any, grp *group) error {
	ownerRow, ok := resolved[grp.owner]
	if !ok {
		im.logger.WithFields(logrus.Fields{"path": grp.path}).Debug("no owner record, skipping deferred edge")
		return nil
	}
	ownerDesc := byPath[grp.owner].desc

	for _, rel := range grp.desc.Relationships {
		if rel.Target == ownerDesc.Table && rel.FK != "" {
			grp.fields[rel.FK] = ownerRow["id"]
		}
	}
	childRow, err := res.resolve(tx, grp.desc, grp.fields)
	if err != nil {
		return err
	}
	if valueEqual(ownerRow[grp.rel.FK], childRow["id"]) {
		return nil
	}
	ownerBind, ok := bindingFor(ownerDesc.Table)
	if !ok {
		return fmt.Errorf("no store binding for table %s", ownerDesc.Table)
	}
	if _, err := ownerBind.update(tx, canon(ownerRow["id"]), map[string]any{grp.rel.FK: childRow["id"]}); err != nil {
		return err
	}
	return nil
}
