package jobs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"floracore/internal/blob"
	"floracore/internal/entitymodel"
	"floracore/pkg/domain"
	"floracore/pkg/reportapi"
)

// TemplateCatalog resolves installed report templates by slug.
type TemplateCatalog interface {
	ReportTemplate(slug string) (reportapi.TemplateRuntime, bool)
}

const queueCapacity = 32

// Worker executes submitted jobs on a single background goroutine.
// Records live in memory for the lifetime of the worker; artifacts
// outlive it in the blob store.
type Worker struct {
	store   domain.PersistentStore
	blobs   blob.Store
	catalog TemplateCatalog
	log     logrus.FieldLogger
	audit   AuditLogger
	monitor Monitor
	now     func() time.Time

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopping chan struct{}
	wg       sync.WaitGroup
}

type task struct {
	id      string
	request Request
}

// Option customizes worker construction.
type Option func(*Worker)

// WithCatalog wires the report template resolver. Without it report
// jobs are rejected at submission.
func WithCatalog(catalog TemplateCatalog) Option {
	return func(w *Worker) {
		if catalog != nil {
			w.catalog = catalog
		}
	}
}

// WithLogger overrides the worker logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.log = logger
		}
	}
}

// WithAudit wires the job audit sink.
func WithAudit(audit AuditLogger) Option {
	return func(w *Worker) {
		if audit != nil {
			w.audit = audit
		}
	}
}

// WithMonitor wires the transition observer.
func WithMonitor(monitor Monitor) Option {
	return func(w *Worker) {
		if monitor != nil {
			w.monitor = monitor
		}
	}
}

// WithNow overrides the worker time source.
func WithNow(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// NewWorker builds a worker over the record store and artifact store.
func NewWorker(store domain.PersistentStore, blobs blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	silent := logrus.New()
	silent.SetOutput(io.Discard)
	w := &Worker{
		store:    store,
		blobs:    blobs,
		log:      silent,
		audit:    noopAudit{},
		monitor:  noopMonitor{},
		now:      func() time.Time { return time.Now().UTC() },
		queue:    make(chan task, queueCapacity),
		jobs:     make(map[string]*Record),
		ctx:      ctx,
		cancel:   cancel,
		stopping: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing submitted jobs.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop drains queued jobs and waits for the loop to exit. When the
// context expires first, in-flight work is cancelled and the context
// error returned.
func (w *Worker) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopping) })
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.cancel()
		return nil
	case <-ctx.Done():
		w.cancel()
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.stopping:
			w.drain()
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		default:
			return
		}
	}
}

// Submit validates and enqueues a job, returning its queued record.
func (w *Worker) Submit(ctx context.Context, req Request) (Record, error) {
	select {
	case <-w.stopping:
		return Record{}, ErrStopped
	default:
	}
	if err := w.validate(req); err != nil {
		return Record{}, err
	}

	now := w.now().UTC()
	record := Record{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		Parameters:  cloneParameters(req.Parameters),
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	req.Payload = append([]byte(nil), req.Payload...)

	w.mu.Lock()
	w.jobs[record.ID] = &record
	snapshot := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: record.ID, request: req}:
	default:
		w.mu.Lock()
		delete(w.jobs, record.ID)
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}

	w.monitor.JobTransition(record.Kind, StatusQueued)
	w.audit.Record(ctx, AuditEntry{
		JobID:      record.ID,
		Kind:       record.Kind,
		Status:     StatusQueued,
		Actor:      record.RequestedBy,
		OccurredAt: now,
	})
	w.log.WithFields(logrus.Fields{"job_id": record.ID, "kind": record.Kind}).Info("job queued")
	return snapshot, nil
}

// Get returns a snapshot of the job record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

// List returns snapshots of all job records, oldest first.
func (w *Worker) List() []Record {
	w.mu.RLock()
	out := make([]Record, 0, len(w.jobs))
	for _, record := range w.jobs {
		out = append(out, record.copy())
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (w *Worker) validate(req Request) error {
	params := req.Parameters
	switch req.Kind {
	case KindImport:
		table := stringParam(params, "table")
		if table == "" {
			return fmt.Errorf("import table required")
		}
		if _, ok := entitymodel.Lookup(table); !ok {
			return fmt.Errorf("unknown import table %q", table)
		}
		if len(req.Payload) == 0 {
			return fmt.Errorf("import payload required")
		}
		switch behavior := stringParam(params, "behavior"); behavior {
		case "", "upsert", "create_only", "update_only":
		default:
			return fmt.Errorf("unknown match behavior %q", behavior)
		}
	case KindExport:
		format := stringParam(params, "format")
		if format == "" {
			format = "csv"
		}
		switch format {
		case "csv", "xml", "xlsx":
		default:
			return fmt.Errorf("unknown export format %q", format)
		}
		table := stringParam(params, "table")
		if table == "" {
			if format != "xml" {
				return fmt.Errorf("export table required")
			}
			return nil
		}
		if _, ok := entitymodel.Lookup(table); !ok {
			return fmt.Errorf("unknown export table %q", table)
		}
		if len(stringsParam(params, "paths")) == 0 {
			return fmt.Errorf("export paths required")
		}
	case KindBackup:
	case KindReport:
		if w.catalog == nil {
			return fmt.Errorf("report templates unavailable")
		}
		slug := stringParam(params, "template")
		if slug == "" {
			return fmt.Errorf("report template required")
		}
		runtime, ok := w.catalog.ReportTemplate(slug)
		if !ok {
			return fmt.Errorf("report template %s not installed", slug)
		}
		format := reportapi.Format(stringParam(params, "format"))
		if format == "" {
			format = reportapi.FormatCSV
		}
		if !runtime.SupportsFormat(format) {
			return fmt.Errorf("format %s not supported by template %s", format, slug)
		}
	default:
		return fmt.Errorf("unknown job kind %q", req.Kind)
	}
	return nil
}

func (w *Worker) process(t task) {
	w.markRunning(t.id)
	out, err := w.execute(w.ctx, t)
	if err != nil {
		w.fail(t.id, err)
		return
	}
	w.complete(t.id, out)
}

func (w *Worker) markRunning(id string) {
	now := w.now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	if ok {
		record.Status = StatusRunning
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	w.monitor.JobTransition(record.Kind, StatusRunning)
	w.log.WithFields(logrus.Fields{"job_id": id, "kind": record.Kind}).Info("job running")
}

func (w *Worker) complete(id string, out outcome) {
	now := w.now().UTC()
	w.mu.Lock()
	record, ok := w.jobs[id]
	var kind Kind
	var actor string
	if ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = out.artifacts
		record.Counters = out.counters
		record.UpdatedAt = now
		record.CompletedAt = &now
		kind = record.Kind
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	w.monitor.JobTransition(kind, StatusSucceeded)
	w.audit.Record(w.ctx, AuditEntry{
		JobID:      id,
		Kind:       kind,
		Status:     StatusSucceeded,
		Actor:      actor,
		OccurredAt: now,
	})
	w.log.WithFields(logrus.Fields{
		"job_id":    id,
		"kind":      kind,
		"artifacts": len(out.artifacts),
	}).Info("job succeeded")
}

func (w *Worker) fail(id string, cause error) {
	now := w.now().UTC()
	message := strings.TrimSpace(cause.Error())
	w.mu.Lock()
	record, ok := w.jobs[id]
	var kind Kind
	var actor string
	if ok {
		record.Status = StatusFailed
		record.Error = message
		record.UpdatedAt = now
		record.CompletedAt = &now
		kind = record.Kind
		actor = record.RequestedBy
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	w.monitor.JobTransition(kind, StatusFailed)
	w.audit.Record(w.ctx, AuditEntry{
		JobID:      id,
		Kind:       kind,
		Status:     StatusFailed,
		Actor:      actor,
		Note:       message,
		OccurredAt: now,
	})
	w.log.WithFields(logrus.Fields{"job_id": id, "kind": kind, "error": message}).Warn("job failed")
}
