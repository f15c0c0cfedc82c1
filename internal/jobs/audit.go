package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// AuditEntry captures one job lifecycle event.
type AuditEntry struct {
	JobID      string    `json:"job_id"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	Actor      string    `json:"actor,omitempty"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AuditLogger records job submission and completion events.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

// NewLogAudit returns an audit logger that emits entries as structured
// log lines.
func NewLogAudit(logger logrus.FieldLogger) AuditLogger {
	return logAudit{logger: logger}
}

type logAudit struct {
	logger logrus.FieldLogger
}

func (l logAudit) Record(_ context.Context, entry AuditEntry) {
	if l.logger == nil {
		return
	}
	fields := logrus.Fields{
		"job_id": entry.JobID,
		"kind":   entry.Kind,
		"status": entry.Status,
	}
	if entry.Actor != "" {
		fields["actor"] = entry.Actor
	}
	if entry.Note != "" {
		fields["note"] = entry.Note
	}
	l.logger.WithFields(fields).Info("job audit")
}

// MemoryAuditLog captures audit entries for test assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries in order.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]AuditEntry(nil), l.entries...)
}
