// Package jobs runs imports, exports, backups, and reports as queued
// background work with blob-stored artifacts.
package jobs

import (
	"errors"
	"time"
)

// Kind identifies the work a job performs.
type Kind string

const (
	KindImport Kind = "import"
	KindExport Kind = "export"
	KindBackup Kind = "backup"
	KindReport Kind = "report"
)

// Status describes the lifecycle stage of a job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrQueueFull is returned by Submit when the worker queue is saturated.
var ErrQueueFull = errors.New("job queue full")

// ErrStopped is returned by Submit after the worker has begun shutdown.
var ErrStopped = errors.New("job worker stopped")

// Request submits one job. Parameters are kind-specific; Payload
// carries the source file for imports.
type Request struct {
	Kind        Kind           `json:"kind"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Payload     []byte         `json:"-"`
	RequestedBy string         `json:"requested_by,omitempty"`
}

// Artifact references a blob written by a completed job.
type Artifact struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks a submitted job through its lifecycle.
type Record struct {
	ID          string         `json:"id"`
	Kind        Kind           `json:"kind"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Status      Status         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Counters    map[string]int `json:"counters,omitempty"`
	Artifacts   []Artifact     `json:"artifacts,omitempty"`
	RequestedBy string         `json:"requested_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	dup := r
	dup.Parameters = cloneParameters(r.Parameters)
	if r.Counters != nil {
		dup.Counters = make(map[string]int, len(r.Counters))
		for k, v := range r.Counters {
			dup.Counters[k] = v
		}
	}
	dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		completed := *r.CompletedAt
		dup.CompletedAt = &completed
	}
	return dup
}

func cloneParameters(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Monitor observes job state transitions and per-row import outcomes
// for metrics backends.
type Monitor interface {
	JobTransition(kind Kind, status Status)
	ImportRows(committed, failed, skipped int)
}

type noopMonitor struct{}

func (noopMonitor) JobTransition(Kind, Status) {}

func (noopMonitor) ImportRows(int, int, int) {}
