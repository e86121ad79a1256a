// Package jobs implements the asynchronous graph-query job manager of
// §4.9: a pending/running/completed/failed lifecycle, a bounded worker
// pool, and an LRU+TTL result cache keyed by canonicalised query string.
package jobs

import (
	"time"

	"rserv/internal/query"
	"rserv/internal/sulpher"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is one submitted graph query and its outcome.
type Job struct {
	ID          string
	Query       string
	MaxDepth    int
	Status      Status
	SubmittedAt time.Time
	FinishedAt  *time.Time
	Results     []query.Row
	Err         error

	parsed *sulpher.Query
}

// Stats summarises a job for the status endpoint.
type Stats struct {
	RowCount int `json:"row_count,omitempty"`
}

func (j *Job) stats() Stats {
	return Stats{RowCount: len(j.Results)}
}
