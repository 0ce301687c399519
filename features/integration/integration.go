package integration

import (
	"time"
)

// Type identifies which external source an integration pulls from.
type Type string

const (
	TypeSlack  Type = "slack"
	TypeGithub Type = "github"
	TypeNotion Type = "notion"
)

// Status is the lifecycle of an integration or one of its parent groups.
// Parent groups move not_started -> queued -> running -> success|failed,
// and back to queued on the next scheduled enqueue.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusQueued     Status = "queued"
	StatusRunning    Status = "running"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
)

type Integration struct {
	ID       string     `json:"id"`
	TenantID string     `json:"tenant_id"`
	Type     Type       `json:"type"`
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"` // cron expression, 5 fields
	IsActive bool       `json:"is_active"`
	Status   Status     `json:"status"`
	LastRun  *time.Time `json:"last_run,omitempty"`

	// Credential is an opaque token handed to the fetcher adapter.
	Credential string `json:"-"`
}

// ParentGroup is a logical content partition of a source: a Slack channel,
// a GitHub repository, a Notion page. Discovered by the scheduler, synced
// by the worker pool, never deleted automatically.
type ParentGroup struct {
	ID            string     `json:"id"`
	IntegrationID string     `json:"integration_id"`
	ExternalID    string     `json:"external_id"`
	Name          string     `json:"name"`
	Status        Status     `json:"status"`
	LastRun       *time.Time `json:"last_run,omitempty"`
	LastError     string     `json:"last_error,omitempty"`

	// Cursor marks how far into the source this group has been ingested.
	// Advanced only past fully committed chunks.
	Cursor string `json:"cursor,omitempty"`

	RecordCount int `json:"record_count"`
	NodeCount   int `json:"node_count"`
	EdgeCount   int `json:"edge_count"`
}

// SyncJob is the queue payload for one parent-group sync. Ephemeral: it
// lives only on the wire; all durable state stays on the ParentGroup row.
type SyncJob struct {
	ParentGroupID  string    `json:"parent_group_id"`
	IntegrationID  string    `json:"integration_id"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
	CursorSnapshot string    `json:"cursor_snapshot,omitempty"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}
