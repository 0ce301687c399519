package fetcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"
)

// ErrAuth marks credential or permission failures. These are fatal for the
// current sync cycle; everything else from a fetcher is retryable I/O.
var ErrAuth = errors.New("fetcher: authentication failed")

// RecordKind tells the worker which graph shape a record maps to.
type RecordKind string

const (
	KindMessage RecordKind = "message"
	KindPull    RecordKind = "pull_request"
	KindIssue   RecordKind = "issue"
	KindPage    RecordKind = "page"
)

// Record is one unit of source content: a chat message, a PR, a wiki page.
type Record struct {
	ExternalID  string
	Kind        RecordKind
	Text        string
	AuthorID    string
	AuthorName  string
	URL         string
	Timestamp   time.Time
	ReplyToID   string
	Attachments []Attachment

	// Cursor is the watermark value that, once persisted, means this record
	// (and everything before it in stream order) never has to be re-fetched.
	Cursor string
}

type Attachment struct {
	Name     string
	URL      string
	MimeType string
}

// Page is one page of records from a source, with the cursor to fetch the next.
type Page struct {
	Records    []Record
	NextCursor string
	HasMore    bool
}

// RemoteGroup is a parent group as the source reports it, before it has a row.
type RemoteGroup struct {
	ExternalID string
	Name       string
}

// Fetcher is the per-source capability the sync pipeline is built against.
// ListRecords returns a single page; callers loop on Page.HasMore so an
// entire group is never held in memory.
type Fetcher interface {
	ListParentGroups(ctx context.Context) ([]RemoteGroup, error)
	ListRecords(ctx context.Context, groupExternalID, cursor string) (Page, error)
}

// ContentHash is the idempotency key for a record: re-ingesting unchanged
// content yields the same hash and therefore a no-op upsert everywhere.
func ContentHash(source, externalID, text string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + externalID + "\x00" + text))
	return fmt.Sprintf("%x", sum)
}
