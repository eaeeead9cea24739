package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// Status is the pipeline stage a document has reached.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAcquired   Status = "ACQUIRED"
	StatusClassified Status = "CLASSIFIED"
	StatusExtracted  Status = "EXTRACTED"
	StatusFailed     Status = "FAILED"
)

// next lists the only forward move allowed from each non-terminal status.
// FAILED is reachable from any of them.
var next = map[Status]Status{
	StatusPending:    StatusAcquired,
	StatusAcquired:   StatusClassified,
	StatusClassified: StatusExtracted,
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExtracted || s == StatusFailed
}

// Document represents one PDF moving through the pipeline. It is also the
// record persisted to Firestore, so the tags mirror the collection schema.
type Document struct {
	ID            string    `firestore:"id" json:"id"`
	SourceURI     string    `firestore:"sourceUri,omitempty" json:"sourceUri,omitempty"`
	LocalPath     string    `firestore:"-" json:"-"`
	FileHash      string    `firestore:"fileHash,omitempty" json:"fileHash,omitempty"`
	Ordinal       int       `firestore:"ordinal" json:"ordinal"`
	Status        Status    `firestore:"status,omitempty" json:"status"`
	Verdict       *Verdict  `firestore:"verdict,omitempty" json:"verdict,omitempty"`
	FailureReason Reason    `firestore:"failureReason,omitempty" json:"failureReason,omitempty"`
	ErrorDetails  string    `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	PageCount     int       `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	RunID         string    `firestore:"runId,omitempty" json:"runId,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// NewDocument returns a PENDING document for a source URI or file name.
func NewDocument(source, localPath string, ordinal int) *Document {
	now := time.Now().UTC()
	return &Document{
		ID:        DocumentID(source),
		SourceURI: source,
		LocalPath: localPath,
		Ordinal:   ordinal,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the document to status to. Only the single forward step, or
// FAILED from a non-terminal state, is accepted.
func (d *Document) Advance(to Status) error {
	if d.Status.Terminal() {
		return fmt.Errorf("document %s: cannot move from terminal status %s to %s", d.ID, d.Status, to)
	}
	if to != StatusFailed && next[d.Status] != to {
		return fmt.Errorf("document %s: illegal transition %s -> %s", d.ID, d.Status, to)
	}
	d.Status = to
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail marks the document FAILED with a reason code and detail message.
func (d *Document) Fail(reason Reason, detail string) error {
	if err := d.Advance(StatusFailed); err != nil {
		return err
	}
	d.FailureReason = reason
	d.ErrorDetails = detail
	return nil
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// DocumentID derives a stable identifier from a URL, object URI or path: the
// readable Slug of its last segment followed by the first 8 hex digits of the
// sha256 of the full source. Sources that share a file name, or whose names
// only differ in case or punctuation, get distinct IDs.
func DocumentID(source string) string {
	sum := sha256.Sum256([]byte(source))
	return Slug(source) + "_" + hex.EncodeToString(sum[:4])
}

// Slug is the last path segment of source without its .pdf extension,
// lowercased, with every run of non-alphanumerics collapsed to an underscore.
func Slug(source string) string {
	base := source
	if u, err := url.Parse(source); err == nil && u.Path != "" {
		base = u.Path
	}
	base = strings.ReplaceAll(base, "\\", "/")
	base = path.Base(base)
	if unescaped, err := url.PathUnescape(base); err == nil {
		base = unescaped
	}
	base = strings.TrimSuffix(strings.ToLower(base), ".pdf")

	slug := strings.Trim(nonAlphanumeric.ReplaceAllString(base, "_"), "_")

	const maxLength = 100
	if len(slug) > maxLength {
		slug = strings.Trim(slug[:maxLength], "_")
	}
	if slug == "" {
		slug = "document"
	}
	return slug
}
