package domain

import (
	"strings"

	"github.com/google/uuid"
)

// MaxTags is the maximum number of tags a bookmark may carry.
const MaxTags = 2

// BookmarkRecord is a single tile of the launcher grid.
//
// Records are value objects: every component that hands a record to
// another one hands over a copy (see Clone), so nothing aliases the
// working set owned by the workspace.
type BookmarkRecord struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is assigned at creation and never reused after deletion.
	ID string `json:"id"`

	// ─────────────────────────────
	// Display attributes
	// ─────────────────────────────

	Name    string `json:"name"`
	URL     string `json:"url"`
	Favicon string `json:"favicon,omitempty"`

	// Tags is an ordered set of at most MaxTags short strings.
	Tags []string `json:"tags,omitempty"`

	// Note is optional free text.
	Note string `json:"note,omitempty"`

	// ─────────────────────────────
	// Usage
	// ─────────────────────────────

	// VisitCount never decreases. It is the merge tie-breaker and
	// drives the "most visited" ordering.
	VisitCount int64 `json:"visitCount"`
}

// NewRecord creates a record with a fresh identifier.
func NewRecord(name, url string, tags []string, note string) BookmarkRecord {
	return BookmarkRecord{
		ID:   uuid.NewString(),
		Name: strings.TrimSpace(name),
		URL:  strings.TrimSpace(url),
		Tags: NormalizeTags(tags),
		Note: note,
	}
}

// Clone returns a deep copy of the record.
func (r BookmarkRecord) Clone() BookmarkRecord {
	if r.Tags != nil {
		r.Tags = append([]string(nil), r.Tags...)
	}
	return r
}

// Valid reports whether the record carries the minimum data needed to be
// pushed: non-empty id, name and url.
func (r BookmarkRecord) Valid() bool {
	return strings.TrimSpace(r.ID) != "" &&
		strings.TrimSpace(r.Name) != "" &&
		strings.TrimSpace(r.URL) != ""
}

// NormalizeTags trims, drops empties and duplicates, and keeps the first
// MaxTags entries.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, MaxTags)
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || containsString(out, t) {
			continue
		}
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// CloneRecords deep-copies a collection.
func CloneRecords(records []BookmarkRecord) []BookmarkRecord {
	if records == nil {
		return nil
	}
	out := make([]BookmarkRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// CountValid returns how many records pass Valid.
func CountValid(records []BookmarkRecord) int {
	n := 0
	for _, r := range records {
		if r.Valid() {
			n++
		}
	}
	return n
}

// RecordIDs returns the ids of a collection in order.
func RecordIDs(records []BookmarkRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
