// Package ledger records which remote items have already been published.
//
// The ledger is the single source of truth for "already posted": an ordered,
// append-only list of records whose IDs are unique. Two backends exist:
// a local JSON file (the default) and a DynamoDB table for deployments
// without a persistent disk. Both return an empty list when nothing has
// been persisted yet; "not found" is never an error.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDuplicate is returned by Append when the record's ID is already present.
var ErrDuplicate = errors.New("ledger: duplicate id")

// ErrConcurrentRecord is returned by Save when another process recorded the
// same ID first. The record is persisted, but the item was most likely
// published by both.
var ErrConcurrentRecord = errors.New("ledger: id recorded by a concurrent cycle")

// Record is one successfully published item.
type Record struct {
	ID       string    `json:"id" dynamodbav:"-"`
	Name     string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	PostedAt time.Time `json:"postedAt,omitzero" dynamodbav:"postedAt"`
}

// Ledger loads and persists the posted-record list.
type Ledger interface {
	// Load returns the persisted records in posting order, or an empty
	// slice when no state exists yet.
	Load(ctx context.Context) ([]Record, error)

	// Save persists records. Callers pass the full list as returned by
	// Load plus any appended records.
	Save(ctx context.Context, records []Record) error
}

// IDs returns the set of record IDs for O(1) membership checks.
func IDs(records []Record) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		set[r.ID] = struct{}{}
	}
	return set
}

// Contains reports whether id is present in records.
func Contains(records []Record, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}

// Append returns records with rec added at the end. It refuses empty and
// duplicate IDs so the ledger never grows by anything but a new item.
func Append(records []Record, rec Record) ([]Record, error) {
	if rec.ID == "" {
		return records, fmt.Errorf("ledger: record has empty id")
	}
	if Contains(records, rec.ID) {
		return records, fmt.Errorf("%w: %s", ErrDuplicate, rec.ID)
	}
	out := make([]Record, len(records), len(records)+1)
	copy(out, records)
	return append(out, rec), nil
}
