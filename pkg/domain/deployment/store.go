package deployment

import (
	"errors"
	"fmt"

	"github.com/skylift-dev/skylift/pkg/domain/types"
)

// ErrNotFound is returned when a deployment id does not exist in history.
var ErrNotFound = errors.New("deployment not found")

// ErrStoreCorrupt is returned when the history store detects a record that
// violates its invariants on read. Corruption is surfaced to the user and
// never silently repaired.
var ErrStoreCorrupt = errors.New("deployment history corrupted")

// Store is the append-only log of deployment records.
//
// Append assigns a strictly-increasing id and publishes the record
// atomically: readers see either the old complete log or the new complete
// log, never a half-written record. Records are never mutated or removed.
type Store interface {
	// Append persists the record, assigning its ID. The assigned ID is
	// strictly greater than any previously stored id.
	Append(record *Record) error

	// List returns every record in creation order, oldest first.
	List() ([]*Record, error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(id types.DeploymentID) (*Record, error)

	// Latest returns the most recent record, or ErrNotFound when the
	// history is empty.
	Latest() (*Record, error)

	// LatestBefore returns the most recent record with an id strictly
	// less than the given id, or ErrNotFound.
	LatestBefore(id types.DeploymentID) (*Record, error)
}

// CorruptionError wraps ErrStoreCorrupt with detail about what invariant
// the stored data violated.
type CorruptionError struct {
	ID     types.DeploymentID
	Detail string
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("deployment history corrupted: %s", e.Detail)
	}
	return fmt.Sprintf("deployment history corrupted at %s: %s", e.ID, e.Detail)
}

// Unwrap makes errors.Is(err, ErrStoreCorrupt) work.
func (e *CorruptionError) Unwrap() error {
	return ErrStoreCorrupt
}
