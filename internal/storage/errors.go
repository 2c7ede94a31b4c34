package storage

import "errors"

var (
	// ErrDuplicateCrawl is returned when a crawl session is opened with a
	// crawl_time that already exists. This is the sole defense against a
	// scheduler firing twice for the same logical tick, so it is fatal to
	// the cycle and never retried.
	ErrDuplicateCrawl = errors.New("crawl session already exists for this crawl time")

	// ErrIdentityConflict is returned when an item upsert hits an unexpected
	// uniqueness violation. Callers treat it as a transient race: retry once,
	// then skip the item and continue the batch.
	ErrIdentityConflict = errors.New("identity key conflict during upsert")

	// ErrPushMarkWrite is returned when the push record could not be marked
	// after a successful dispatch. Callers must not re-dispatch.
	ErrPushMarkWrite = errors.New("failed to mark push record")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
)
