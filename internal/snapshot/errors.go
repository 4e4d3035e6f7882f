package snapshot

import "errors"

var (
	// ErrNotFound is returned when a snapshot id is not in the ledger.
	ErrNotFound = errors.New("configuration not found")

	// ErrMissingSnapshotDir is returned when the ledger lists a snapshot
	// whose directory is gone.
	ErrMissingSnapshotDir = errors.New("configuration directory not found")

	// ErrInvalidID is returned when a ledger id is not a single path
	// element under the snapshot root, e.g. a hand-edited "..".
	ErrInvalidID = errors.New("invalid configuration id")

	// ErrLedgerCorrupt is returned when the ledger file exists but is not
	// valid JSON.
	ErrLedgerCorrupt = errors.New("configuration ledger is corrupt")
)
