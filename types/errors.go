package types

import "github.com/pkg/errors"

var (
	// ErrBadAttributeIndexing is returned when composite key does not address any live cell.
	ErrBadAttributeIndexing = errors.New("bad attribute indexing")

	// ErrAllocationConflict is returned when cell for the key is already allocated.
	ErrAllocationConflict = errors.New("allocation conflict")

	// ErrTypeMismatch is returned when attribute is accessed using type different from the declared one.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrDuplicateTick is returned when snapshot is taken for tick not greater than the last recorded one.
	ErrDuplicateTick = errors.New("duplicate tick")

	// ErrCapacityExhausted is returned when storage can't grow anymore.
	ErrCapacityExhausted = errors.New("capacity exhausted")

	// ErrInvalidSchema is returned when node or attribute registration is invalid.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrNotSetUp is returned when operation requires finalized schema.
	ErrNotSetUp = errors.New("frame is not set up")

	// ErrSnapshotsDisabled is returned when snapshot is requested but history capacity is zero.
	ErrSnapshotsDisabled = errors.New("snapshots are disabled")

	// ErrCorruptedDump is returned when dump file can't be decoded.
	ErrCorruptedDump = errors.New("corrupted dump")
)
