package catalog

import "errors"

var (
	// ErrNotInTree is returned when a path does not resolve inside a
	// tree's canonical root.
	ErrNotInTree = errors.New("path is not inside tree")

	// ErrUnknownFile is returned by store operations that require an
	// existing file record. Hitting it from AppendEvent indicates a caller
	// bug: events must always follow a successful UpsertMtime.
	ErrUnknownFile = errors.New("file not in inventory")

	// ErrConflict is returned on a storage-level integrity violation.
	// It should not occur under correct single-writer use.
	ErrConflict = errors.New("storage conflict")

	// ErrInvalidArgument is returned on malformed input, such as a
	// negative event query timestamp.
	ErrInvalidArgument = errors.New("invalid argument")
)
