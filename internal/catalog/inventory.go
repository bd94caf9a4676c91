package catalog

// FileState is the reconciliation baseline for one file: the fields the
// reconciler needs to classify a path, read in a single snapshot.
type FileState struct {
	Mtime   int64
	Deleted bool
}

// FileRecord is the full persisted state of one file within a tree.
type FileRecord struct {
	RelPath  string
	Mtime    int64
	Checksum string // empty until lazily computed
	Deleted  bool
}

// TreeType is a registered tree classification (reference data).
type TreeType struct {
	Name        string
	Description string
}

// Store is the persistence contract for the tree registry, the file
// inventory and the append-only event log. All inventory operations are
// scoped to a tree ID. Implementations own the FileRecord and Event rows;
// the reconciler only reads snapshots and issues writes through this
// interface.
type Store interface {
	// Tree type registry

	// RegisterTreeType registers a tree classification. Registering an
	// existing name is a no-op.
	RegisterTreeType(name, description string) error

	// UnregisterTreeType removes a tree classification.
	UnregisterTreeType(name string) error

	// TreeTypes returns all registered classifications, ordered by name.
	TreeTypes() ([]TreeType, error)

	// Tree registry

	// RegisterTree registers a tree and its aliases, returning the tree ID.
	// (source, path) is unique; re-registering an existing tree returns the
	// existing ID and merges any new aliases.
	RegisterTree(tree *Tree) (string, error)

	// UnregisterTree removes a tree and cascades to all of its file
	// records, events and aliases.
	UnregisterTree(tree *Tree) error

	// FindTree returns the tree registered under (source, path), also
	// matching path against registered aliases. Returns nil when absent.
	FindTree(source, path string) (*Tree, error)

	// Trees returns all registered trees.
	Trees() ([]*Tree, error)

	// TreesByType returns registered trees with the given type tag.
	TreesByType(treeType string) ([]*Tree, error)

	// Inventory

	// Snapshot returns the currently known state of every file in the
	// tree, keyed by relative path, from a single read transaction.
	Snapshot(treeID string) (map[string]FileState, error)

	// Records returns the full file records for a tree.
	Records(treeID string) ([]FileRecord, error)

	// FindRecord returns the record for one relative path, or nil when the
	// file is not in the inventory.
	FindRecord(treeID, relPath string) (*FileRecord, error)

	// UpsertMtime creates the record if absent (deleted=false) or updates
	// mtime on an existing record.
	UpsertMtime(treeID, relPath string, mtime int64) error

	// SetDeleted flips the soft-delete flag. Idempotent.
	SetDeleted(treeID, relPath string, deleted bool) error

	// SetChecksum stores a computed checksum. Returns ErrUnknownFile when
	// the record does not exist.
	SetChecksum(treeID, relPath, checksum string) error

	// AppendEvent inserts an event log row. Returns ErrUnknownFile when no
	// file record exists for the path.
	AppendEvent(treeID, relPath string, kind EventKind, recordedAt int64) error

	// PurgeDeleted hard-deletes all records flagged deleted, cascading to
	// their events. Returns the number of purged records. Irreversible.
	PurgeDeleted(treeID string) (int64, error)

	// QueryEvents returns events ordered by recording time ascending.
	// since, when non-nil, must be a non-negative unix timestamp;
	// otherwise ErrInvalidArgument is returned.
	QueryEvents(treeID string, since *int64) ([]Event, error)

	// Close releases the underlying storage handle.
	Close() error
}

// CodecMatcher resolves a file path to a registered codec name. It is
// consulted outside the reconciliation hot path only.
type CodecMatcher interface {
	// Match returns the codec name for a path's extension, or "" when no
	// codec claims it.
	Match(path string) (string, error)
}
