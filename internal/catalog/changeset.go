package catalog

import "fmt"

// EventKind identifies a detected file transition. The numeric values are
// stored in the event log and must stay stable across releases.
type EventKind int

const (
	EventAdded    EventKind = 1
	EventDeleted  EventKind = 2
	EventModified EventKind = 3
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventAdded, EventDeleted, EventModified:
		return true
	}
	return false
}

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventDeleted:
		return "deleted"
	case EventModified:
		return "modified"
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Event is one append-only change log entry, joined with the file's
// relative path.
type Event struct {
	Path       string
	Kind       EventKind
	RecordedAt int64 // unix seconds
}

// Changeset is the in-memory result of one reconciliation pass. Each list
// holds tree-relative paths in detection order within that run; no ordering
// is guaranteed across lists.
type Changeset struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Empty reports whether the pass detected no changes at all.
func (c *Changeset) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}
