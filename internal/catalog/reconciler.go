package catalog

import (
	"errors"
	"fmt"
	"os"
)

// Reconciler compares a tree's live filesystem state against the persisted
// inventory and updates both the inventory and the event log to match. At
// most one reconciliation per tree may be in flight at a time; callers
// serialize externally. Reconciliation of different trees is independent.
type Reconciler struct {
	store       Store
	walker      Walker
	checksummer Checksummer
	logger      Logger
	clock       Clock
}

// NewReconciler creates a Reconciler with the provided dependencies.
func NewReconciler(store Store, walker Walker, checksummer Checksummer, logger Logger, clock Clock) *Reconciler {
	return &Reconciler{
		store:       store,
		walker:      walker,
		checksummer: checksummer,
		logger:      logger,
		clock:       clock,
	}
}

// Reconcile walks the tree, classifies every file as added, modified,
// restored or deleted relative to the inventory snapshot, applies the
// updates and appends events. When computeChecksums is true, checksums for
// changed files are computed during the pass; otherwise they are left for
// lazy computation.
//
// An unavailable tree root is the only silent no-op: it returns an empty
// Changeset without touching the store. Per-file I/O failures are logged
// and skipped for the pass. Storage errors propagate and abort the run;
// per-file mutations committed before the abort remain in place.
func (r *Reconciler) Reconcile(tree *Tree, computeChecksums bool) (*Changeset, error) {
	changes := &Changeset{}

	if !tree.IsAvailable() {
		r.logger.Info("tree not available, skipping update", "tree", tree.String())
		return changes, nil
	}

	baseline, err := r.store.Snapshot(tree.ID)
	if err != nil {
		return nil, fmt.Errorf("reading inventory snapshot: %w", err)
	}

	seen := make(map[string]bool, len(baseline))

	err = r.walker.Walk(tree.Path, func(absPath string) error {
		return r.observe(tree, absPath, baseline, seen, changes, computeChecksums)
	})
	if err != nil {
		return nil, fmt.Errorf("updating tree %s: %w", tree.Path, err)
	}

	// Anything in the baseline that the walk did not encounter is gone
	// from disk. Deletion is reported exactly once, at the transition:
	// records already flagged deleted are not re-reported.
	for relPath, state := range baseline {
		if seen[relPath] || state.Deleted {
			continue
		}
		if err := r.store.SetDeleted(tree.ID, relPath, true); err != nil {
			return nil, fmt.Errorf("marking %s deleted: %w", relPath, err)
		}
		if err := r.store.AppendEvent(tree.ID, relPath, EventDeleted, r.clock.Now().Unix()); err != nil {
			return nil, fmt.Errorf("recording delete event for %s: %w", relPath, err)
		}
		changes.Deleted = append(changes.Deleted, relPath)
	}

	return changes, nil
}

// observe classifies a single walked path against the baseline and applies
// the resulting store mutations. Each file's mutations are their own atomic
// unit; a storage error aborts the whole walk.
func (r *Reconciler) observe(tree *Tree, absPath string, baseline map[string]FileState, seen map[string]bool, changes *Changeset, computeChecksums bool) error {
	relPath, err := tree.RelativePath(absPath)
	if err != nil {
		// A symlink resolving outside the tree root; not this tree's file.
		r.logger.Debug("skipping foreign path", "path", absPath)
		return nil
	}

	info, err := os.Stat(absPath)
	if err != nil {
		// Deletion race between the walk and the stat. Not counted as any
		// kind of change this pass.
		r.logger.Debug("stat failed, skipping", "path", absPath, "error", err)
		return nil
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	mtime := info.ModTime().Unix()

	seen[relPath] = true

	prev, known := baseline[relPath]
	if !known {
		if err := r.store.UpsertMtime(tree.ID, relPath, mtime); err != nil {
			return fmt.Errorf("adding %s: %w", relPath, err)
		}
		if err := r.store.AppendEvent(tree.ID, relPath, EventAdded, r.clock.Now().Unix()); err != nil {
			return fmt.Errorf("recording add event for %s: %w", relPath, err)
		}
		changes.Added = append(changes.Added, relPath)
		r.logger.Debug("added", "path", relPath)
		if computeChecksums {
			if err := r.updateChecksum(tree, relPath, absPath); err != nil {
				return err
			}
		}
		return nil
	}

	// Modification and restoration are independent conditions; both may
	// fire for the same path in one pass.
	modified := prev.Mtime != mtime
	if modified {
		if err := r.store.UpsertMtime(tree.ID, relPath, mtime); err != nil {
			return fmt.Errorf("updating mtime for %s: %w", relPath, err)
		}
		if err := r.store.AppendEvent(tree.ID, relPath, EventModified, r.clock.Now().Unix()); err != nil {
			return fmt.Errorf("recording modify event for %s: %w", relPath, err)
		}
		changes.Modified = append(changes.Modified, relPath)
		r.logger.Debug("modified", "path", relPath)
	}

	if prev.Deleted {
		// The file reappeared. Clearing the flag is silent in the
		// changeset unless the mtime also differed (handled above), but
		// the content may have been swapped while the record was flagged
		// deleted, so the checksum is recomputed unconditionally.
		if err := r.store.SetDeleted(tree.ID, relPath, false); err != nil {
			return fmt.Errorf("restoring %s: %w", relPath, err)
		}
		r.logger.Debug("restored", "path", relPath)
		if computeChecksums {
			if err := r.updateChecksum(tree, relPath, absPath); err != nil {
				return err
			}
		}
	} else if modified && computeChecksums {
		if err := r.updateChecksum(tree, relPath, absPath); err != nil {
			return err
		}
	}

	return nil
}

// updateChecksum computes and stores the checksum for one file. Checksum
// I/O failures never fail the pass: the existing stored checksum is left
// untouched. Storage errors do propagate.
func (r *Reconciler) updateChecksum(tree *Tree, relPath, absPath string) error {
	digest, err := r.checksummer.Sum(absPath)
	if err != nil {
		r.logger.Warn("checksum failed", "path", relPath, "error", err)
		return nil
	}
	if err := r.store.SetChecksum(tree.ID, relPath, digest); err != nil {
		if errors.Is(err, ErrUnknownFile) {
			r.logger.Warn("file not in inventory", "path", relPath)
			return nil
		}
		return fmt.Errorf("storing checksum for %s: %w", relPath, err)
	}
	return nil
}
