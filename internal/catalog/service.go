package catalog

import (
	"fmt"
	"os"
	"path/filepath"
)

// Service is the orchestration layer that coordinates the store, walker and
// checksummer to perform the high-level catalog operations needed by the
// CLI and sync tools.
type Service struct {
	store       Store
	walker      Walker
	checksummer Checksummer
	codecs      CodecMatcher
	logger      Logger
	clock       Clock
	reconciler  *Reconciler
}

// NewService creates a Service with the provided dependencies. codecs may
// be nil; Describe then reports every file's codec as unknown.
func NewService(store Store, walker Walker, checksummer Checksummer, codecs CodecMatcher, logger Logger, clock Clock) *Service {
	return &Service{
		store:       store,
		walker:      walker,
		checksummer: checksummer,
		codecs:      codecs,
		logger:      logger,
		clock:       clock,
		reconciler:  NewReconciler(store, walker, checksummer, logger, clock),
	}
}

// RegisterTree registers a tree for cataloging. The tree's type must be a
// registered tree type. Registering an already registered tree is a no-op
// beyond merging new aliases.
func (s *Service) RegisterTree(tree *Tree) error {
	id, err := s.store.RegisterTree(tree)
	if err != nil {
		return fmt.Errorf("registering tree: %w", err)
	}
	tree.ID = id
	s.logger.Info("tree registered", "tree", tree.String())
	return nil
}

// UnregisterTree removes a tree and all of its file records and events.
func (s *Service) UnregisterTree(tree *Tree) error {
	if err := s.store.UnregisterTree(tree); err != nil {
		return fmt.Errorf("unregistering tree: %w", err)
	}
	s.logger.Info("tree unregistered", "tree", tree.String())
	return nil
}

// FindTree looks up a registered tree by path, resolving the path to its
// canonical form and also matching registered aliases. Returns nil when the
// path is not registered.
func (s *Service) FindTree(path string) (*Tree, error) {
	tree, err := NewTree(path, "")
	if err != nil {
		return nil, err
	}
	found, err := s.store.FindTree(DefaultSource, tree.Path)
	if err != nil {
		return nil, fmt.Errorf("finding tree: %w", err)
	}
	return found, nil
}

// Trees returns all registered trees.
func (s *Service) Trees() ([]*Tree, error) {
	return s.store.Trees()
}

// TreesByType returns registered trees with the given type tag.
func (s *Service) TreesByType(treeType string) ([]*Tree, error) {
	return s.store.TreesByType(treeType)
}

// Reconcile runs one reconciliation pass over the tree. This is the sole
// entry point through which CLIs and sync tools update the inventory.
func (s *Service) Reconcile(tree *Tree, computeChecksums bool) (*Changeset, error) {
	return s.reconciler.Reconcile(tree, computeChecksums)
}

// Events returns the tree's change events ordered by recording time. since,
// when non-nil, filters out events recorded before the given unix timestamp
// and must be non-negative.
func (s *Service) Events(tree *Tree, since *int64) ([]Event, error) {
	return s.store.QueryEvents(tree.ID, since)
}

// Cleanup purges all records flagged deleted, along with their event
// history. Irreversible; never invoked implicitly by reconciliation.
func (s *Service) Cleanup(tree *Tree) (int64, error) {
	purged, err := s.store.PurgeDeleted(tree.ID)
	if err != nil {
		return 0, fmt.Errorf("purging deleted records: %w", err)
	}
	s.logger.Info("cleanup complete", "tree", tree.String(), "purged", purged)
	return purged, nil
}

// UpdateChecksums backfills content checksums for the tree's non-deleted
// records. A record is skipped when it already has a checksum and its
// stored mtime still matches the file on disk, unless force is true.
// Returns the number of checksums written.
func (s *Service) UpdateChecksums(tree *Tree, force bool) (int, error) {
	records, err := s.store.Records(tree.ID)
	if err != nil {
		return 0, fmt.Errorf("reading inventory: %w", err)
	}

	count := 0
	for _, rec := range records {
		if rec.Deleted {
			continue
		}
		absPath := filepath.Join(tree.Path, rec.RelPath)
		info, err := os.Stat(absPath)
		if err != nil {
			s.logger.Debug("not updating checksum, file missing", "path", rec.RelPath)
			continue
		}
		if !force && rec.Checksum != "" && rec.Mtime == info.ModTime().Unix() {
			continue
		}
		digest, err := s.checksummer.Sum(absPath)
		if err != nil {
			s.logger.Warn("checksum failed", "path", rec.RelPath, "error", err)
			continue
		}
		if err := s.store.SetChecksum(tree.ID, rec.RelPath, digest); err != nil {
			return count, fmt.Errorf("storing checksum for %s: %w", rec.RelPath, err)
		}
		count++
	}
	return count, nil
}

// FileInfo describes one file as known to the catalog.
type FileInfo struct {
	Tree    *Tree
	RelPath string
	Record  *FileRecord // nil when the file is not in the inventory
	Codec   string      // "" when no codec claims the extension
}

// Describe resolves an absolute path to its containing tree and reports the
// stored record and matched codec. Returns ErrNotInTree when no registered
// tree contains the path.
func (s *Service) Describe(absPath string) (*FileInfo, error) {
	trees, err := s.store.Trees()
	if err != nil {
		return nil, fmt.Errorf("listing trees: %w", err)
	}

	for _, tree := range trees {
		relPath, err := tree.RelativePath(absPath)
		if err != nil {
			continue
		}

		info := &FileInfo{Tree: tree, RelPath: relPath}

		rec, err := s.store.FindRecord(tree.ID, relPath)
		if err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		info.Record = rec

		if s.codecs != nil {
			codec, err := s.codecs.Match(absPath)
			if err != nil {
				return nil, fmt.Errorf("matching codec: %w", err)
			}
			info.Codec = codec
		}
		return info, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotInTree, absPath)
}
