package catalog_test

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"songtree/internal/catalog"
	"songtree/internal/database"
	treefs "songtree/internal/fs"
	"songtree/internal/testutil"
)

type reconcilerEnv struct {
	store *database.SQLiteStore
	clock *testutil.EventClock
	rec   *catalog.Reconciler
	tree  *catalog.Tree
}

// newReconcilerEnv creates an in-memory store, a registered tree rooted in a
// fresh temp directory, and a reconciler wired with the real walker and
// checksummer.
func newReconcilerEnv(t *testing.T) *reconcilerEnv {
	t.Helper()

	store := testutil.NewTestStore(t)
	clock := testutil.NewEventClock()
	rec := catalog.NewReconciler(store, treefs.NewTreeWalker(nil, catalog.NewNopLogger()), treefs.NewSHA256Checksummer(), catalog.NewNopLogger(), clock)

	tree, err := catalog.NewTree(t.TempDir(), "Songs")
	if err != nil {
		t.Fatalf("NewTree() failed: %v", err)
	}
	id, err := store.RegisterTree(tree)
	if err != nil {
		t.Fatalf("RegisterTree() failed: %v", err)
	}
	tree.ID = id

	return &reconcilerEnv{store: store, clock: clock, rec: rec, tree: tree}
}

// writeFile creates relPath under the tree root with the given content and a
// deterministic mtime.
func (e *reconcilerEnv) writeFile(t *testing.T, relPath, content string, mtime time.Time) {
	t.Helper()
	abs := filepath.Join(e.tree.Path, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.Chtimes(abs, mtime, mtime); err != nil {
		t.Fatalf("Chtimes() failed: %v", err)
	}
}

func (e *reconcilerEnv) removeFile(t *testing.T, relPath string) {
	t.Helper()
	if err := os.Remove(filepath.Join(e.tree.Path, relPath)); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
}

func (e *reconcilerEnv) reconcile(t *testing.T, checksums bool) *catalog.Changeset {
	t.Helper()
	changes, err := e.rec.Reconcile(e.tree, checksums)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	return changes
}

func (e *reconcilerEnv) events(t *testing.T) []catalog.Event {
	t.Helper()
	events, err := e.store.QueryEvents(e.tree.ID, nil)
	if err != nil {
		t.Fatalf("QueryEvents() failed: %v", err)
	}
	return events
}

func sorted(paths []string) []string {
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}

func assertPaths(t *testing.T, label string, got, want []string) {
	t.Helper()
	got = sorted(got)
	if len(got) != len(want) {
		t.Fatalf("%s = %v, want %v", label, got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("%s = %v, want %v", label, got, want)
		}
	}
}

func TestReconcile_DetectsAddedFiles(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.writeFile(t, filepath.Join("b", "c.flac"), "ccc", base)

	changes := e.reconcile(t, false)

	assertPaths(t, "Added", changes.Added, []string{"a.mp3", filepath.Join("b", "c.flac")})
	if len(changes.Modified) != 0 || len(changes.Deleted) != 0 {
		t.Errorf("expected only adds, got modified=%v deleted=%v", changes.Modified, changes.Deleted)
	}

	snapshot, err := e.store.Snapshot(e.tree.ID)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	state, ok := snapshot["a.mp3"]
	if !ok {
		t.Fatal("a.mp3 missing from snapshot")
	}
	if state.Mtime != base.Unix() {
		t.Errorf("a.mp3 mtime = %d, want %d", state.Mtime, base.Unix())
	}
	if state.Deleted {
		t.Error("a.mp3 should not be flagged deleted")
	}

	for _, ev := range e.events(t) {
		if ev.Kind != catalog.EventAdded {
			t.Errorf("event for %s has kind %s, want added", ev.Path, ev.Kind)
		}
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.writeFile(t, filepath.Join("b", "c.flac"), "ccc", base)

	e.reconcile(t, false)
	before := len(e.events(t))

	changes := e.reconcile(t, false)
	if !changes.Empty() {
		t.Errorf("second pass reported changes: added=%v modified=%v deleted=%v",
			changes.Added, changes.Modified, changes.Deleted)
	}
	if after := len(e.events(t)); after != before {
		t.Errorf("second pass appended events: %d -> %d", before, after)
	}
}

func TestReconcile_DetectsModification(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.reconcile(t, false)

	touched := base.Add(time.Hour)
	e.writeFile(t, "a.mp3", "bbb", touched)
	e.clock.Advance(time.Minute)

	changes := e.reconcile(t, false)
	assertPaths(t, "Modified", changes.Modified, []string{"a.mp3"})
	if len(changes.Added) != 0 || len(changes.Deleted) != 0 {
		t.Errorf("expected only modification, got added=%v deleted=%v", changes.Added, changes.Deleted)
	}

	rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
	if err != nil {
		t.Fatalf("FindRecord() failed: %v", err)
	}
	if rec.Mtime != touched.Unix() {
		t.Errorf("stored mtime = %d, want %d", rec.Mtime, touched.Unix())
	}

	events := e.events(t)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[1].Kind != catalog.EventModified {
		t.Errorf("last event kind = %s, want modified", events[1].Kind)
	}
}

func TestReconcile_DetectsDeletion(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.writeFile(t, "b.mp3", "bbb", base)
	e.reconcile(t, false)

	e.removeFile(t, "a.mp3")
	e.clock.Advance(time.Minute)

	changes := e.reconcile(t, false)
	assertPaths(t, "Deleted", changes.Deleted, []string{"a.mp3"})

	rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
	if err != nil {
		t.Fatalf("FindRecord() failed: %v", err)
	}
	if rec == nil {
		t.Fatal("record should survive soft deletion")
	}
	if !rec.Deleted {
		t.Error("record should be flagged deleted")
	}

	// Deletion is reported once, at the transition.
	changes = e.reconcile(t, false)
	if !changes.Empty() {
		t.Errorf("already-deleted file reported again: %v", changes.Deleted)
	}
}

func TestReconcile_RestoreAfterDeletion(t *testing.T) {
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	t.Run("same mtime restores silently", func(t *testing.T) {
		e := newReconcilerEnv(t)
		e.writeFile(t, "a.mp3", "aaa", base)
		e.reconcile(t, false)
		e.removeFile(t, "a.mp3")
		e.reconcile(t, false)

		e.writeFile(t, "a.mp3", "aaa", base)
		changes := e.reconcile(t, false)
		if !changes.Empty() {
			t.Errorf("restore with unchanged mtime should be silent, got added=%v modified=%v",
				changes.Added, changes.Modified)
		}

		rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
		if err != nil {
			t.Fatalf("FindRecord() failed: %v", err)
		}
		if rec.Deleted {
			t.Error("record should no longer be flagged deleted")
		}
	})

	t.Run("changed mtime restores as modified", func(t *testing.T) {
		e := newReconcilerEnv(t)
		e.writeFile(t, "a.mp3", "aaa", base)
		e.reconcile(t, false)
		e.removeFile(t, "a.mp3")
		e.reconcile(t, false)

		e.writeFile(t, "a.mp3", "new content", base.Add(time.Hour))
		changes := e.reconcile(t, false)
		assertPaths(t, "Modified", changes.Modified, []string{"a.mp3"})
		if len(changes.Added) != 0 {
			t.Errorf("restored file must not be reported as added: %v", changes.Added)
		}

		rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
		if err != nil {
			t.Fatalf("FindRecord() failed: %v", err)
		}
		if rec.Deleted {
			t.Error("record should no longer be flagged deleted")
		}
	})
}

func TestReconcile_Checksums(t *testing.T) {
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	t.Run("computed eagerly when requested", func(t *testing.T) {
		e := newReconcilerEnv(t)
		e.writeFile(t, "a.mp3", "hello", base)
		e.reconcile(t, true)

		rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
		if err != nil {
			t.Fatalf("FindRecord() failed: %v", err)
		}
		if want := testutil.Checksum("hello"); rec.Checksum != want {
			t.Errorf("checksum = %q, want %q", rec.Checksum, want)
		}
	})

	t.Run("left empty by default", func(t *testing.T) {
		e := newReconcilerEnv(t)
		e.writeFile(t, "a.mp3", "hello", base)
		e.reconcile(t, false)

		rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
		if err != nil {
			t.Fatalf("FindRecord() failed: %v", err)
		}
		if rec.Checksum != "" {
			t.Errorf("checksum = %q, want empty", rec.Checksum)
		}
	})

	t.Run("recomputed on restore even with unchanged mtime", func(t *testing.T) {
		e := newReconcilerEnv(t)
		e.writeFile(t, "a.mp3", "original", base)
		e.reconcile(t, true)
		e.removeFile(t, "a.mp3")
		e.reconcile(t, true)

		// Same mtime, different content: the silent restore path still
		// refreshes the checksum.
		e.writeFile(t, "a.mp3", "swapped", base)
		changes := e.reconcile(t, true)
		if !changes.Empty() {
			t.Errorf("restore with unchanged mtime should be silent, got %+v", changes)
		}

		rec, err := e.store.FindRecord(e.tree.ID, "a.mp3")
		if err != nil {
			t.Fatalf("FindRecord() failed: %v", err)
		}
		if want := testutil.Checksum("swapped"); rec.Checksum != want {
			t.Errorf("checksum = %q, want %q", rec.Checksum, want)
		}
	})
}

func TestReconcile_IgnoredFilesNeverSurface(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.writeFile(t, "Icon\r", "icon", base)
	e.writeFile(t, filepath.Join("album.itlp", "inside.mp3"), "x", base)

	for pass := 0; pass < 2; pass++ {
		changes := e.reconcile(t, false)
		for _, list := range [][]string{changes.Added, changes.Modified, changes.Deleted} {
			for _, path := range list {
				if path != "a.mp3" {
					t.Errorf("pass %d surfaced ignored path %q", pass, path)
				}
			}
		}
	}

	snapshot, err := e.store.Snapshot(e.tree.ID)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if len(snapshot) != 1 {
		t.Errorf("snapshot = %v, want only a.mp3", snapshot)
	}
}

func TestReconcile_RemovedRootIsNoOp(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.writeFile(t, filepath.Join("b", "c.flac"), "ccc", base)
	e.reconcile(t, false)

	before, err := e.store.Snapshot(e.tree.ID)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}

	// An unmounted or deleted root must not read as a mass deletion.
	if err := os.RemoveAll(e.tree.Path); err != nil {
		t.Fatalf("RemoveAll() failed: %v", err)
	}

	changes := e.reconcile(t, false)
	if !changes.Empty() {
		t.Errorf("removed root reported changes: %+v", changes)
	}

	after, err := e.store.Snapshot(e.tree.ID)
	if err != nil {
		t.Fatalf("Snapshot() failed: %v", err)
	}
	if len(after) != len(before) {
		t.Fatalf("snapshot changed: %v -> %v", before, after)
	}
	for path, state := range before {
		if after[path] != state {
			t.Errorf("state for %s changed: %+v -> %+v", path, state, after[path])
		}
	}
}

func TestReconcile_UnavailableTreeIsNoOp(t *testing.T) {
	store := testutil.NewTestStore(t)
	rec := catalog.NewReconciler(store, treefs.NewTreeWalker(nil, catalog.NewNopLogger()), treefs.NewSHA256Checksummer(), catalog.NewNopLogger(), testutil.NewEventClock())

	tree, err := catalog.NewTree(filepath.Join(t.TempDir(), "unmounted"), "Songs")
	if err != nil {
		t.Fatalf("NewTree() failed: %v", err)
	}
	id, err := store.RegisterTree(tree)
	if err != nil {
		t.Fatalf("RegisterTree() failed: %v", err)
	}
	tree.ID = id

	changes, err := rec.Reconcile(tree, false)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if !changes.Empty() {
		t.Errorf("unavailable tree reported changes: %+v", changes)
	}

	events, err := store.QueryEvents(tree.ID, nil)
	if err != nil {
		t.Fatalf("QueryEvents() failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("unavailable tree appended %d events, want 0", len(events))
	}
}

func TestReconcile_SkipsForeignSymlinks(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)

	outside := filepath.Join(t.TempDir(), "outside.mp3")
	if err := os.WriteFile(outside, []byte("xxx"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := os.Symlink(outside, filepath.Join(e.tree.Path, "link.mp3")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	changes := e.reconcile(t, false)
	assertPaths(t, "Added", changes.Added, []string{"a.mp3"})
}

func TestReconcile_SkipsDanglingSymlinks(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)

	// The link target never exists, so the stat between the walk and the
	// inventory update fails. The path must not count as any kind of change.
	if err := os.Symlink(filepath.Join(e.tree.Path, "gone.mp3"), filepath.Join(e.tree.Path, "broken.mp3")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	changes := e.reconcile(t, true)
	assertPaths(t, "Added", changes.Added, []string{"a.mp3"})
	if len(changes.Modified) != 0 || len(changes.Deleted) != 0 {
		t.Errorf("dangling symlink surfaced as a change: %+v", changes)
	}

	rec, err := e.store.FindRecord(e.tree.ID, "broken.mp3")
	if err != nil {
		t.Fatalf("FindRecord() failed: %v", err)
	}
	if rec != nil {
		t.Errorf("dangling symlink gained an inventory record: %+v", rec)
	}

	events := e.events(t)
	if len(events) != 1 || events[0].Path != "a.mp3" {
		t.Errorf("events = %+v, want a single add for a.mp3", events)
	}
}

func TestReconcile_SkipsNonRegularFiles(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)

	// A symlink to a directory inside the tree resolves to the directory
	// itself and must not enter the inventory.
	if err := os.Mkdir(filepath.Join(e.tree.Path, "album"), 0o755); err != nil {
		t.Fatalf("Mkdir() failed: %v", err)
	}
	if err := os.Symlink(filepath.Join(e.tree.Path, "album"), filepath.Join(e.tree.Path, "album-link")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	changes := e.reconcile(t, false)
	assertPaths(t, "Added", changes.Added, []string{"a.mp3"})
}

func TestReconcile_EventTimestampsUseClock(t *testing.T) {
	e := newReconcilerEnv(t)
	base := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	e.writeFile(t, "a.mp3", "aaa", base)
	e.reconcile(t, false)

	e.clock.Advance(10 * time.Minute)
	e.writeFile(t, "a.mp3", "bbb", base.Add(time.Hour))
	e.reconcile(t, false)

	events := e.events(t)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if got, want := events[0].RecordedAt, testutil.NewEventClock().Unix(); got != want {
		t.Errorf("first event recorded at %d, want %d", got, want)
	}
	if events[1].RecordedAt != events[0].RecordedAt+600 {
		t.Errorf("second event recorded at %d, want %d", events[1].RecordedAt, events[0].RecordedAt+600)
	}
}
