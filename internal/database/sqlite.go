// Package database implements the catalog's persistence contracts on
// SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"songtree/internal/catalog"
	"songtree/internal/database/migrations"
)

// SQLiteStore implements catalog.Store using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	idgen catalog.IDGenerator
	path  string
}

// NewSQLiteStore opens a SQLite store at path, which can be a file path or
// ":memory:" for an in-memory database. idgen may be nil, in which case
// random UUIDs are used.
func NewSQLiteStore(path string, idgen catalog.IDGenerator) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return NewSQLiteStoreFromDB(db, idgen, path), nil
}

// NewSQLiteStoreFromDB wraps an existing database connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB, idgen catalog.IDGenerator, path string) *SQLiteStore {
	if idgen == nil {
		idgen = catalog.UUIDGenerator{}
	}
	return &SQLiteStore{db: db, idgen: idgen, path: path}
}

// OpenConnection opens and configures a SQLite connection. Foreign key
// enforcement is switched on; soft-delete purge and tree unregistration
// rely on cascading deletes.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single connection keeps the pragma below in effect for every
	// statement, and keeps ":memory:" databases from silently becoming one
	// fresh database per pooled connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return db, nil
}

// storeErr maps SQLite constraint violations to catalog.ErrConflict so
// callers can distinguish integrity violations from other storage failures.
func storeErr(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", catalog.ErrConflict, err)
	}
	return err
}

// splitRelPath splits a tree-relative path into the (directory, filename)
// pair used by the composite file key. Top-level files get an empty
// directory.
func splitRelPath(relPath string) (dir, name string) {
	dir = filepath.Dir(relPath)
	if dir == "." {
		dir = ""
	}
	return dir, filepath.Base(relPath)
}

// joinRelPath is the inverse of splitRelPath.
func joinRelPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name)
}

// Tree type registry

func (s *SQLiteStore) RegisterTreeType(name, description string) error {
	_, err := s.db.Exec(
		`INSERT INTO tree_types (name, description) VALUES (?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		name, description,
	)
	if err != nil {
		return fmt.Errorf("registering tree type %s: %w", name, storeErr(err))
	}
	return nil
}

func (s *SQLiteStore) UnregisterTreeType(name string) error {
	res, err := s.db.Exec(`DELETE FROM tree_types WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("unregistering tree type %s: %w", name, storeErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tree type not registered: %s", name)
	}
	return nil
}

func (s *SQLiteStore) TreeTypes() ([]catalog.TreeType, error) {
	rows, err := s.db.Query(`SELECT name, description FROM tree_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tree types: %w", err)
	}
	defer rows.Close()

	var types []catalog.TreeType
	for rows.Next() {
		var tt catalog.TreeType
		if err := rows.Scan(&tt.Name, &tt.Description); err != nil {
			return nil, fmt.Errorf("scanning tree type: %w", err)
		}
		types = append(types, tt)
	}
	return types, rows.Err()
}

// Tree registry

func (s *SQLiteStore) RegisterTree(tree *catalog.Tree) (string, error) {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow(`SELECT COUNT(*) FROM tree_types WHERE name = ?`, tree.Type).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("checking tree type: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("tree type not registered: %s", tree.Type)
	}

	var id string
	err = tx.QueryRow(
		`SELECT id FROM trees WHERE source = ? AND path = ?`,
		tree.Source, tree.Path,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		id = s.idgen.New()
		_, err = tx.Exec(
			`INSERT INTO trees (id, tree_type, source, path, created_at) VALUES (?, ?, ?, ?, ?)`,
			id, tree.Type, tree.Source, tree.Path, time.Now().Unix(),
		)
		if err != nil {
			return "", fmt.Errorf("inserting tree: %w", storeErr(err))
		}
	} else if err != nil {
		return "", fmt.Errorf("finding tree: %w", err)
	}

	for _, alias := range tree.Aliases {
		_, err = tx.Exec(
			`INSERT INTO tree_aliases (id, tree_id, alias) VALUES (?, ?, ?)
			 ON CONFLICT (alias) DO NOTHING`,
			s.idgen.New(), id, alias,
		)
		if err != nil {
			return "", fmt.Errorf("inserting alias %s: %w", alias, storeErr(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) UnregisterTree(tree *catalog.Tree) error {
	res, err := s.db.Exec(
		`DELETE FROM trees WHERE source = ? AND path = ?`,
		tree.Source, tree.Path,
	)
	if err != nil {
		return fmt.Errorf("deleting tree: %w", storeErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("tree not registered: %s", tree.Path)
	}
	return nil
}

func (s *SQLiteStore) FindTree(source, path string) (*catalog.Tree, error) {
	tree, err := s.scanTree(s.db.QueryRow(
		`SELECT id, tree_type, source, path FROM trees WHERE source = ? AND path = ?`,
		source, path,
	))
	if err != nil {
		return nil, err
	}
	if tree == nil {
		// Alternate routes to a root are stored as aliases.
		tree, err = s.scanTree(s.db.QueryRow(
			`SELECT t.id, t.tree_type, t.source, t.path
			 FROM trees t JOIN tree_aliases a ON a.tree_id = t.id
			 WHERE t.source = ? AND a.alias = ?`,
			source, path,
		))
		if err != nil || tree == nil {
			return nil, err
		}
	}

	if err := s.loadAliases(tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func (s *SQLiteStore) Trees() ([]*catalog.Tree, error) {
	return s.queryTrees(`SELECT id, tree_type, source, path FROM trees ORDER BY path`)
}

func (s *SQLiteStore) TreesByType(treeType string) ([]*catalog.Tree, error) {
	return s.queryTrees(
		`SELECT id, tree_type, source, path FROM trees WHERE tree_type = ? ORDER BY path`,
		treeType,
	)
}

func (s *SQLiteStore) queryTrees(query string, args ...any) ([]*catalog.Tree, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing trees: %w", err)
	}
	defer rows.Close()

	var trees []*catalog.Tree
	for rows.Next() {
		var t catalog.Tree
		if err := rows.Scan(&t.ID, &t.Type, &t.Source, &t.Path); err != nil {
			return nil, fmt.Errorf("scanning tree: %w", err)
		}
		trees = append(trees, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, t := range trees {
		if err := s.loadAliases(t); err != nil {
			return nil, err
		}
	}
	return trees, nil
}

func (s *SQLiteStore) scanTree(row *sql.Row) (*catalog.Tree, error) {
	var t catalog.Tree
	err := row.Scan(&t.ID, &t.Type, &t.Source, &t.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tree: %w", err)
	}
	return &t, nil
}

func (s *SQLiteStore) loadAliases(tree *catalog.Tree) error {
	rows, err := s.db.Query(`SELECT alias FROM tree_aliases WHERE tree_id = ? ORDER BY alias`, tree.ID)
	if err != nil {
		return fmt.Errorf("loading aliases: %w", err)
	}
	defer rows.Close()

	tree.Aliases = nil
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return fmt.Errorf("scanning alias: %w", err)
		}
		tree.Aliases = append(tree.Aliases, alias)
	}
	return rows.Err()
}

// Inventory

func (s *SQLiteStore) Snapshot(treeID string) (map[string]catalog.FileState, error) {
	// A single statement gives a consistent point-in-time view under
	// SQLite's statement-level isolation.
	rows, err := s.db.Query(
		`SELECT directory, filename, mtime, deleted FROM files WHERE tree_id = ?`,
		treeID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[string]catalog.FileState)
	for rows.Next() {
		var dir, name string
		var state catalog.FileState
		if err := rows.Scan(&dir, &name, &state.Mtime, &state.Deleted); err != nil {
			return nil, fmt.Errorf("scanning file state: %w", err)
		}
		snapshot[joinRelPath(dir, name)] = state
	}
	return snapshot, rows.Err()
}

func (s *SQLiteStore) Records(treeID string) ([]catalog.FileRecord, error) {
	rows, err := s.db.Query(
		`SELECT directory, filename, mtime, checksum, deleted
		 FROM files WHERE tree_id = ? ORDER BY directory, filename`,
		treeID,
	)
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	defer rows.Close()

	var records []catalog.FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) FindRecord(treeID, relPath string) (*catalog.FileRecord, error) {
	dir, name := splitRelPath(relPath)
	rows, err := s.db.Query(
		`SELECT directory, filename, mtime, checksum, deleted
		 FROM files WHERE tree_id = ? AND directory = ? AND filename = ?`,
		treeID, dir, name,
	)
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanRecord(rows)
}

func scanRecord(rows *sql.Rows) (*catalog.FileRecord, error) {
	var dir, name string
	var checksum sql.NullString
	var rec catalog.FileRecord
	if err := rows.Scan(&dir, &name, &rec.Mtime, &checksum, &rec.Deleted); err != nil {
		return nil, fmt.Errorf("scanning record: %w", err)
	}
	rec.RelPath = joinRelPath(dir, name)
	rec.Checksum = checksum.String
	return &rec, nil
}

func (s *SQLiteStore) UpsertMtime(treeID, relPath string, mtime int64) error {
	dir, name := splitRelPath(relPath)
	_, err := s.db.Exec(
		`INSERT INTO files (id, tree_id, directory, filename, mtime, deleted)
		 VALUES (?, ?, ?, ?, ?, 0)
		 ON CONFLICT (tree_id, directory, filename) DO UPDATE SET mtime = excluded.mtime`,
		s.idgen.New(), treeID, dir, name, mtime,
	)
	if err != nil {
		return fmt.Errorf("upserting %s: %w", relPath, storeErr(err))
	}
	return nil
}

func (s *SQLiteStore) SetDeleted(treeID, relPath string, deleted bool) error {
	dir, name := splitRelPath(relPath)
	_, err := s.db.Exec(
		`UPDATE files SET deleted = ? WHERE tree_id = ? AND directory = ? AND filename = ?`,
		deleted, treeID, dir, name,
	)
	if err != nil {
		return fmt.Errorf("setting deleted flag on %s: %w", relPath, storeErr(err))
	}
	return nil
}

func (s *SQLiteStore) SetChecksum(treeID, relPath, checksum string) error {
	dir, name := splitRelPath(relPath)
	res, err := s.db.Exec(
		`UPDATE files SET checksum = ? WHERE tree_id = ? AND directory = ? AND filename = ?`,
		checksum, treeID, dir, name,
	)
	if err != nil {
		return fmt.Errorf("setting checksum on %s: %w", relPath, storeErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownFile, relPath)
	}
	return nil
}

func (s *SQLiteStore) AppendEvent(treeID, relPath string, kind catalog.EventKind, recordedAt int64) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: event kind %d", catalog.ErrInvalidArgument, int(kind))
	}

	dir, name := splitRelPath(relPath)
	var fileID string
	err := s.db.QueryRow(
		`SELECT id FROM files WHERE tree_id = ? AND directory = ? AND filename = ?`,
		treeID, dir, name,
	).Scan(&fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownFile, relPath)
	}
	if err != nil {
		return fmt.Errorf("finding file for event: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO file_events (file_id, event, recorded_at) VALUES (?, ?, ?)`,
		fileID, int(kind), recordedAt,
	)
	if err != nil {
		return fmt.Errorf("appending %s event for %s: %w", kind, relPath, storeErr(err))
	}
	return nil
}

func (s *SQLiteStore) PurgeDeleted(treeID string) (int64, error) {
	// Events cascade through the file_id foreign key.
	res, err := s.db.Exec(`DELETE FROM files WHERE tree_id = ? AND deleted = 1`, treeID)
	if err != nil {
		return 0, fmt.Errorf("purging deleted records: %w", storeErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting purged records: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) QueryEvents(treeID string, since *int64) ([]catalog.Event, error) {
	query := `SELECT f.directory, f.filename, e.event, e.recorded_at
		 FROM file_events e JOIN files f ON f.id = e.file_id
		 WHERE f.tree_id = ?`
	args := []any{treeID}
	if since != nil {
		if *since < 0 {
			return nil, fmt.Errorf("%w: since timestamp %d is negative", catalog.ErrInvalidArgument, *since)
		}
		query += ` AND e.recorded_at >= ?`
		args = append(args, *since)
	}
	query += ` ORDER BY e.recorded_at ASC, e.id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []catalog.Event
	for rows.Next() {
		var dir, name string
		var kind int
		var ev catalog.Event
		if err := rows.Scan(&dir, &name, &kind, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.Path = joinRelPath(dir, name)
		ev.Kind = catalog.EventKind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.Check(s.db)
}

// MigrateUp applies pending schema migrations.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements catalog.Store.
var _ catalog.Store = (*SQLiteStore)(nil)
