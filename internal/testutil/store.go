// Package testutil provides shared fixtures for catalog tests: an in-memory
// inventory store with the schema and seed data applied, and a steppable
// event clock.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"testing"

	"songtree/internal/catalog"
	"songtree/internal/database"
)

// treeIDs hands out "tree-1", "tree-2", ... so tests can register trees
// without depending on UUID output.
type treeIDs struct {
	mu sync.Mutex
	n  int
}

func (g *treeIDs) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("tree-%d", g.n)
}

// NewTestStore creates an in-memory SQLite store with the schema applied
// and the default tree types registered. The store is closed automatically
// when the test completes.
func NewTestStore(t *testing.T) *database.SQLiteStore {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	store := database.NewSQLiteStoreFromDB(sqlDB, &treeIDs{}, ":memory:")

	for name, description := range catalog.DefaultTreeTypes {
		if err := store.RegisterTreeType(name, description); err != nil {
			store.Close()
			t.Fatalf("failed to register tree type %s: %v", name, err)
		}
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

// Checksum returns the digest the inventory stores for a file with the
// given content.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
