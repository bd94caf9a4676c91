// Package app is the application layer between the CLI and the catalog
// service: it constructs all dependencies from config and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"os"

	"songtree/internal/catalog"
	"songtree/internal/codec"
	"songtree/internal/config"
	"songtree/internal/database"
	"songtree/internal/fs"
	"songtree/internal/watch"
)

// App wires the store, walker, checksummer and codec registry into a
// catalog service. The storage handle is explicitly constructed here and
// injected; its lifetime is owned by the caller through Close.
type App struct {
	cfg     *config.Config
	store   *database.SQLiteStore
	codecs  *codec.Registry
	service *catalog.Service
	logger  catalog.Logger
	logFile *os.File
}

// New creates a fully wired App from the given config. operation identifies
// the CLI command being run (e.g. "Update", "Events") and tags every log
// line. The caller must call Close when done.
func New(cfg *config.Config, operation string) (*App, error) {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := store.CheckMigrations(); err != nil {
		store.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	slogger, logFile, err := newLogger(cfg.LogDir, operation)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	registry := codec.NewRegistry(store)
	if err := registry.EnsureDefaults(); err != nil {
		logFile.Close()
		store.Close()
		return nil, fmt.Errorf("seeding codec registry: %w", err)
	}

	for name, description := range catalog.DefaultTreeTypes {
		if err := store.RegisterTreeType(name, description); err != nil {
			logFile.Close()
			store.Close()
			return nil, fmt.Errorf("seeding tree types: %w", err)
		}
	}

	walker := fs.NewTreeWalker(cfg.Filesystem.Ignore, logger)
	checksummer := fs.NewSHA256Checksummer()
	service := catalog.NewService(store, walker, checksummer, registry, logger, catalog.RealClock{})

	return &App{
		cfg:     cfg,
		store:   store,
		codecs:  registry,
		service: service,
		logger:  logger,
		logFile: logFile,
	}, nil
}

// InitDatabase creates or migrates the catalog database for the given
// config. Used by `config init` before an App can be constructed.
func InitDatabase(cfg *config.Config) error {
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		return fmt.Errorf("creating database: %w", err)
	}
	defer store.Close()

	if err := store.MigrateUp(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config {
	return a.cfg
}

// Service returns the wired catalog service.
func (a *App) Service() *catalog.Service {
	return a.service
}

// Codecs returns the wired codec registry.
func (a *App) Codecs() *codec.Registry {
	return a.codecs
}

// RequireTree resolves a path to its registered tree.
func (a *App) RequireTree(path string) (*catalog.Tree, error) {
	tree, err := a.service.FindTree(path)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return nil, fmt.Errorf("%w: tree not registered: %s", catalog.ErrNotInTree, path)
	}
	return tree, nil
}

// WatchTree blocks, reconciling the tree whenever its filesystem settles
// after a change, until ctx is canceled.
func (a *App) WatchTree(ctx context.Context, tree *catalog.Tree, computeChecksums bool) error {
	watcher, err := watch.NewTreeWatcher(tree.Path, a.cfg.Debounce(), func() error {
		changes, err := a.service.Reconcile(tree, computeChecksums)
		if err != nil {
			return err
		}
		if !changes.Empty() {
			a.logger.Info("tree updated",
				"tree", tree.String(),
				"added", len(changes.Added),
				"modified", len(changes.Modified),
				"deleted", len(changes.Deleted))
		}
		return nil
	}, a.logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	return watcher.Run(ctx)
}

// Close releases the database and log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
