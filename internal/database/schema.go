package database

// Schema is the full current database schema as a single script. It must
// stay in sync with the migration files; tests apply it directly to
// in-memory databases instead of running the migration machinery.
const Schema = `
CREATE TABLE tree_types (
    name        TEXT PRIMARY KEY,
    description TEXT NOT NULL
);

CREATE TABLE trees (
    id         TEXT PRIMARY KEY,
    tree_type  TEXT NOT NULL REFERENCES tree_types(name) ON DELETE CASCADE,
    source     TEXT NOT NULL,
    path       TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (source, path)
);

CREATE TABLE tree_aliases (
    id      TEXT PRIMARY KEY,
    tree_id TEXT NOT NULL REFERENCES trees(id) ON DELETE CASCADE,
    alias   TEXT NOT NULL UNIQUE
);

CREATE UNIQUE INDEX idx_tree_aliases ON tree_aliases (tree_id, alias);

CREATE TABLE files (
    id        TEXT PRIMARY KEY,
    tree_id   TEXT NOT NULL REFERENCES trees(id) ON DELETE CASCADE,
    directory TEXT NOT NULL,
    filename  TEXT NOT NULL,
    mtime     INTEGER NOT NULL,
    checksum  TEXT,
    deleted   INTEGER NOT NULL DEFAULT 0,
    UNIQUE (tree_id, directory, filename)
);

CREATE INDEX idx_files_tree ON files (tree_id);

CREATE TABLE file_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    file_id     TEXT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
    event       INTEGER NOT NULL,
    recorded_at INTEGER NOT NULL
);

CREATE INDEX idx_file_events_time ON file_events (recorded_at);

CREATE TABLE codecs (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL
);

CREATE TABLE codec_extensions (
    id        TEXT PRIMARY KEY,
    codec_id  TEXT NOT NULL REFERENCES codecs(id) ON DELETE CASCADE,
    extension TEXT NOT NULL UNIQUE
);

CREATE TABLE codec_commands (
    id       TEXT PRIMARY KEY,
    codec_id TEXT NOT NULL REFERENCES codecs(id) ON DELETE CASCADE,
    kind     TEXT NOT NULL CHECK (kind IN ('encoder', 'decoder')),
    priority INTEGER NOT NULL,
    command  TEXT NOT NULL
);

CREATE INDEX idx_codec_commands ON codec_commands (codec_id, kind, priority);
`
