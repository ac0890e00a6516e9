package sqlite

const schema = `
-- Diagrams table
CREATE TABLE IF NOT EXISTS diagrams (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL CHECK(length(name) >= 1 AND length(name) <= 500),
    project TEXT NOT NULL DEFAULT '' CHECK(length(project) <= 200),
    spec TEXT NOT NULL,
    thumbnail_url TEXT,
    version INTEGER NOT NULL DEFAULT 1 CHECK(version >= 1),
    owner_id TEXT,
    is_public INTEGER NOT NULL DEFAULT 0,
    shares TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_diagrams_project ON diagrams(project);
CREATE INDEX IF NOT EXISTS idx_diagrams_updated_at ON diagrams(updated_at);
CREATE INDEX IF NOT EXISTS idx_diagrams_created_at ON diagrams(created_at);
CREATE INDEX IF NOT EXISTS idx_diagrams_name_nocase ON diagrams(name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_diagrams_project_updated ON diagrams(project, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_diagrams_owner ON diagrams(owner_id);
CREATE INDEX IF NOT EXISTS idx_diagrams_owner_updated ON diagrams(owner_id, updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_diagrams_spec_type ON diagrams(json_extract(spec, '$.type'));

-- Version history table
CREATE TABLE IF NOT EXISTS diagram_versions (
    id TEXT PRIMARY KEY,
    diagram_id TEXT NOT NULL,
    version INTEGER NOT NULL CHECK(version >= 1),
    spec TEXT NOT NULL,
    message TEXT CHECK(message IS NULL OR length(message) <= 500),
    created_at TEXT NOT NULL,
    UNIQUE(diagram_id, version),
    FOREIGN KEY (diagram_id) REFERENCES diagrams(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_versions_diagram_desc ON diagram_versions(diagram_id, version DESC);

-- Agent runs table (deleted transactionally with their diagram)
CREATE TABLE IF NOT EXISTS agent_runs (
    id TEXT PRIMARY KEY,
    diagram_id TEXT NOT NULL,
    prompt TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    FOREIGN KEY (diagram_id) REFERENCES diagrams(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_agent_runs_diagram ON agent_runs(diagram_id);

-- Trigram full-text index over diagram names for substring search.
-- External-content table kept in sync by the triggers below.
CREATE VIRTUAL TABLE IF NOT EXISTS diagrams_fts USING fts5(
    id UNINDEXED,
    name,
    project,
    content='diagrams',
    content_rowid='rowid',
    tokenize='trigram'
);

CREATE TRIGGER IF NOT EXISTS diagrams_fts_insert AFTER INSERT ON diagrams BEGIN
    INSERT INTO diagrams_fts(rowid, id, name, project)
    VALUES (new.rowid, new.id, new.name, new.project);
END;

CREATE TRIGGER IF NOT EXISTS diagrams_fts_delete AFTER DELETE ON diagrams BEGIN
    INSERT INTO diagrams_fts(diagrams_fts, rowid, id, name, project)
    VALUES ('delete', old.rowid, old.id, old.name, old.project);
END;

CREATE TRIGGER IF NOT EXISTS diagrams_fts_update AFTER UPDATE OF id, name, project ON diagrams BEGIN
    INSERT INTO diagrams_fts(diagrams_fts, rowid, id, name, project)
    VALUES ('delete', old.rowid, old.id, old.name, old.project);
    INSERT INTO diagrams_fts(rowid, id, name, project)
    VALUES (new.rowid, new.id, new.name, new.project);
END;

-- Schema version bookkeeping for migrations
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`
