package storage

// Metadata tables. The per-upstream-table cache tables are created
// dynamically from synthesized schemas; everything here is fixed-shape.
const metaSchema = `
-- Registry of dynamically created cache tables
CREATE TABLE IF NOT EXISTS cache_table_registry (
    upstream_id TEXT PRIMARY KEY,
    sql_table_name TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    structure_json TEXT NOT NULL DEFAULT '[]',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Per-table TTL configuration
CREATE TABLE IF NOT EXISTS cache_ttl_config (
    upstream_id TEXT PRIMARY KEY,
    ttl_seconds INTEGER NOT NULL,
    mutation_level TEXT DEFAULT '',
    notes TEXT DEFAULT '',
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Free-form operational stats (last populate times, row counts, ...)
CREATE TABLE IF NOT EXISTS cache_stats (
    scope TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (scope, key)
);

-- Durable hit/miss counters, merged from the in-memory ledger
CREATE TABLE IF NOT EXISTS cache_performance (
    table_id TEXT PRIMARY KEY,
    hit_count INTEGER NOT NULL DEFAULT 0,
    miss_count INTEGER NOT NULL DEFAULT 0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

-- Solutions cache
CREATE TABLE IF NOT EXISTS cached_solutions (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    logo_icon TEXT DEFAULT '',
    logo_color TEXT DEFAULT '',
    cached_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL
);

-- Table-list cache. list_key is the cache key the list was populated
-- under ('' for the global list); solution_id is the table's real parent,
-- which cascade invalidation follows. The global and a solution-scoped
-- list are separate rows with independent expiries.
CREATE TABLE IF NOT EXISTS cached_tables (
    id TEXT NOT NULL,
    list_key TEXT NOT NULL DEFAULT '',
    solution_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    structure_json TEXT NOT NULL DEFAULT '[]',
    cached_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    PRIMARY KEY (list_key, id)
);

CREATE INDEX IF NOT EXISTS idx_cached_tables_solution ON cached_tables(solution_id);

-- Members cache
CREATE TABLE IF NOT EXISTS cached_members (
    id TEXT PRIMARY KEY,
    email TEXT DEFAULT '',
    role TEXT DEFAULT '',
    first_name TEXT DEFAULT '',
    last_name TEXT DEFAULT '',
    full_name TEXT DEFAULT '',
    job_title TEXT DEFAULT '',
    department TEXT DEFAULT '',
    status TEXT DEFAULT '',
    deleted_date TEXT DEFAULT '',
    cached_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cached_members_email ON cached_members(email);

-- Teams cache
CREATE TABLE IF NOT EXISTS cached_teams (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    description TEXT DEFAULT '',
    member_count INTEGER NOT NULL DEFAULT 0,
    members_json TEXT NOT NULL DEFAULT '[]',
    cached_at DATETIME NOT NULL,
    expires_at DATETIME NOT NULL
);
`
