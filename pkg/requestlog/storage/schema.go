package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the request log schema.
// Timestamps and durations are stored as integer nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS request_log (
    request_id TEXT PRIMARY KEY,
    service TEXT NOT NULL,
    endpoint TEXT,
    payload TEXT,
    async INTEGER NOT NULL DEFAULT 0,
    timeout_ns INTEGER NOT NULL DEFAULT 0,

    status TEXT NOT NULL,
    processing_time_ns INTEGER NOT NULL DEFAULT 0,
    response TEXT,
    error TEXT,

    api_key_id TEXT,
    client_ip TEXT,

    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    completed_at INTEGER
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_request_log_created_at ON request_log(created_at);
CREATE INDEX IF NOT EXISTS idx_request_log_api_key_id ON request_log(api_key_id);
CREATE INDEX IF NOT EXISTS idx_request_log_service ON request_log(service);
CREATE INDEX IF NOT EXISTS idx_request_log_status ON request_log(status);
`

// InsertSchemaVersion records the schema version.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`

const selectColumns = `
    request_id, service, endpoint, payload, async, timeout_ns,
    status, processing_time_ns, response, error,
    api_key_id, client_ip,
    created_at, updated_at, completed_at
`
