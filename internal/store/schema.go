package store

const schemaSQL = `
CREATE TABLE IF NOT EXISTS attachments (
    id          TEXT PRIMARY KEY,
    filename    TEXT NOT NULL,
    path        TEXT NOT NULL,
    size_bytes  INTEGER NOT NULL,
    mime_type   TEXT NOT NULL,
    added_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attachments_filename ON attachments(filename);
`
