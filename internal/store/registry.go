package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // register sqlite driver
)

// Attachment is one registered local file.
type Attachment struct {
	ID        string
	Filename  string
	Path      string
	SizeBytes int64
	MimeType  string
	AddedAt   time.Time
}

// Registry is the SQLite-backed index of files attached to conversations.
type Registry struct {
	db *sql.DB
}

// OpenRegistry opens or creates the registry database at the given path.
func OpenRegistry(dbPath string) (*Registry, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating registry dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the registry database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Add records a file and returns it with a fresh ID.
func (r *Registry) Add(filename, path string, sizeBytes int64, mimeType string) (Attachment, error) {
	a := Attachment{
		ID:        uuid.NewString(),
		Filename:  filename,
		Path:      path,
		SizeBytes: sizeBytes,
		MimeType:  mimeType,
		AddedAt:   time.Now().UTC(),
	}

	_, err := r.db.Exec(
		`INSERT INTO attachments (id, filename, path, size_bytes, mime_type, added_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Filename, a.Path, a.SizeBytes, a.MimeType, a.AddedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Attachment{}, fmt.Errorf("recording attachment: %w", err)
	}
	return a, nil
}

// List returns all attachments, most recent first.
func (r *Registry) List() ([]Attachment, error) {
	rows, err := r.db.Query(
		`SELECT id, filename, path, size_bytes, mime_type, added_at
		 FROM attachments ORDER BY added_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// LookupByName returns attachments whose filename matches exactly.
func (r *Registry) LookupByName(filename string) ([]Attachment, error) {
	rows, err := r.db.Query(
		`SELECT id, filename, path, size_bytes, mime_type, added_at
		 FROM attachments WHERE filename = ? ORDER BY added_at DESC`, filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Remove deletes an attachment record by ID. Returns false when no record
// matched.
func (r *Registry) Remove(id string) (bool, error) {
	res, err := r.db.Exec("DELETE FROM attachments WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanAttachment(rows *sql.Rows) (Attachment, error) {
	var a Attachment
	var added string
	if err := rows.Scan(&a.ID, &a.Filename, &a.Path, &a.SizeBytes, &a.MimeType, &added); err != nil {
		return Attachment{}, err
	}
	t, err := time.Parse(time.RFC3339, added)
	if err != nil {
		return Attachment{}, fmt.Errorf("parsing added_at: %w", err)
	}
	a.AddedAt = t
	return a, nil
}
