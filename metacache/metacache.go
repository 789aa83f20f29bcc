// Package metacache maintains a queryable local index of entry metadata so
// the UI can render reverse-chronological listings without loading or
// decrypting full content. Every live entry has exactly one row; the row is
// regenerated whenever content changes.
package metacache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when an entry has no metadata row.
var ErrNotFound = errors.New("metadata not found")

// previewLen caps the stored plaintext preview.
const previewLen = 120

// Metadata is the cheap projection of a journal entry kept in the index.
type Metadata struct {
	ID          string
	Title       string
	Preview     string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	FilePath    string
	IsPublished bool
	IsShared    bool
	CloudID     string
}

// Cache is a sqlite-backed metadata index.
type Cache struct {
	db *sql.DB
}

// Open opens (or creates) the index database at path.
func Open(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing metadata schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Upsert writes or replaces the metadata row for m.ID.
func (c *Cache) Upsert(ctx context.Context, m *Metadata) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO entry_metadata (id, title, preview, created_at, modified_at, file_path, is_published, is_shared, cloud_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			preview = excluded.preview,
			created_at = excluded.created_at,
			modified_at = excluded.modified_at,
			file_path = excluded.file_path,
			is_published = excluded.is_published,
			is_shared = excluded.is_shared,
			cloud_id = excluded.cloud_id
	`, m.ID, m.Title, m.Preview, m.CreatedAt, m.ModifiedAt, m.FilePath, m.IsPublished, m.IsShared, m.CloudID)
	if err != nil {
		return fmt.Errorf("upserting metadata for %s: %w", m.ID, err)
	}
	return nil
}

// Get returns the metadata row for id.
func (c *Cache) Get(ctx context.Context, id string) (*Metadata, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, title, preview, created_at, modified_at, file_path, is_published, is_shared, cloud_id
		FROM entry_metadata WHERE id = ?
	`, id)
	m, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading metadata for %s: %w", id, err)
	}
	return m, nil
}

// Delete removes the metadata row for id. Deleting a missing row is not an
// error; the index mirrors the store, it does not own it.
func (c *Cache) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM entry_metadata WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting metadata for %s: %w", id, err)
	}
	return nil
}

// List returns all rows newest-modified first.
func (c *Cache) List(ctx context.Context) ([]Metadata, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, preview, created_at, modified_at, file_path, is_published, is_shared, cloud_id
		FROM entry_metadata ORDER BY modified_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	defer rows.Close()

	var result []Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning metadata row: %w", err)
		}
		result = append(result, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metadata rows: %w", err)
	}
	return result, nil
}

// SetPublishState flips the published flag and cloud id for id.
func (c *Cache) SetPublishState(ctx context.Context, id string, published bool, cloudID string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE entry_metadata SET is_published = ?, cloud_id = ? WHERE id = ?
	`, published, cloudID, id)
	if err != nil {
		return fmt.Errorf("updating publish state for %s: %w", id, err)
	}
	return nil
}

// SetShared flips the shared flag for id.
func (c *Cache) SetShared(ctx context.Context, id string, shared bool) error {
	_, err := c.db.ExecContext(ctx, `UPDATE entry_metadata SET is_shared = ? WHERE id = ?`, shared, id)
	if err != nil {
		return fmt.Errorf("updating shared flag for %s: %w", id, err)
	}
	return nil
}

// RefreshTitlePreview updates only the plaintext projection of a row,
// used after a password unlock reveals the real title and content.
func (c *Cache) RefreshTitlePreview(ctx context.Context, id, title, preview string) error {
	_, err := c.db.ExecContext(ctx, `
		UPDATE entry_metadata SET title = ?, preview = ? WHERE id = ?
	`, title, preview, id)
	if err != nil {
		return fmt.Errorf("refreshing title/preview for %s: %w", id, err)
	}
	return nil
}

// Preview derives the stored preview snippet from plaintext content.
func Preview(content string) string {
	content = strings.TrimSpace(strings.ReplaceAll(content, "\n", " "))
	if utf8.RuneCountInString(content) <= previewLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLen])
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(s scanner) (*Metadata, error) {
	var m Metadata
	err := s.Scan(&m.ID, &m.Title, &m.Preview, &m.CreatedAt, &m.ModifiedAt,
		&m.FilePath, &m.IsPublished, &m.IsShared, &m.CloudID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
