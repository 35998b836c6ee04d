// Package catalog records finished conversions in SQLite.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite
//   - -tags cgo_sqlite (CGO_ENABLED=1): mattn/go-sqlite3
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FocuswithJustin/jatspkg/core/cas"
	"github.com/FocuswithJustin/jatspkg/core/convert"
	"github.com/FocuswithJustin/jatspkg/core/errors"
)

// Status of a catalogued conversion.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	article_id   TEXT PRIMARY KEY,
	id           TEXT NOT NULL,
	package      TEXT NOT NULL DEFAULT '',
	doi          TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	resources    INTEGER NOT NULL DEFAULT 0,
	out_dir      TEXT NOT NULL DEFAULT '',
	html_digest  TEXT NOT NULL DEFAULT '',
	converted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_time ON conversions(converted_at);
`

// Entry is the latest conversion of one article.
type Entry struct {
	ArticleID   string    `json:"article_id"`
	ID          string    `json:"id"`
	Package     string    `json:"package,omitempty"`
	DOI         string    `json:"doi,omitempty"`
	Title       string    `json:"title,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Resources   int       `json:"resources"`
	OutDir      string    `json:"out_dir,omitempty"`
	HTMLDigest  string    `json:"html_digest,omitempty"`
	ConvertedAt time.Time `json:"converted_at"`
}

// Succeeded builds the entry for a finished conversion.
func Succeeded(articleID, outDir string, res *convert.Result) Entry {
	return Entry{
		ArticleID:  articleID,
		ID:         res.ID,
		Package:    res.Package.Name,
		DOI:        res.Package.DOI,
		Title:      res.Package.Title,
		Status:     StatusOK,
		Resources:  len(res.Package.All()),
		OutDir:     outDir,
		HTMLDigest: cas.Hash([]byte(res.HTML)),
	}
}

// Failed builds the entry for a failed conversion.
func Failed(articleID string, err error) Entry {
	return Entry{ArticleID: articleID, Status: StatusFailed, Error: err.Error()}
}

// Catalog is a conversion catalog. It is safe for concurrent use.
type Catalog struct {
	db *sql.DB
}

// DriverType reports "purego" or "cgo".
func DriverType() string { return driverType }

// Open opens (creating if needed) the catalog at path. ":memory:" gives a
// private in-memory catalog.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, errors.NewIO("open catalog", path, err)
	}
	// One connection: writers serialize and :memory: is per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewIO("init catalog", path, err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Record inserts e or replaces the entry for the same article.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.ArticleID == "" {
		return errors.NewValidation("article_id", "required")
	}
	if e.ConvertedAt.IsZero() {
		e.ConvertedAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO conversions
			(article_id, id, package, doi, title, status, error, resources, out_dir, html_digest, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(article_id) DO UPDATE SET
			id = excluded.id,
			package = excluded.package,
			doi = excluded.doi,
			title = excluded.title,
			status = excluded.status,
			error = excluded.error,
			resources = excluded.resources,
			out_dir = excluded.out_dir,
			html_digest = excluded.html_digest,
			converted_at = excluded.converted_at`,
		e.ArticleID, e.ID, e.Package, e.DOI, e.Title, e.Status, e.Error,
		e.Resources, e.OutDir, e.HTMLDigest, e.ConvertedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record %s: %w", e.ArticleID, err)
	}
	return nil
}

const columns = `article_id, id, package, doi, title, status, error, resources, out_dir, html_digest, converted_at`

// Get returns the entry for articleID.
func (c *Catalog) Get(ctx context.Context, articleID string) (*Entry, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+columns+` FROM conversions WHERE article_id = ?`, articleID)
	e, err := scan(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("conversion", articleID)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", articleID, err)
	}
	return e, nil
}

// List returns up to limit entries, most recent first. limit <= 0 lists all.
// A non-empty status filters by status.
func (c *Catalog) List(ctx context.Context, status string, limit int) ([]Entry, error) {
	q := `SELECT ` + columns + ` FROM conversions`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY converted_at DESC, article_id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list conversions: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Delete removes the entry for articleID.
func (c *Catalog) Delete(ctx context.Context, articleID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM conversions WHERE article_id = ?`, articleID)
	if err != nil {
		return fmt.Errorf("delete %s: %w", articleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("conversion", articleID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*Entry, error) {
	var e Entry
	var at string
	if err := s.Scan(&e.ArticleID, &e.ID, &e.Package, &e.DOI, &e.Title, &e.Status,
		&e.Error, &e.Resources, &e.OutDir, &e.HTMLDigest, &at); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("converted_at %q: %w", at, err)
	}
	e.ConvertedAt = t
	return &e, nil
}
