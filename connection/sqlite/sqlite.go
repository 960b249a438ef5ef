// Package sqlite stores collections as JSON documents in SQLite.
//
// Items round-trip through encoding/json: structs come back as
// map[string]any and numbers as float64. Filters run in Go over the decoded
// documents.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/on-the-ground/cliser/connection/internal/document"
	"github.com/on-the-ground/cliser/effects/collection"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	collection TEXT NOT NULL,
	body       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_collection ON documents (collection, seq);
`

// Connection provides SQLite-backed collection storage.
type Connection struct {
	sqlDB *sql.DB
}

// Open opens the database at path, ":memory:" included, and creates the
// documents table.
func Open(path string) (*Connection, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one connection: actions are serialised and ":memory:" stays a single database
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Connection{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (c *Connection) Close() error {
	if c == nil || c.sqlDB == nil {
		return nil
	}
	return c.sqlDB.Close()
}

var _ collection.Connection = (*Connection)(nil)

// Dispatch runs action in one transaction.
func (c *Connection) Dispatch(ctx context.Context, action collection.Action) (result collection.Result, err error) {
	if err := ctx.Err(); err != nil {
		return collection.Result{}, err
	}
	name := action.Collection.Name()

	tx, err := c.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return collection.Result{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	docs, err := load(ctx, tx, name)
	if err != nil {
		return collection.Result{}, err
	}
	plan, err := document.PlanAction(docs, action)
	if err != nil {
		return collection.Result{}, err
	}

	for _, u := range plan.Updates {
		body, err := json.Marshal(u.Value)
		if err != nil {
			return collection.Result{}, fmt.Errorf("encode %s: %w", u.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE documents SET body = ? WHERE id = ?`, string(body), u.ID); err != nil {
			return collection.Result{}, fmt.Errorf("update %s: %w", u.ID, err)
		}
	}
	for _, id := range plan.Deletes {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return collection.Result{}, fmt.Errorf("delete %s: %w", id, err)
		}
	}
	for _, v := range plan.Inserts {
		body, err := json.Marshal(v)
		if err != nil {
			return collection.Result{}, fmt.Errorf("encode document: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (id, collection, body) VALUES (?, ?, ?)`,
			uuid.NewString(), name, string(body),
		); err != nil {
			return collection.Result{}, fmt.Errorf("insert into %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return collection.Result{}, fmt.Errorf("commit: %w", err)
	}
	return collection.Result{Value: plan.Result, Updated: plan.Updated()}, nil
}

func load(ctx context.Context, tx *sql.Tx, name string) ([]document.Doc, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, body FROM documents WHERE collection = ? ORDER BY seq`, name)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	defer rows.Close()

	var docs []document.Doc
	for rows.Next() {
		var (
			id   string
			body string
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", name, err)
		}
		var value any
		if err := json.Unmarshal([]byte(body), &value); err != nil {
			return nil, fmt.Errorf("decode %s: %w", id, err)
		}
		docs = append(docs, document.Doc{ID: id, Value: value})
	}
	return docs, rows.Err()
}
