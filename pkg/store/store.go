package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"camera-fleet/pkg/apperr"
)

// Collection names, matching the legacy per-entity JSON files.
const (
	Developers    = "developers"
	Projects      = "projects"
	Cameras       = "cameras"
	Inventory     = "inventory"
	DeviceTypes   = "deviceTypes"
	Memories      = "memories"
	StatusHistory = "statusHistory"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a JSON document store keyed by (collection, _id), backed by SQLite.
type Store struct {
	ops
	db *sql.DB
}

// Tx exposes the same operations inside one transaction.
type Tx struct {
	ops
}

type ops struct {
	q querier
}

// New wraps an open database. The documents table is created by database.InitDB.
func New(db *sql.DB) *Store {
	return &Store{ops: ops{q: db}, db: db}
}

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// InTx runs fn inside a transaction, committing when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{ops: ops{q: sqlTx}}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get decodes the document into out, failing with NotFound when absent.
func (o ops) Get(ctx context.Context, collection, id string, out any) error {
	var body string
	err := o.q.QueryRowContext(ctx, "SELECT body FROM documents WHERE collection = ? AND id = ?", collection, id).Scan(&body)
	if err == sql.ErrNoRows {
		return apperr.New(apperr.NotFound, "%s %s not found", collection, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get %s %s: %w", collection, id, err)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("failed to decode %s %s: %w", collection, id, err)
	}
	return nil
}

// List returns every document of a collection in insertion order.
func (o ops) List(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := o.q.QueryContext(ctx, "SELECT body FROM documents WHERE collection = ? ORDER BY seq", collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", collection, err)
		}
		out = append(out, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during %s rows iteration: %w", collection, err)
	}
	return out, nil
}

// Count returns the number of documents in a collection.
func (o ops) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := o.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents WHERE collection = ?", collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", collection, err)
	}
	return n, nil
}

// Insert stores v under id. v must serialise to a JSON object; its "_id" is forced to id.
func (o ops) Insert(ctx context.Context, collection, id string, v any) error {
	doc, err := toObject(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	doc["_id"] = mustRaw(id)
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", collection, err)
	}
	if _, err := o.q.ExecContext(ctx, "INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)", collection, id, string(body)); err != nil {
		return fmt.Errorf("failed to insert %s %s: %w", collection, id, err)
	}
	return nil
}

// Patch shallow-merges patch into the stored document; keys absent from patch are kept.
func (o ops) Patch(ctx context.Context, collection, id string, patch map[string]any) error {
	var doc map[string]json.RawMessage
	if err := o.Get(ctx, collection, id, &doc); err != nil {
		return err
	}
	for k, v := range patch {
		if k == "_id" {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s.%s: %w", collection, k, err)
		}
		doc[k] = raw
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", collection, id, err)
	}
	if _, err := o.q.ExecContext(ctx, "UPDATE documents SET body = ? WHERE collection = ? AND id = ?", string(body), collection, id); err != nil {
		return fmt.Errorf("failed to update %s %s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document and reports whether it existed.
func (o ops) Delete(ctx context.Context, collection, id string) (bool, error) {
	res, err := o.q.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete %s %s: %w", collection, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// ListAs decodes a whole collection into T values.
func ListAs[T any](ctx context.Context, o interface {
	List(context.Context, string) ([]json.RawMessage, error)
}, collection string) ([]T, error) {
	raws, err := o.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func toObject(v any) (map[string]json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document is not a JSON object: %w", err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func mustRaw(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
