// Package sqlite provides a SQLite-backed implementation of
// docstore.Repository. The order id is both the document key and the
// partition key; the PRIMARY KEY constraint is what turns a duplicate
// commit into docstore.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/jcmexdev/order-fulfillment/internal/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS committed_orders (
    order_id    INTEGER PRIMARY KEY,
    request_id  TEXT NOT NULL DEFAULT '',
    final_price REAL NOT NULL DEFAULT 0,
    item_count  INTEGER NOT NULL DEFAULT 0,
    body        BLOB,
    created_at  TEXT NOT NULL
);
`

type Repository struct {
	db *sql.DB
}

var _ docstore.Repository = (*Repository)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, rec *docstore.Record) error {
	const q = `
		INSERT INTO committed_orders
			(order_id, request_id, final_price, item_count, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q,
		rec.OrderID, rec.RequestID, rec.FinalPrice, rec.ItemCount, rec.Body,
		createdAt.UTC().Format(time.RFC3339Nano))
	if isConstraintViolation(err) {
		return docstore.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("sqlite: create committed order %d: %w", rec.OrderID, err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, orderID int) (*docstore.Record, error) {
	const q = `
		SELECT order_id, request_id, final_price, item_count, body, created_at
		FROM   committed_orders
		WHERE  order_id = ?`

	var rec docstore.Record
	var createdAt string
	err := r.db.QueryRowContext(ctx, q, orderID).Scan(
		&rec.OrderID, &rec.RequestID, &rec.FinalPrice, &rec.ItemCount, &rec.Body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get committed order %d: %w", orderID, err)
	}

	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parse time %q: %w", createdAt, err)
	}
	return &rec, nil
}

func isConstraintViolation(err error) bool {
	var se *sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY ||
		se.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}
