// Package sqlite provides a SQLite-backed implementation of
// instance.Repository.
//
// WAL mode is enabled on Open so that readers never block writers and
// vice versa: the status gateway polls while the runner goroutine
// writes transitions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/jcmexdev/order-fulfillment/internal/orchestrator/instance"
)

// schema is the DDL executed once on startup.
const schema = `
CREATE TABLE IF NOT EXISTS orchestration_instances (
    -- Business identifier: the order id in string form. The PRIMARY KEY
    -- is the single-live-instance-per-order enforcement.
    instance_id TEXT PRIMARY KEY,

    -- Lifecycle state: Pending, Running, Completed, Failed, Terminated.
    status      TEXT NOT NULL,

    -- Envelope that started the orchestration; replayed on recovery.
    input       BLOB,

    -- Result string of the workflow; empty until Completed.
    output      TEXT NOT NULL DEFAULT '',

    -- Failure detail; empty unless Failed.
    last_error  TEXT NOT NULL DEFAULT '',

    -- RFC3339 stored as TEXT, SQLite idiom.
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

-- Recovery query: "give me everything still in flight".
CREATE INDEX IF NOT EXISTS idx_orchestration_instances_status
    ON orchestration_instances(status);
`

// Repository is the SQLite implementation of instance.Repository.
type Repository struct {
	db *sql.DB
}

var _ instance.Repository = (*Repository)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}

	// SQLite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the database connection. Call it with defer in main().
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Create(ctx context.Context, instanceID string, input []byte) error {
	const q = `
		INSERT INTO orchestration_instances
			(instance_id, status, input, output, last_error, created_at, updated_at)
		VALUES (?, ?, ?, '', '', ?, ?)`

	now := formatTime(time.Now())
	_, err := r.db.ExecContext(ctx, q, instanceID, string(instance.StatusPending), input, now, now)
	if isConstraintViolation(err) {
		return instance.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("sqlite: create instance %q: %w", instanceID, err)
	}
	return nil
}

func (r *Repository) GetStatus(ctx context.Context, instanceID string) (instance.RuntimeStatus, error) {
	const q = `SELECT status FROM orchestration_instances WHERE instance_id = ?`

	var status string
	err := r.db.QueryRowContext(ctx, q, instanceID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", instance.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get status for %q: %w", instanceID, err)
	}
	return instance.RuntimeStatus(status), nil
}

func (r *Repository) Get(ctx context.Context, instanceID string) (*instance.Instance, error) {
	const q = `
		SELECT instance_id, status, input, output, last_error, created_at, updated_at
		FROM   orchestration_instances
		WHERE  instance_id = ?`

	inst, err := scanInstance(r.db.QueryRowContext(ctx, q, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, instance.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get instance %q: %w", instanceID, err)
	}
	return inst, nil
}

func (r *Repository) MarkRunning(ctx context.Context, instanceID string) error {
	return r.transition(ctx, instanceID, instance.StatusRunning, "", "")
}

func (r *Repository) Complete(ctx context.Context, instanceID, output string) error {
	return r.transition(ctx, instanceID, instance.StatusCompleted, output, "")
}

func (r *Repository) Fail(ctx context.Context, instanceID, lastError string) error {
	return r.transition(ctx, instanceID, instance.StatusFailed, "", lastError)
}

func (r *Repository) transition(ctx context.Context, instanceID string, status instance.RuntimeStatus, output, lastError string) error {
	const q = `
		UPDATE orchestration_instances
		SET    status = ?, output = ?, last_error = ?, updated_at = ?
		WHERE  instance_id = ?`

	res, err := r.db.ExecContext(ctx, q, string(status), output, lastError, formatTime(time.Now()), instanceID)
	if err != nil {
		return fmt.Errorf("sqlite: transition %q to %s: %w", instanceID, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return instance.ErrNotFound
	}
	return nil
}

func (r *Repository) Terminate(ctx context.Context, instanceID string) error {
	const q = `
		UPDATE orchestration_instances
		SET    status = ?, updated_at = ?
		WHERE  instance_id = ? AND status IN (?, ?)`

	res, err := r.db.ExecContext(ctx, q,
		string(instance.StatusTerminated), formatTime(time.Now()),
		instanceID, string(instance.StatusPending), string(instance.StatusRunning))
	if err != nil {
		return fmt.Errorf("sqlite: terminate %q: %w", instanceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish "gone" from "already terminal".
		if _, gerr := r.GetStatus(ctx, instanceID); errors.Is(gerr, instance.ErrNotFound) {
			return instance.ErrNotFound
		}
		return instance.ErrTerminal
	}
	return nil
}

func (r *Repository) Purge(ctx context.Context, instanceID string) error {
	const q = `DELETE FROM orchestration_instances WHERE instance_id = ?`

	// Purge is idempotent: deleting an absent row is not an error.
	if _, err := r.db.ExecContext(ctx, q, instanceID); err != nil {
		return fmt.Errorf("sqlite: purge %q: %w", instanceID, err)
	}
	return nil
}

func (r *Repository) ListNonTerminal(ctx context.Context) ([]*instance.Instance, error) {
	const q = `
		SELECT instance_id, status, input, output, last_error, created_at, updated_at
		FROM   orchestration_instances
		WHERE  status IN (?, ?)
		ORDER  BY created_at`

	rows, err := r.db.QueryContext(ctx, q, string(instance.StatusPending), string(instance.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list non-terminal: %w", err)
	}
	defer rows.Close()

	var out []*instance.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan non-terminal: %w", err)
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*instance.Instance, error) {
	var inst instance.Instance
	var status, createdAt, updatedAt string
	if err := row.Scan(&inst.InstanceID, &status, &inst.Input, &inst.Output, &inst.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	inst.Status = instance.RuntimeStatus(status)

	var err error
	if inst.CreatedAt, err = parseRFC3339(createdAt); err != nil {
		return nil, err
	}
	if inst.UpdatedAt, err = parseRFC3339(updatedAt); err != nil {
		return nil, err
	}
	return &inst, nil
}

// isConstraintViolation reports whether err is the driver's duplicate-key
// error for the PRIMARY KEY (or a UNIQUE index).
func isConstraintViolation(err error) bool {
	var se *sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY ||
		se.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE
}
