package instance

import "context"

// Repository is the port for the instance-status table. The runner and
// the status gateway depend on this abstraction, not on SQLite directly,
// so the implementation can be swapped (Postgres, in-memory for tests).
type Repository interface {
	// Create inserts a new Pending instance. Returns ErrAlreadyExists
	// when the key is taken; the caller normalizes that, it is not a
	// failure.
	Create(ctx context.Context, instanceID string, input []byte) error

	// GetStatus is the cheap existence+status check: no input or output
	// is fetched. Returns ErrNotFound for unknown ids.
	GetStatus(ctx context.Context, instanceID string) (RuntimeStatus, error)

	// Get fetches the full instance row.
	Get(ctx context.Context, instanceID string) (*Instance, error)

	// MarkRunning, Complete and Fail are the transitions driven by the
	// orchestration runner.
	MarkRunning(ctx context.Context, instanceID string) error
	Complete(ctx context.Context, instanceID, output string) error
	Fail(ctx context.Context, instanceID, lastError string) error

	// Terminate marks a non-terminal instance Terminated (operator
	// action). Returns ErrTerminal if the instance already reached a
	// terminal state, ErrNotFound if it does not exist.
	Terminate(ctx context.Context, instanceID string) error

	// Purge deletes the instance's history so the same id can be
	// restarted. Purging an absent instance is a no-op.
	Purge(ctx context.Context, instanceID string) error

	// ListNonTerminal returns every Pending or Running instance; used at
	// startup to recover work interrupted by a crash.
	ListNonTerminal(ctx context.Context) ([]*Instance, error)
}
