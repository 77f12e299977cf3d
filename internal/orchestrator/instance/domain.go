// Package instance defines the persisted orchestration instance: the
// durable status record that makes the per-order workflow replay-safe.
//
// One row exists per order id. The primary key is what enforces the
// single-live-instance-per-order rule: check-then-create races are
// resolved by the storage layer's own key conflict, normalized by the
// caller the same way as every other conflict in the pipeline.
package instance

import (
	"errors"
	"time"
)

// RuntimeStatus is the lifecycle state of an orchestration instance.
type RuntimeStatus string

const (
	StatusPending    RuntimeStatus = "Pending"
	StatusRunning    RuntimeStatus = "Running"
	StatusCompleted  RuntimeStatus = "Completed"
	StatusFailed     RuntimeStatus = "Failed"
	StatusTerminated RuntimeStatus = "Terminated"
)

// Terminal reports whether no further transition is possible.
func (s RuntimeStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	}
	return false
}

// Instance is a single orchestration keyed by the order id in string
// form. Input is the envelope that started it, kept so a crashed process
// can re-dispatch the workflow on restart.
type Instance struct {
	InstanceID string
	Status     RuntimeStatus
	Input      []byte
	Output     string
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

var (
	ErrNotFound      = errors.New("orchestration instance not found")
	ErrAlreadyExists = errors.New("orchestration instance already exists")
	ErrTerminal      = errors.New("orchestration instance already terminal")
)
