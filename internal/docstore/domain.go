// Package docstore holds the committed order record: the terminal
// artifact of the fulfillment pipeline, created exactly once logically
// per order id.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Record is a committed order document keyed by the order id.
type Record struct {
	OrderID    int
	RequestID  string
	FinalPrice float64
	ItemCount  int

	// Body is the serialized envelope, kept whole so the record can be
	// audited against the original request.
	Body []byte

	CreatedAt time.Time
}

// ErrConflict means the document key already exists. Callers treat it as
// success (conflict-as-success): the record was committed by an earlier
// attempt and a duplicate write changes nothing.
var ErrConflict = errors.New("document already exists")

// Repository is the port to the document store.
type Repository interface {
	// Create inserts the record; ErrConflict when the key is taken.
	Create(ctx context.Context, rec *Record) error

	// Get fetches a committed record by order id; nil, nil when absent.
	Get(ctx context.Context, orderID int) (*Record, error)
}
