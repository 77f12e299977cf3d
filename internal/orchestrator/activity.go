// Package orchestrator runs the per-order durable workflow: a pure
// coordinator delegating the one side-effecting step to a single
// idempotent activity, over a persisted instance-status table.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jcmexdev/order-fulfillment/internal/docstore"
	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
)

// Activity is a single side-effecting step invoked by a workflow. It
// must be idempotent: the runner may schedule it more than once for the
// same order.
type Activity interface {
	Name() string
	Execute(ctx context.Context, req *fulfillment.Request) (string, error)
}

// CommitOrderActivity writes the committed order record, using the order
// id as the document key. A key conflict means an earlier attempt
// already committed and is reported as success, which is what makes the
// activity safe under replay or duplicate scheduling.
type CommitOrderActivity struct {
	docs docstore.Repository

	// delay is injected before the write for testing/chaos scenarios;
	// it affects timing only, never correctness.
	delay time.Duration
}

func NewCommitOrderActivity(docs docstore.Repository, delay time.Duration) *CommitOrderActivity {
	return &CommitOrderActivity{docs: docs, delay: delay}
}

func (a *CommitOrderActivity) Name() string { return "commit-order" }

func (a *CommitOrderActivity) Execute(ctx context.Context, req *fulfillment.Request) (string, error) {
	if a.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(a.delay):
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("commit order %d: marshal envelope: %w", req.OrderID, err)
	}

	err = a.docs.Create(ctx, &docstore.Record{
		OrderID:    req.OrderID,
		RequestID:  req.RequestID,
		FinalPrice: req.FinalPrice,
		ItemCount:  len(req.Items),
		Body:       body,
		CreatedAt:  time.Now().UTC(),
	})
	if errors.Is(err, docstore.ErrConflict) {
		slog.InfoContext(ctx, "order already committed, treating conflict as success", "order_id", req.OrderID)
		return fmt.Sprintf("Order %d already exists.", req.OrderID), nil
	}
	if err != nil {
		return "", fmt.Errorf("commit order %d: %w", req.OrderID, err)
	}

	slog.InfoContext(ctx, "order committed", "order_id", req.OrderID)
	return fmt.Sprintf("Order %d saved.", req.OrderID), nil
}
