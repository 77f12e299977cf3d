package orchestrator

import (
	"context"
	"fmt"

	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
)

// Workflow is the replay-safe coordinator for one order. The body
// performs no I/O of its own: all side effects live in the single
// activity, so re-executing the workflow after a crash cannot double
// them. Its output is the activity's result string.
type Workflow struct {
	commit Activity
}

func NewWorkflow(commit Activity) *Workflow {
	return &Workflow{commit: commit}
}

func (w *Workflow) Run(ctx context.Context, req *fulfillment.Request) (string, error) {
	out, err := w.commit.Execute(ctx, req)
	if err != nil {
		return "", fmt.Errorf("activity %s: %w", w.commit.Name(), err)
	}
	return out, nil
}
