package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
	"github.com/jcmexdev/order-fulfillment/internal/orchestrator/instance"
)

// Runner is the durable-execution layer. It registers an instance row
// per order, executes the workflow in the background, and records every
// transition in the instance store, so a crashed process can pick the
// work back up via Recover.
type Runner struct {
	instances instance.Repository
	workflow  *Workflow
	wg        sync.WaitGroup
}

func NewRunner(instances instance.Repository, workflow *Workflow) *Runner {
	return &Runner{instances: instances, workflow: workflow}
}

// StartNew registers a new orchestration instance for instanceID and
// executes it in the background. instance.ErrAlreadyExists passes
// through untouched: the caller decides how to normalize a create race.
func (r *Runner) StartNew(ctx context.Context, instanceID string, req *fulfillment.Request) error {
	input, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("start orchestration %s: marshal input: %w", instanceID, err)
	}
	if err := r.instances.Create(ctx, instanceID, input); err != nil {
		return err
	}

	slog.InfoContext(ctx, "orchestration started", "instance_id", instanceID)

	// Detach from the request context so the orchestration is not
	// cancelled when the HTTP response is sent.
	r.dispatch(context.WithoutCancel(ctx), instanceID, req)
	return nil
}

// Recover re-dispatches every instance left Pending or Running by a
// previous process. Safe to repeat: the only side-effecting step is the
// commit activity, which normalizes duplicates to success.
func (r *Runner) Recover(ctx context.Context) error {
	stuck, err := r.instances.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("recover orchestrations: %w", err)
	}

	for _, inst := range stuck {
		var req fulfillment.Request
		if err := json.Unmarshal(inst.Input, &req); err != nil {
			slog.ErrorContext(ctx, "skipping instance with unreadable input",
				"instance_id", inst.InstanceID, "error", err)
			continue
		}
		slog.InfoContext(ctx, "recovering orchestration",
			"instance_id", inst.InstanceID, "status", string(inst.Status))
		r.dispatch(context.WithoutCancel(ctx), inst.InstanceID, &req)
	}
	return nil
}

// Wait blocks until every in-flight workflow has finished. Used on
// shutdown; new work should have stopped arriving by then.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) dispatch(ctx context.Context, instanceID string, req *fulfillment.Request) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx, instanceID, req)
	}()
}

func (r *Runner) run(ctx context.Context, instanceID string, req *fulfillment.Request) {
	if err := r.instances.MarkRunning(ctx, instanceID); err != nil {
		// The instance may have been purged between dispatch and here;
		// without a row there is nowhere to record an outcome.
		slog.ErrorContext(ctx, "cannot mark orchestration running",
			"instance_id", instanceID, "error", err)
		return
	}

	output, err := r.workflow.Run(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "orchestration failed", "instance_id", instanceID, "error", err)
		if ferr := r.instances.Fail(ctx, instanceID, err.Error()); ferr != nil {
			slog.ErrorContext(ctx, "CRITICAL: failed to record orchestration failure",
				"instance_id", instanceID, "workflow_error", err, "store_error", ferr)
		}
		return
	}

	if cerr := r.instances.Complete(ctx, instanceID, output); cerr != nil {
		slog.ErrorContext(ctx, "CRITICAL: failed to record orchestration completion",
			"instance_id", instanceID, "error", cerr)
		return
	}
	slog.InfoContext(ctx, "orchestration completed", "instance_id", instanceID, "output", output)
}
