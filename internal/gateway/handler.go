// Package gateway is the HTTP entry point to the orchestration layer: it
// starts, or reattaches to, the orchestration instance for an order id
// and optionally blocks the caller for a bounded time waiting for
// completion. It holds no cross-request state; everything it knows comes
// from the instance store, so any number of gateway replicas can serve
// the same orders.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
	"github.com/jcmexdev/order-fulfillment/internal/orchestrator"
	"github.com/jcmexdev/order-fulfillment/internal/orchestrator/instance"
	"github.com/jcmexdev/order-fulfillment/internal/submission"
)

// Handler serves the status gateway routes.
type Handler struct {
	instances instance.Repository
	runner    *orchestrator.Runner
	producer  *submission.Producer

	// maxWait bounds the polling loop; zero means a single status check
	// with no sleep. interval is the sleep between checks, floor 1s.
	maxWait  time.Duration
	interval time.Duration
}

// NewHandler clamps the wait parameters to their documented floors:
// negative maxWait becomes 0 (single check), interval below one second
// becomes one second.
func NewHandler(
	instances instance.Repository,
	runner *orchestrator.Runner,
	producer *submission.Producer,
	maxWait, interval time.Duration,
) *Handler {
	if maxWait < 0 {
		maxWait = 0
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Handler{
		instances: instances,
		runner:    runner,
		producer:  producer,
		maxWait:   maxWait,
		interval:  interval,
	}
}

// SubmitOrder is the submit-or-get-status operation: at most one live
// orchestration per order id, a Completed instance short-circuits
// resubmission, and a Failed/Terminated instance gets exactly one
// automatic purge-and-retry before the caller sees a server error.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req fulfillment.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	id := req.InstanceID()

	status, err := h.instances.GetStatus(ctx, id)
	if errors.Is(err, instance.ErrNotFound) {
		if err := h.runner.StartNew(ctx, id, &req); err != nil {
			if errors.Is(err, instance.ErrAlreadyExists) {
				// Lost a create race: someone else just started this
				// order. Same answer as if we had started it ourselves.
				h.writeAccepted(w, id)
				return
			}
			writeError(w, http.StatusInternalServerError, "start_failed", err.Error())
			return
		}
		h.writeAccepted(w, id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_check_failed", err.Error())
		return
	}

	switch status {
	case instance.StatusCompleted:
		// Durable "already done" marker; confirmation, not an error.
		writeJSON(w, http.StatusOK, ResultResponse{
			Message: fmt.Sprintf("Order %s already added. No new record created.", id),
		})

	case instance.StatusPending, instance.StatusRunning:
		if h.waitForCompletion(ctx, id) {
			writeJSON(w, http.StatusOK, ResultResponse{
				Message: fmt.Sprintf("Order %s saved.", id),
			})
			return
		}
		h.writeAccepted(w, id)

	case instance.StatusFailed, instance.StatusTerminated:
		slog.InfoContext(ctx, "purging terminal instance for one-shot retry",
			"instance_id", id, "status", string(status))
		if err := h.instances.Purge(ctx, id); err != nil {
			writeError(w, http.StatusInternalServerError, "purge_failed", err.Error())
			return
		}
		if err := h.runner.StartNew(ctx, id, &req); err != nil && !errors.Is(err, instance.ErrAlreadyExists) {
			writeError(w, http.StatusInternalServerError, "start_failed", err.Error())
			return
		}
		if h.waitForCompletion(ctx, id) {
			writeJSON(w, http.StatusOK, ResultResponse{
				Message: fmt.Sprintf("Order %s saved on retry.", id),
			})
			return
		}
		writeError(w, http.StatusInternalServerError, "retry_failed",
			fmt.Sprintf("Order %s retry failed.", id))

	default:
		writeJSON(w, http.StatusOK, ResultResponse{
			Message: fmt.Sprintf("Order %s in progress, current status = %s.", id, status),
		})
	}
}

// GetStatus is the status handle advertised in the accepted response.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	inst, err := h.instances.Get(r.Context(), id)
	if errors.Is(err, instance.ErrNotFound) {
		writeError(w, http.StatusNotFound, "instance_not_found", "")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "status_check_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		InstanceID:    inst.InstanceID,
		RuntimeStatus: string(inst.Status),
		Output:        inst.Output,
		LastError:     inst.LastError,
		CreatedAt:     inst.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     inst.UpdatedAt.Format(time.RFC3339),
	})
}

// Terminate marks a non-terminal instance Terminated. This is an
// operator action; the runner itself never produces the status.
func (h *Handler) Terminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := h.instances.Terminate(r.Context(), id)
	switch {
	case errors.Is(err, instance.ErrNotFound):
		writeError(w, http.StatusNotFound, "instance_not_found", "")
	case errors.Is(err, instance.ErrTerminal):
		writeError(w, http.StatusConflict, "instance_terminal", "instance already reached a terminal state")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "terminate_failed", err.Error())
	default:
		writeJSON(w, http.StatusOK, ResultResponse{
			Message: fmt.Sprintf("Order %s orchestration terminated.", id),
		})
	}
}

// Checkout accepts a checked-out basket and publishes the fulfillment
// envelope. 202 means durably enqueued, nothing more.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	items := make([]submission.BasketItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = submission.BasketItem{ItemID: it.ItemID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	env, err := h.producer.Submit(r.Context(), &submission.Basket{
		OrderID:         req.OrderID,
		BuyerID:         req.BuyerID,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
	})
	if errors.Is(err, submission.ErrInvalidBasket) {
		writeError(w, http.StatusBadRequest, "checkout_rejected", err.Error())
		return
	}
	if err != nil {
		// Publish failure: the broker is down, not the caller's fault.
		writeError(w, http.StatusBadGateway, "checkout_unavailable", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, CheckoutResponse{
		RequestID: env.RequestID,
		OrderID:   env.OrderID,
	})
}

// waitForCompletion polls the instance status every interval until it
// completes or the wait window closes. maxWait 0 means exactly one check
// with no sleep. The deadline is soft: on expiry the caller gets a
// still-pending answer and the orchestration keeps running.
func (h *Handler) waitForCompletion(ctx context.Context, id string) bool {
	deadline := time.Now().Add(h.maxWait)
	for {
		status, err := h.instances.GetStatus(ctx, id)
		if err == nil && status == instance.StatusCompleted {
			return true
		}
		if err == nil && status.Terminal() {
			return false // Failed/Terminated cannot complete anymore
		}
		if time.Until(deadline) <= 0 {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(h.interval):
		}
	}
}

func (h *Handler) writeAccepted(w http.ResponseWriter, id string) {
	uri := fmt.Sprintf("/api/orders/%s/status", id)
	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		ID:                id,
		StatusQueryGetURI: uri,
		Message:           fmt.Sprintf("Order %s accepted. Check status at %s.", id, uri),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
