// Package reserver consumes queued fulfillment requests and persists a
// reservation artifact per order, retrying transient storage failures and
// escalating to a fallback channel when the retry budget is exhausted.
package reserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
	"github.com/jcmexdev/order-fulfillment/internal/reserver/blob"
)

// Config tunes the handler's retry policy. The zero value gets the
// production defaults: 3 retries after the initial attempt, with delays
// of 2s, 4s, 8s before each retry.
type Config struct {
	Retries   uint64
	BaseDelay time.Duration
}

func (c *Config) defaults() {
	if c.Retries == 0 {
		c.Retries = 3
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = 2 * time.Second
	}
}

// Handler processes one delivered message at a time. It may be invoked
// more than once for the same logical message (at-least-once delivery)
// and produces the same observable end-state each time.
type Handler struct {
	blobs    blob.Store
	notifier *FallbackNotifier // nil-safe: escalation skipped if nil
	cfg      Config
	now      func() time.Time
}

func NewHandler(blobs blob.Store, notifier *FallbackNotifier, cfg Config) *Handler {
	cfg.defaults()
	return &Handler{
		blobs:    blobs,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Handle parses the order id out of the message body, writes the raw
// body to the deterministic blob name under the retry policy, and on
// exhaustion escalates to the fallback endpoint before returning the
// original failure so the broker's redelivery/dead-letter policy takes
// over.
func (h *Handler) Handle(ctx context.Context, body []byte) error {
	orderID, err := fulfillment.ParseOrderID(body)
	if err != nil {
		// Best-effort policy for malformed input: a timestamp id lets
		// the write proceed at the cost of idempotency for this message.
		orderID = int(h.now().Unix())
		slog.WarnContext(ctx, "failed to parse order id from message, using timestamp",
			"order_id", orderID, "error", err)
	}

	blobName := fmt.Sprintf("order-%d.json", orderID)

	writeErr := backoff.RetryNotify(
		func() error {
			return h.blobs.Put(ctx, blobName, body)
		},
		backoff.WithContext(backoff.WithMaxRetries(h.retryPolicy(), h.cfg.Retries), ctx),
		func(err error, next time.Duration) {
			slog.WarnContext(ctx, "retrying blob write",
				"blob", blobName, "retry_in", next, "error", err)
		},
	)
	if writeErr != nil {
		slog.ErrorContext(ctx, "blob write exhausted retries, escalating to fallback",
			"order_id", orderID, "blob", blobName, "error", writeErr)
		h.notifier.Notify(ctx, orderID, writeErr)
		return fmt.Errorf("store reservation for order %d: %w", orderID, writeErr)
	}

	slog.InfoContext(ctx, "reservation stored", "order_id", orderID, "blob", blobName)
	return nil
}

// retryPolicy is the deterministic exponential schedule: the delay before
// retry i (1-indexed) is BaseDelay * 2^(i-1).
func (h *Handler) retryPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = 1 * time.Hour
	b.MaxElapsedTime = 0 // the budget is the attempt count, not wall clock
	return b
}
