package reserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// fallbackNotification is the external escalation contract. Field names
// are part of the wire interface with the fallback endpoint.
type fallbackNotification struct {
	OrderID          int       `json:"orderId"`
	ExceptionMessage string    `json:"exceptionMessage"`
	ExceptionType    string    `json:"exceptionType"`
	OccurredAtUtc    time.Time `json:"occurredAtUtc"`
}

// FallbackNotifier POSTs an escalation payload to a configured endpoint
// when the reservation write exhausts its retries. The response is
// observed for logging only: a failure to escalate never masks, retries,
// or changes the original outcome.
type FallbackNotifier struct {
	client *http.Client
	url    string
}

// NewFallbackNotifier builds a notifier with a process-scoped HTTP
// client. An empty url disables escalation.
func NewFallbackNotifier(url string) *FallbackNotifier {
	return &FallbackNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
}

// Notify sends the escalation for orderID caused by cause. Safe to call
// on a nil receiver.
func (n *FallbackNotifier) Notify(ctx context.Context, orderID int, cause error) {
	if n == nil || n.url == "" {
		return
	}

	payload := fallbackNotification{
		OrderID:          orderID,
		ExceptionMessage: cause.Error(),
		ExceptionType:    fmt.Sprintf("%T", cause),
		OccurredAtUtc:    time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal fallback notification", "order_id", orderID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		slog.ErrorContext(ctx, "failed to build fallback request", "order_id", orderID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		slog.WarnContext(ctx, "fallback endpoint unreachable", "order_id", orderID, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.WarnContext(ctx, "fallback endpoint returned non-success status",
			"order_id", orderID, "status", resp.StatusCode)
		return
	}
	slog.InfoContext(ctx, "fallback endpoint processed escalation", "order_id", orderID)
}
