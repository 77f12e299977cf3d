// Package broker is the port to the message broker carrying fulfillment
// requests. Delivery is at-least-once; consumers must be idempotent.
package broker

import "context"

// Message is a single delivery from the queue.
type Message struct {
	// Body is the raw serialized fulfillment request, passed downstream
	// verbatim (the reservation artifact stores exactly these bytes).
	Body []byte

	// CorrelationID is the order id as a string; advisory, used for
	// logging and correlation only.
	CorrelationID string
}

// Queue abstracts the broker so the worker and producer can be exercised
// against a fake in tests and against redis in production.
type Queue interface {
	// Publish enqueues a message body with its correlation id.
	Publish(ctx context.Context, body []byte, correlationID string) error

	// Consume blocks until a message arrives or an internal timeout
	// elapses; it returns (nil, nil) on an idle timeout so the caller's
	// loop can check for cancellation.
	Consume(ctx context.Context) (*Message, error)

	// DeadLetter routes a message that exhausted local processing to the
	// dead-letter queue for manual inspection.
	DeadLetter(ctx context.Context, msg *Message) error
}
