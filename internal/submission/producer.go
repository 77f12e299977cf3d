// Package submission is the producer side of the pipeline: it turns a
// checked-out basket into an immutable fulfillment envelope and publishes
// it to the broker. The placing request only guarantees the envelope was
// durably enqueued, never that fulfillment completed.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/jcmexdev/order-fulfillment/internal/broker"
	"github.com/jcmexdev/order-fulfillment/internal/fulfillment"
)

// Basket is a checked-out basket ready for fulfillment. The order id is
// assigned upstream when the order row is created.
type Basket struct {
	OrderID         int
	BuyerID         string
	Items           []BasketItem
	ShippingAddress fulfillment.ShippingAddress
}

type BasketItem struct {
	ItemID    int
	Quantity  int
	UnitPrice float64
}

// ErrInvalidBasket marks a rejection of the basket itself. Anything not
// wrapping it is a downstream failure (marshal, broker publish), which
// callers must not blame on the client.
var ErrInvalidBasket = errors.New("invalid basket")

// Producer builds and publishes fulfillment envelopes.
type Producer struct {
	queue broker.Queue
}

func NewProducer(queue broker.Queue) *Producer {
	return &Producer{queue: queue}
}

// Submit derives the envelope from the basket (fresh request id, final
// price computed from the items), validates it, and publishes it with
// correlation id = order id. Returns the published envelope.
func (p *Producer) Submit(ctx context.Context, basket *Basket) (*fulfillment.Request, error) {
	if len(basket.Items) == 0 {
		return nil, fmt.Errorf("checkout: %w: basket has no items", ErrInvalidBasket)
	}

	items := make([]fulfillment.Item, len(basket.Items))
	for i, it := range basket.Items {
		items[i] = fulfillment.Item{ItemID: it.ItemID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}

	req := &fulfillment.Request{
		RequestID:       uuid.NewString(),
		OrderID:         basket.OrderID,
		Items:           items,
		ShippingAddress: basket.ShippingAddress,
	}
	req.FinalPrice = req.Total()

	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("checkout: %w: %s", ErrInvalidBasket, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("checkout: marshal envelope: %w", err)
	}
	if err := p.queue.Publish(ctx, body, strconv.Itoa(req.OrderID)); err != nil {
		return nil, fmt.Errorf("checkout: publish order %d: %w", req.OrderID, err)
	}

	slog.InfoContext(ctx, "fulfillment request published",
		"order_id", req.OrderID, "request_id", req.RequestID)
	return req, nil
}
