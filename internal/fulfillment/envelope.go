// Package fulfillment defines the message envelope shared by every stage
// of the order-fulfillment pipeline.
//
// The envelope is immutable once published: no stage mutates it, each
// stage only derives new artifacts keyed by the order id. The order id is
// the business key and the idempotency key for everything downstream.
package fulfillment

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Request is a single fulfillment request as it travels over the wire.
type Request struct {
	// RequestID is an opaque token generated at submission time. It is
	// carried for traceability only and never drives business logic.
	RequestID string `json:"request_id"`

	// OrderID is the business key. Unique per order for the lifetime of
	// the system; every downstream idempotency key derives from it.
	OrderID int `json:"order_id"`

	Items      []Item  `json:"items"`
	FinalPrice float64 `json:"final_price"`

	// ShippingAddress is validated by the producer, never downstream.
	ShippingAddress ShippingAddress `json:"shipping_address"`
}

type Item struct {
	ItemID    int     `json:"item_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

func (i Item) Subtotal() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
}

// Total derives the price from the items.
func (r *Request) Total() float64 {
	var total float64
	for _, it := range r.Items {
		total += it.Subtotal()
	}
	return total
}

// InstanceID returns the orchestration instance id for this order.
// The orderId-as-instance-id convention is the system's idempotency
// boundary: at most one live orchestration per order at any time.
func (r *Request) InstanceID() string {
	return strconv.Itoa(r.OrderID)
}

// Validate checks the boundary invariants. It is called once where the
// envelope enters the system; downstream stages trust the envelope and do
// not re-derive the price.
func (r *Request) Validate() error {
	if r.OrderID <= 0 {
		return fmt.Errorf("invalid order id %d", r.OrderID)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("order %d has no items", r.OrderID)
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return fmt.Errorf("order %d: item %d has non-positive quantity %d", r.OrderID, it.ItemID, it.Quantity)
		}
		if it.UnitPrice < 0 {
			return fmt.Errorf("order %d: item %d has negative unit price %v", r.OrderID, it.ItemID, it.UnitPrice)
		}
	}
	if math.Abs(r.FinalPrice-r.Total()) > 1e-9 {
		return fmt.Errorf("order %d: final price %v does not match item total %v", r.OrderID, r.FinalPrice, r.Total())
	}
	return nil
}

// ParseOrderID extracts the order id from a raw message body without
// decoding the full envelope. It reports an error when the body is not
// JSON or the order_id field is absent; the caller decides the fallback
// policy for malformed input.
func ParseOrderID(body []byte) (int, error) {
	var probe struct {
		OrderID *int `json:"order_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return 0, fmt.Errorf("parse order id: %w", err)
	}
	if probe.OrderID == nil {
		return 0, fmt.Errorf("parse order id: order_id field missing")
	}
	return *probe.OrderID, nil
}
