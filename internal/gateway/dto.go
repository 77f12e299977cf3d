package gateway

import "github.com/jcmexdev/order-fulfillment/internal/fulfillment"

// AcceptedResponse is the 202 "check status at" payload returned when an
// orchestration was started (or is still in flight after the bounded
// wait expired).
type AcceptedResponse struct {
	ID                string `json:"id"`
	StatusQueryGetURI string `json:"statusQueryGetUri"`
	Message           string `json:"message"`
}

// ResultResponse carries a human-readable outcome message.
type ResultResponse struct {
	Message string `json:"message"`
}

// StatusResponse describes one orchestration instance.
type StatusResponse struct {
	InstanceID    string `json:"instance_id"`
	RuntimeStatus string `json:"runtime_status"`
	Output        string `json:"output,omitempty"`
	LastError     string `json:"last_error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// CheckoutRequest is a checked-out basket submitted for fulfillment.
type CheckoutRequest struct {
	OrderID         int                         `json:"order_id"`
	BuyerID         string                      `json:"buyer_id"`
	Items           []CheckoutItemDTO           `json:"items"`
	ShippingAddress fulfillment.ShippingAddress `json:"shipping_address"`
}

type CheckoutItemDTO struct {
	ItemID    int     `json:"item_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// CheckoutResponse acknowledges that the envelope was durably enqueued.
type CheckoutResponse struct {
	RequestID string `json:"request_id"`
	OrderID   int    `json:"order_id"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
