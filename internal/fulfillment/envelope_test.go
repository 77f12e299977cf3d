package fulfillment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() Request {
	return Request{
		RequestID: "req-1",
		OrderID:   42,
		Items: []Item{
			{ItemID: 1, Quantity: 2, UnitPrice: 10.50},
			{ItemID: 2, Quantity: 1, UnitPrice: 4.00},
		},
		FinalPrice: 25.00,
		ShippingAddress: ShippingAddress{
			Street: "123 Main St", City: "Springfield", State: "IL",
			Country: "US", ZipCode: "62701",
		},
	}
}

func TestValidate(t *testing.T) {
	req := validRequest()
	require.NoError(t, req.Validate())
	assert.Equal(t, "42", req.InstanceID())

	t.Run("price mismatch", func(t *testing.T) {
		r := validRequest()
		r.FinalPrice = 99.99
		assert.Error(t, r.Validate())
	})

	t.Run("no items", func(t *testing.T) {
		r := validRequest()
		r.Items = nil
		assert.Error(t, r.Validate())
	})

	t.Run("non-positive quantity", func(t *testing.T) {
		r := validRequest()
		r.Items[0].Quantity = 0
		r.FinalPrice = r.Total()
		assert.Error(t, r.Validate())
	})

	t.Run("negative unit price", func(t *testing.T) {
		r := validRequest()
		r.Items[0].UnitPrice = -1
		r.FinalPrice = r.Total()
		assert.Error(t, r.Validate())
	})

	t.Run("bad order id", func(t *testing.T) {
		r := validRequest()
		r.OrderID = 0
		assert.Error(t, r.Validate())
	})
}

func TestParseOrderID(t *testing.T) {
	id, err := ParseOrderID([]byte(`{"order_id": 42, "items": []}`))
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	_, err = ParseOrderID([]byte(`{"items": []}`))
	assert.Error(t, err, "missing order_id must be reported, not defaulted")

	_, err = ParseOrderID([]byte(`not json at all`))
	assert.Error(t, err)
}

func TestTotal(t *testing.T) {
	req := validRequest()
	assert.InDelta(t, 25.00, req.Total(), 1e-9)
}
