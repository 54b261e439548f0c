package validation

// ItemRequest is a single cart line as submitted by the client. The
// unit price is claimed, never trusted; the pricing engine recomputes it
// from the catalog.
type ItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	VariantID string  `json:"variantId,omitempty"`
	Name      string  `json:"name" validate:"required"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
}

// AmountsRequest is the client-claimed order total breakdown.
type AmountsRequest struct {
	Subtotal    float64 `json:"subtotal" validate:"gte=0"`
	Discount    float64 `json:"discount,omitempty" validate:"gte=0"`
	DeliveryFee float64 `json:"deliveryFee,omitempty" validate:"gte=0"`
	Total       float64 `json:"total" validate:"gte=0"`
	Currency    string  `json:"currency" validate:"required,len=3,alpha"`
}

// Fulfillment type values accepted on the create request.
const (
	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"
)

// FulfillmentRequest selects pickup or delivery; delivery requires an address.
type FulfillmentRequest struct {
	Type    string `json:"type" validate:"required,oneof=pickup delivery"`
	Address string `json:"address,omitempty"`
}

// CreateOrderRequest is the payload for POST /orders.
type CreateOrderRequest struct {
	CustomerName  string             `json:"customerName" validate:"required"`
	Phone         string             `json:"phone" validate:"required"`
	Email         string             `json:"email,omitempty" validate:"omitempty,email"`
	Items         []ItemRequest      `json:"items" validate:"required,min=1,dive"`
	Amounts       AmountsRequest     `json:"amounts" validate:"required"`
	Fulfillment   FulfillmentRequest `json:"fulfillment" validate:"required"`
	Note          string             `json:"note,omitempty"`
	PaymentMethod string             `json:"paymentMethod,omitempty"`
	PaymentProof  string             `json:"paymentProof,omitempty"`
}

// ListOrdersQuery is the admin listing filter for GET /orders.
type ListOrdersQuery struct {
	Status string `form:"status"`
	Q      string `form:"q"`
	Limit  int    `form:"limit,default=50" validate:"min=1,max=200"`
}
