package orders

import (
	"time"

	"github.com/hideyau28/hk-marketplace-sub002/internal/pricing"
)

// Order statuses. Orders are born PENDING; everything after that is an
// admin or webhook action outside the ingestion pipeline.
const (
	StatusPending    = "PENDING"
	StatusConfirmed  = "CONFIRMED"
	StatusProcessing = "PROCESSING"
	StatusShipped    = "SHIPPED"
	StatusDelivered  = "DELIVERED"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
	StatusRefunded   = "REFUNDED"

	// Legacy aliases still present on old rows. Valid values, but no
	// transition in this pipeline produces or consumes them.
	StatusPaid       = "PAID"
	StatusFulfilling = "FULFILLING"
	StatusDisputed   = "DISPUTED"
)

// Payment sub-states, independent of the order status.
const (
	PaymentPending   = "pending"
	PaymentUploaded  = "uploaded"
	PaymentConfirmed = "confirmed"
	PaymentRejected  = "rejected"
)

// Receipt rendering states set by the worker.
const (
	ReceiptNone     = "NONE"
	ReceiptRendered = "RENDERED"
)

// Fulfillment types.
const (
	FulfillmentPickup   = "pickup"
	FulfillmentDelivery = "delivery"
)

var statusTransitions = map[string][]string{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusRefunded},
	StatusConfirmed:  {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

var validStatuses = map[string]struct{}{
	StatusPending: {}, StatusConfirmed: {}, StatusProcessing: {},
	StatusShipped: {}, StatusDelivered: {}, StatusCompleted: {},
	StatusCancelled: {}, StatusRefunded: {},
	StatusPaid: {}, StatusFulfilling: {}, StatusDisputed: {},
}

// IsValidStatus accepts current and legacy status values.
func IsValidStatus(s string) bool {
	_, ok := validStatuses[s]
	return ok
}

// CanTransition reports whether from -> to is a legal lifecycle move.
// Legacy aliases are terminal here: nothing transitions into or out of them.
func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// PaymentAttempt is one entry in the order's embedded payment history.
type PaymentAttempt struct {
	Method    string    `json:"method" dynamodbav:"method"`
	Reference string    `json:"reference,omitempty" dynamodbav:"reference,omitempty"`
	Proof     string    `json:"proof,omitempty" dynamodbav:"proof,omitempty"`
	Status    string    `json:"status" dynamodbav:"status"`
	CreatedAt time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// Order is the persisted aggregate. Items and Amounts always come from the
// repricing engine; the client's claimed numbers never reach this struct.
type Order struct {
	TenantID           string               `json:"tenantId" dynamodbav:"tenant_id"` // PK
	OrderID            string               `json:"id" dynamodbav:"order_id"`        // SK
	OrderNumber        string               `json:"orderNumber" dynamodbav:"order_number"`
	CustomerName       string               `json:"customerName" dynamodbav:"customer_name"`
	Phone              string               `json:"phone" dynamodbav:"phone"`
	Email              string               `json:"email,omitempty" dynamodbav:"email,omitempty"`
	Items              []pricing.PricedItem `json:"items" dynamodbav:"items"`
	Amounts            pricing.Amounts      `json:"amounts" dynamodbav:"amounts"`
	Status             string               `json:"status" dynamodbav:"status"`
	PaymentMethod      string               `json:"paymentMethod,omitempty" dynamodbav:"payment_method,omitempty"`
	PaymentStatus      string               `json:"paymentStatus" dynamodbav:"payment_status"`
	PaymentAttempts    []PaymentAttempt     `json:"paymentAttempts,omitempty" dynamodbav:"payment_attempts,omitempty"`
	FulfillmentType    string               `json:"fulfillmentType" dynamodbav:"fulfillment_type"`
	FulfillmentAddress string               `json:"fulfillmentAddress,omitempty" dynamodbav:"fulfillment_address,omitempty"`
	Note               string               `json:"note,omitempty" dynamodbav:"note,omitempty"`
	ReceiptStatus      string               `json:"-" dynamodbav:"receipt_status,omitempty"`
	CreatedAt          time.Time            `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt          time.Time            `json:"-" dynamodbav:"updated_at"`
}
