package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
	"github.com/hideyau28/hk-marketplace-sub002/internal/catalog"
	"github.com/hideyau28/hk-marketplace-sub002/internal/validation"
)

// amountTolerance is the absolute difference allowed when comparing the
// client's claimed totals against the recomputed ones. Integral amounts
// fall well inside it, so they effectively must match exactly.
const amountTolerance = 1e-4

// PricedItem is a cart line after repricing: the unit price comes from the
// catalog, never from the request.
type PricedItem struct {
	ProductID string  `json:"productId" dynamodbav:"product_id"`
	VariantID string  `json:"variantId,omitempty" dynamodbav:"variant_id,omitempty"`
	Name      string  `json:"name" dynamodbav:"name"`
	UnitPrice float64 `json:"unitPrice" dynamodbav:"unit_price"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
	LineTotal float64 `json:"lineTotal" dynamodbav:"line_total"`
}

// Amounts is the server-computed money breakdown persisted on the order.
type Amounts struct {
	Subtotal    float64 `json:"subtotal" dynamodbav:"subtotal"`
	Discount    float64 `json:"discount,omitempty" dynamodbav:"discount,omitempty"`
	DeliveryFee float64 `json:"deliveryFee,omitempty" dynamodbav:"delivery_fee,omitempty"`
	Total       float64 `json:"total" dynamodbav:"total"`
	Currency    string  `json:"currency" dynamodbav:"currency"`
}

// Reprice recomputes items and totals from catalog truth and checks them
// against the client's claims. A tampered or stale payload is rejected,
// never silently corrected: the client must re-confirm at the real price.
// The delivery fee is the tenant's, charged only for delivery orders.
func Reprice(items []validation.ItemRequest, claimed validation.AmountsRequest, fulfillmentType string, products map[string]catalog.Product, tenant catalog.Tenant) ([]PricedItem, Amounts, error) {
	if !strings.EqualFold(claimed.Currency, tenant.Currency) {
		return nil, Amounts{}, apperr.Validation(fmt.Sprintf("currency %q does not match tenant currency %q", claimed.Currency, tenant.Currency))
	}

	priced := make([]PricedItem, 0, len(items))
	var subtotal float64
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, Amounts{}, apperr.NotFound(fmt.Sprintf("product %s not found", it.ProductID))
		}
		if !p.Active {
			return nil, Amounts{}, apperr.Unavailable(fmt.Sprintf("product %q is not available", p.Title))
		}

		lineTotal := p.Price * float64(it.Quantity)
		subtotal += lineTotal
		priced = append(priced, PricedItem{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      p.Title,
			UnitPrice: p.Price,
			Quantity:  it.Quantity,
			LineTotal: lineTotal,
		})
	}

	var deliveryFee float64
	if fulfillmentType == validation.FulfillmentDelivery {
		deliveryFee = tenant.DeliveryFee
	}
	total := subtotal + deliveryFee - claimed.Discount

	if math.Abs(subtotal-claimed.Subtotal) > amountTolerance {
		return nil, Amounts{}, apperr.AmountMismatch(fmt.Sprintf("subtotal mismatch: expected %.2f, got %.2f", subtotal, claimed.Subtotal)).
			WithDetails(map[string]interface{}{"expectedSubtotal": subtotal, "claimedSubtotal": claimed.Subtotal})
	}
	if math.Abs(deliveryFee-claimed.DeliveryFee) > amountTolerance {
		return nil, Amounts{}, apperr.AmountMismatch(fmt.Sprintf("delivery fee mismatch: expected %.2f, got %.2f", deliveryFee, claimed.DeliveryFee)).
			WithDetails(map[string]interface{}{"expectedDeliveryFee": deliveryFee, "claimedDeliveryFee": claimed.DeliveryFee})
	}
	if math.Abs(total-claimed.Total) > amountTolerance {
		return nil, Amounts{}, apperr.AmountMismatch(fmt.Sprintf("total mismatch: expected %.2f, got %.2f", total, claimed.Total)).
			WithDetails(map[string]interface{}{"expectedTotal": total, "claimedTotal": claimed.Total})
	}

	return priced, Amounts{
		Subtotal:    subtotal,
		Discount:    claimed.Discount,
		DeliveryFee: deliveryFee,
		Total:       total,
		Currency:    strings.ToUpper(claimed.Currency),
	}, nil
}
