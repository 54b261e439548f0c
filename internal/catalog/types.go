package catalog

// CombinationEntry is one compound-variant stock counter inside a
// product's sizes map, keyed by "{dimA}/{dimB}".
type CombinationEntry struct {
	Qty    int    `dynamodbav:"qty"`
	Status string `dynamodbav:"status,omitempty"` // "" (visible) | "hidden"
}

// Product is the catalog snapshot read by the order pipeline. Exactly one
// inventory shape applies per product: Stock for simple variants, Sizes
// for combination inventory.
type Product struct {
	TenantID  string                      `dynamodbav:"tenant_id"`  // PK
	ProductID string                      `dynamodbav:"product_id"` // SK
	Title     string                      `dynamodbav:"title"`
	Price     float64                     `dynamodbav:"price"`
	Active    bool                        `dynamodbav:"active"`
	Stock     *int                        `dynamodbav:"stock,omitempty"`
	Sizes     map[string]CombinationEntry `dynamodbav:"sizes,omitempty"`
}

// HasCombinations reports whether the product uses combination inventory.
func (p Product) HasCombinations() bool {
	return len(p.Sizes) > 0
}

// Tenant carries the per-tenant configuration the pipeline needs: the
// order-number prefix, the settlement currency and enabled payment methods.
type Tenant struct {
	TenantID       string   `dynamodbav:"tenant_id"` // PK
	Name           string   `dynamodbav:"name"`
	Currency       string   `dynamodbav:"currency"` // 3-letter code
	OrderPrefix    string   `dynamodbav:"order_prefix"`
	PaymentMethods []string `dynamodbav:"payment_methods,omitempty"`
	// PaymentConfigs holds the tenant's settings per provider id, e.g.
	// bank account details or a QR image URL.
	PaymentConfigs map[string]map[string]string `dynamodbav:"payment_configs,omitempty"`
	DeliveryFee    float64                      `dynamodbav:"delivery_fee,omitempty"`
}

// PaymentMethodEnabled reports whether the tenant accepts the given provider id.
func (t Tenant) PaymentMethodEnabled(id string) bool {
	for _, m := range t.PaymentMethods {
		if m == id {
			return true
		}
	}
	return false
}
