package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dyntypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
	"github.com/hideyau28/hk-marketplace-sub002/internal/catalog"
	"github.com/hideyau28/hk-marketplace-sub002/internal/validation"
)

// ProductDecrement aggregates all stock taken from one product record.
// A DynamoDB transaction may touch each item at most once, so every cart
// line against the same product folds into a single update.
type ProductDecrement struct {
	TenantID  string
	ProductID string
	Title     string

	// simple shape
	Simple         int
	RemainingStock int

	// combination shape: composite key -> quantity / post-decrement qty
	Combos         map[string]int
	RemainingCombo map[string]int
}

// Ledger plans and renders conditional stock decrements against the
// products table. The condition expressions are the compare-and-swap that
// keeps two concurrent checkouts from both winning the last unit.
type Ledger struct {
	productsTable string
}

func NewLedger(productsTable string) *Ledger {
	return &Ledger{productsTable: productsTable}
}

// Plan validates availability against the catalog snapshot and aggregates
// the decrements per product. Items are checked in cart order so the first
// shortage is the one reported, named with the variant's display label.
func (l *Ledger) Plan(tenantID string, items []validation.ItemRequest, products map[string]catalog.Product) ([]ProductDecrement, error) {
	byProduct := map[string]*ProductDecrement{}
	order := []string{}

	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, apperr.NotFound(fmt.Sprintf("product %s not found", it.ProductID))
		}

		dec, ok := byProduct[it.ProductID]
		if !ok {
			dec = &ProductDecrement{
				TenantID:       tenantID,
				ProductID:      it.ProductID,
				Title:          p.Title,
				Combos:         map[string]int{},
				RemainingCombo: map[string]int{},
			}
			byProduct[it.ProductID] = dec
			order = append(order, it.ProductID)
		}

		if p.HasCombinations() {
			key := it.VariantID
			entry, exists := p.Sizes[key]
			if !exists {
				return nil, apperr.InsufficientStock(fmt.Sprintf("%s (%s) is out of stock", p.Title, key))
			}
			dec.Combos[key] += it.Quantity
			remaining := entry.Qty - dec.Combos[key]
			if remaining < 0 {
				return nil, apperr.InsufficientStock(fmt.Sprintf("%s (%s) is out of stock", p.Title, key))
			}
			dec.RemainingCombo[key] = remaining
			continue
		}

		if p.Stock == nil {
			return nil, apperr.Unavailable(fmt.Sprintf("product %q has no stock configured", p.Title))
		}
		dec.Simple += it.Quantity
		remaining := *p.Stock - dec.Simple
		if remaining < 0 {
			return nil, apperr.InsufficientStock(fmt.Sprintf("%s is out of stock", p.Title))
		}
		dec.RemainingStock = remaining
	}

	out := make([]ProductDecrement, 0, len(order))
	for _, id := range order {
		out = append(out, *byProduct[id])
	}
	return out, nil
}

// TransactItems renders one conditional Update per product for inclusion
// in the checkout TransactWriteItems call. Any failed condition cancels
// the whole transaction, so decrements are all-or-nothing.
func (l *Ledger) TransactItems(plan []ProductDecrement) []dyntypes.TransactWriteItem {
	items := make([]dyntypes.TransactWriteItem, 0, len(plan))
	for _, dec := range plan {
		items = append(items, dyntypes.TransactWriteItem{Update: l.updateFor(dec)})
	}
	return items
}

func (l *Ledger) updateFor(dec ProductDecrement) *dyntypes.Update {
	key := map[string]dyntypes.AttributeValue{
		"tenant_id":  &dyntypes.AttributeValueMemberS{Value: dec.TenantID},
		"product_id": &dyntypes.AttributeValueMemberS{Value: dec.ProductID},
	}

	if len(dec.Combos) == 0 {
		return &dyntypes.Update{
			TableName:                &l.productsTable,
			Key:                      key,
			UpdateExpression:         strPtr("SET #stock = #stock - :q"),
			ConditionExpression:      strPtr("#stock >= :q"),
			ExpressionAttributeNames: map[string]string{"#stock": "stock"},
			ExpressionAttributeValues: map[string]dyntypes.AttributeValue{
				":q": &dyntypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", dec.Simple)},
			},
		}
	}

	names := map[string]string{"#sizes": "sizes", "#qty": "qty"}
	values := map[string]dyntypes.AttributeValue{}
	updateExpr := "SET "
	condExpr := ""
	for i, comboKey := range sortedKeys(dec.Combos) {
		kn := fmt.Sprintf("#k%d", i)
		qv := fmt.Sprintf(":q%d", i)
		names[kn] = comboKey
		values[qv] = &dyntypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", dec.Combos[comboKey])}
		if i > 0 {
			updateExpr += ", "
			condExpr += " AND "
		}
		updateExpr += fmt.Sprintf("#sizes.%s.#qty = #sizes.%s.#qty - %s", kn, kn, qv)
		condExpr += fmt.Sprintf("#sizes.%s.#qty >= %s", kn, qv)
	}

	return &dyntypes.Update{
		TableName:                 &l.productsTable,
		Key:                       key,
		UpdateExpression:          &updateExpr,
		ConditionExpression:       &condExpr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}
}

// SunsetUpdate marks a variant that reached zero as no longer purchasable:
// simple products flip to inactive, combinations get status "hidden". The
// zero-stock condition keeps a concurrent restock from being hidden.
type SunsetUpdate struct {
	TenantID            string
	ProductID           string
	CombinationKey      string // empty for the simple shape
	Key                 map[string]dyntypes.AttributeValue
	UpdateExpression    string
	ConditionExpression string
	Names               map[string]string
	Values              map[string]dyntypes.AttributeValue
}

// SunsetItems returns the best-effort post-commit updates for every entry
// the plan drove to exactly zero.
func (l *Ledger) SunsetItems(plan []ProductDecrement) []SunsetUpdate {
	var out []SunsetUpdate
	for _, dec := range plan {
		key := map[string]dyntypes.AttributeValue{
			"tenant_id":  &dyntypes.AttributeValueMemberS{Value: dec.TenantID},
			"product_id": &dyntypes.AttributeValueMemberS{Value: dec.ProductID},
		}

		if len(dec.Combos) == 0 {
			if dec.Simple > 0 && dec.RemainingStock == 0 {
				out = append(out, SunsetUpdate{
					TenantID:            dec.TenantID,
					ProductID:           dec.ProductID,
					Key:                 key,
					UpdateExpression:    "SET #active = :inactive",
					ConditionExpression: "#stock = :zero",
					Names:               map[string]string{"#active": "active", "#stock": "stock"},
					Values: map[string]dyntypes.AttributeValue{
						":inactive": &dyntypes.AttributeValueMemberBOOL{Value: false},
						":zero":     &dyntypes.AttributeValueMemberN{Value: "0"},
					},
				})
			}
			continue
		}

		for _, comboKey := range sortedKeys(dec.Combos) {
			if dec.RemainingCombo[comboKey] != 0 {
				continue
			}
			out = append(out, SunsetUpdate{
				TenantID:            dec.TenantID,
				ProductID:           dec.ProductID,
				CombinationKey:      comboKey,
				Key:                 key,
				UpdateExpression:    "SET #sizes.#k.#status = :hidden",
				ConditionExpression: "#sizes.#k.#qty = :zero",
				Names: map[string]string{
					"#sizes": "sizes", "#k": comboKey, "#status": "status", "#qty": "qty",
				},
				Values: map[string]dyntypes.AttributeValue{
					":hidden": &dyntypes.AttributeValueMemberS{Value: "hidden"},
					":zero":   &dyntypes.AttributeValueMemberN{Value: "0"},
				},
			})
		}
	}
	return out
}

// ApplySunsets runs the sunset updates individually. Conditional failures
// mean the stock moved since the plan (e.g. a restock) and are ignored;
// other errors are returned for the caller to log. Visibility is a
// storefront concern, so none of this blocks or fails a checkout.
func (l *Ledger) ApplySunsets(ctx context.Context, client aws.DynamoDBAPI, plan []ProductDecrement) error {
	for _, su := range l.SunsetItems(plan) {
		_, err := client.UpdateItem(ctx, &dyn.UpdateItemInput{
			TableName:                 &l.productsTable,
			Key:                       su.Key,
			UpdateExpression:          &su.UpdateExpression,
			ConditionExpression:       &su.ConditionExpression,
			ExpressionAttributeNames:  su.Names,
			ExpressionAttributeValues: su.Values,
		})
		if err != nil {
			var ccf *dyntypes.ConditionalCheckFailedException
			if errors.As(err, &ccf) {
				continue
			}
			return fmt.Errorf("sunset %s: %w", su.ProductID, err)
		}
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func strPtr(s string) *string { return &s }
