package catalog

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
)

// Reader looks up authoritative product and tenant records. It is the
// price/stock truth the repricing engine trusts instead of the client.
type Reader struct {
	client        aws.DynamoDBAPI
	productsTable string
	tenantsTable  string
}

// NewReader returns a Reader bound to the products and tenants tables.
func NewReader(client aws.DynamoDBAPI, productsTable, tenantsTable string) *Reader {
	return &Reader{
		client:        client,
		productsTable: productsTable,
		tenantsTable:  tenantsTable,
	}
}

// FindProducts batch-loads products by id for one tenant. Missing ids are
// simply absent from the result map; callers decide whether that is fatal.
func (r *Reader) FindProducts(ctx context.Context, tenantID string, productIDs []string) (map[string]Product, error) {
	out := make(map[string]Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	// dedupe: the same product can appear on multiple cart lines
	seen := map[string]bool{}
	keys := make([]map[string]types.AttributeValue, 0, len(productIDs))
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		keys = append(keys, map[string]types.AttributeValue{
			"tenant_id":  &types.AttributeValueMemberS{Value: tenantID},
			"product_id": &types.AttributeValueMemberS{Value: id},
		})
	}

	resp, err := r.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{
		RequestItems: map[string]types.KeysAndAttributes{
			r.productsTable: {Keys: keys},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("batch get products: %w", err)
	}

	for _, item := range resp.Responses[r.productsTable] {
		var p Product
		if err := attributevalue.UnmarshalMap(item, &p); err != nil {
			return nil, fmt.Errorf("unmarshal product: %w", err)
		}
		out[p.ProductID] = p
	}
	return out, nil
}

// GetTenant fetches tenant configuration. Returns (nil, nil) if not found.
func (r *Reader) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	resp, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &r.tenantsTable,
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	if len(resp.Item) == 0 {
		return nil, nil
	}
	var t Tenant
	if err := attributevalue.UnmarshalMap(resp.Item, &t); err != nil {
		return nil, fmt.Errorf("unmarshal tenant: %w", err)
	}
	return &t, nil
}
