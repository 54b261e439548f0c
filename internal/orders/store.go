package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// CreateCheckout writes the order, commits the idempotency reservation and
// applies every stock decrement in one TransactWriteItems call, so the
// ledger can never disagree with the orders table: a retry after any
// failure finds either a committed DONE record to replay or no order at
// all. The transact item order is fixed (ledger commit, order put, stock
// updates) so a cancellation reason index maps back to what failed:
//   - the ledger commit failing means the reservation was lost (another
//     writer committed or failed it); the caller should re-inspect the ledger
//   - a stock update failing means that product sold out underneath us,
//     reported as InsufficientStock named by stockLabels
func (s *Store) CreateCheckout(ctx context.Context, order Order, ledgerCommit types.TransactWriteItem, stockItems []types.TransactWriteItem, stockLabels []string) error {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := make([]types.TransactWriteItem, 0, 2+len(stockItems))
	transactItems = append(transactItems, ledgerCommit)
	transactItems = append(transactItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: awsString("attribute_not_exists(order_id)"),
		},
	})
	transactItems = append(transactItems, stockItems...)

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return s.mapCancellation(tce, stockLabels)
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

func (s *Store) mapCancellation(tce *types.TransactionCanceledException, stockLabels []string) error {
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code == "None" {
			continue
		}
		switch {
		case i >= 2 && i-2 < len(stockLabels):
			return apperr.InsufficientStock(fmt.Sprintf("%s is out of stock", stockLabels[i-2]))
		case i == 0:
			return apperr.IdempotencyConflict("request reservation was superseded")
		default:
			return apperr.Internal("order write conflicted")
		}
	}
	return apperr.Internal("checkout transaction canceled")
}

// Get fetches an order. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, tenantID, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
			"order_id":  &types.AttributeValueMemberS{Value: orderID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListFilter narrows the admin listing.
type ListFilter struct {
	Status string
	Q      string // matches order number or phone
	Limit  int
}

// List returns the tenant's orders, newest first. The tenant partition is
// queried and filtered in-process; result sets per tenant per day are small
// enough that a dedicated GSI has not been worth its write cost.
func (s *Store) List(ctx context.Context, tenantID string, filter ListFilter) ([]Order, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	// drain the partition: a single Query returns at most one page
	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: awsString("tenant_id = :t"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberS{Value: tenantID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	var all []Order
	if err := attributevalue.UnmarshalListOfMaps(items, &all); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}

	filtered := make([]Order, 0, len(all))
	for _, o := range all {
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.Q != "" &&
			!strings.Contains(o.OrderNumber, filter.Q) &&
			!strings.Contains(o.Phone, filter.Q) {
			continue
		}
		filtered = append(filtered, o)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	if len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

// MarkReceiptRendered flips the order's receipt state. Returns false when
// the receipt was already rendered, which lets the worker swallow
// duplicate queue deliveries.
func (s *Store) MarkReceiptRendered(ctx context.Context, tenantID, orderID string) (bool, error) {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"tenant_id": &types.AttributeValueMemberS{Value: tenantID},
			"order_id":  &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:         awsString("SET #rs = :rendered, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#rs": "receipt_status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":rendered": &types.AttributeValueMemberS{Value: ReceiptRendered},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("#rs <> :rendered"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, fmt.Errorf("mark receipt rendered: %w", err)
	}
	return true, nil
}

func awsString(s string) *string { return &s }
