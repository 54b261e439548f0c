package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
)

// Store encapsulates idempotency-ledger operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow bounds how long committed responses are replayable (e.g. 48h).
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// LedgerKey scopes the client-supplied key to tenant, method and route so
// the same token can be reused across unrelated operations.
func LedgerKey(tenantID, method, route, clientKey string) string {
	return strings.Join([]string{tenantID, method, route, clientKey}, "#")
}

// Reserve inserts an IN_PROGRESS record before any side-effecting work,
// relying on the key's uniqueness constraint so the loser of a concurrent
// race fails fast instead of double-executing.
//
// Returns Fresh when the reservation is ours, Replay with the stored
// response when an identical request already committed, Pending when it is
// still in flight, and IdempotencyConflict when the key was reused with a
// different payload.
func (s *Store) Reserve(ctx context.Context, ledgerKey, requestHash string) (Outcome, error) {
	now := s.nowFunc().UTC()
	rec := Record{
		LedgerKey:   ledgerKey,
		RequestHash: requestHash,
		Status:      StatusInProgress,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
	})
	if err == nil {
		return Outcome{State: Fresh}, nil
	}
	if !isConditionalFailure(err) {
		return Outcome{}, fmt.Errorf("put item: %w", err)
	}

	// Lost the insert race or the key already exists: inspect the record.
	existing, err := s.Get(ctx, ledgerKey)
	if err != nil {
		return Outcome{}, err
	}
	if existing == nil {
		// Record expired between the failed Put and the Get; retry once.
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: awsString("attribute_not_exists(idempotency_key)"),
		})
		if err == nil {
			return Outcome{State: Fresh}, nil
		}
		if isConditionalFailure(err) {
			return Outcome{State: Pending}, nil
		}
		return Outcome{}, fmt.Errorf("put item (retry): %w", err)
	}

	if existing.RequestHash != requestHash {
		return Outcome{}, apperr.IdempotencyConflict("idempotency key was reused with a different request payload")
	}

	switch existing.Status {
	case StatusDone:
		return Outcome{
			State:          Replay,
			ResponseStatus: existing.ResponseStatus,
			ResponseBody:   existing.ResponseBody,
			OrderID:        existing.OrderID,
		}, nil
	case StatusFailed:
		// Previous attempt failed; retake the reservation so the client retry
		// can re-execute. The FAILED guard keeps two retries from both winning.
		return s.retake(ctx, item)
	default:
		return Outcome{State: Pending, OrderID: existing.OrderID}, nil
	}
}

func (s *Store) retake(ctx context.Context, item map[string]types.AttributeValue) (Outcome, error) {
	_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                 &s.tableName,
		Item:                      item,
		ConditionExpression:       awsString("#s = :failed"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":failed": &types.AttributeValueMemberS{Value: StatusFailed}},
	})
	if err == nil {
		return Outcome{State: Fresh}, nil
	}
	if isConditionalFailure(err) {
		return Outcome{State: Pending}, nil
	}
	return Outcome{}, fmt.Errorf("retake reservation: %w", err)
}

// Get retrieves a ledger record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, ledgerKey string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: ledgerKey},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// CommitItem renders the IN_PROGRESS -> DONE transition, carrying the
// response to replay, as a transact item. Riding it inside the checkout
// TransactWriteItems makes the ledger commit and the order write atomic:
// either both land or neither does, so a retry after any failure can never
// re-execute an already-committed checkout.
func (s *Store) CommitItem(ledgerKey, orderID, responseBody string, responseStatus int) types.TransactWriteItem {
	now := s.nowFunc().UTC()
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: &s.tableName,
			Key: map[string]types.AttributeValue{
				"idempotency_key": &types.AttributeValueMemberS{Value: ledgerKey},
			},
			UpdateExpression: awsString("SET #s = :done, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":done":       &types.AttributeValueMemberS{Value: StatusDone},
				":oid":        &types.AttributeValueMemberS{Value: orderID},
				":rb":         &types.AttributeValueMemberS{Value: responseBody},
				":rs":         &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", responseStatus)},
				":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			},
			ConditionExpression: awsString("#s = :inprogress"),
		},
	}
}

// Fail marks the reservation FAILED so a client retry can retake it.
func (s *Store) Fail(ctx context.Context, ledgerKey, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"idempotency_key": &types.AttributeValueMemberS{Value: ledgerKey},
		},
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":n":          &types.AttributeValueMemberS{Value: note},
			":ua":         &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
		},
		ConditionExpression: awsString("#s = :inprogress"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil
		}
		return fmt.Errorf("update item (fail): %w", err)
	}
	return nil
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var api smithy.APIError
	return errors.As(err, &api) && api.ErrorCode() == "ConditionalCheckFailedException"
}

// Helper
func awsString(s string) *string { return &s }
