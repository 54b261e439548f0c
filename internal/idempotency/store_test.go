package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hideyau28/hk-marketplace-sub002/internal/apperr"
	"github.com/hideyau28/hk-marketplace-sub002/internal/testutil"
)

const testTable = "idempotency-table"

func newTestStore() (*Store, *testutil.FakeDynamo) {
	fake := testutil.NewFakeDynamo()
	fake.CreateTable(testTable, "idempotency_key")
	return NewStore(fake, testTable, 48*time.Hour), fake
}

// commitDone lands the DONE transition the way the checkout does: as a
// transact item inside a write transaction.
func commitDone(s *Store, fake *testutil.FakeDynamo, key, orderID, body string, status int) error {
	_, err := fake.TransactWriteItems(context.Background(), &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{s.CommitItem(key, orderID, body, status)},
	})
	return err
}

func TestReserve_FreshThenReplay(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	key := LedgerKey("shop-1", "POST", "/orders", "abc")

	out, err := s.Reserve(ctx, key, "hash-1")
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if out.State != Fresh {
		t.Fatalf("expected Fresh, got %v", out.State)
	}

	if err := commitDone(s, fake, key, "order-1", `{"ok":true}`, 201); err != nil {
		t.Fatalf("commit: %v", err)
	}

	out2, err := s.Reserve(ctx, key, "hash-1")
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if out2.State != Replay {
		t.Fatalf("expected Replay, got %v", out2.State)
	}
	if out2.ResponseBody != `{"ok":true}` || out2.ResponseStatus != 201 {
		t.Fatalf("replay must return the stored response verbatim, got %d %q", out2.ResponseStatus, out2.ResponseBody)
	}
	if out2.OrderID != "order-1" {
		t.Fatalf("order id mismatch: %q", out2.OrderID)
	}
}

func TestReserve_ConflictOnDifferentHash(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	key := LedgerKey("shop-1", "POST", "/orders", "abc")

	if _, err := s.Reserve(ctx, key, "hash-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	_, err := s.Reserve(ctx, key, "hash-2")
	if err == nil {
		t.Fatal("expected IdempotencyConflict for reused key with different payload")
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Code != apperr.CodeIdempotencyConflict {
		t.Fatalf("expected IDEMPOTENCY_CONFLICT, got %v", err)
	}
}

func TestReserve_PendingWhileInProgress(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	key := LedgerKey("shop-1", "POST", "/orders", "abc")

	if _, err := s.Reserve(ctx, key, "hash-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	out, err := s.Reserve(ctx, key, "hash-1")
	if err != nil {
		t.Fatalf("duplicate reserve: %v", err)
	}
	if out.State != Pending {
		t.Fatalf("expected Pending while first execution is in flight, got %v", out.State)
	}
}

func TestReserve_RetakesFailedReservation(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	key := LedgerKey("shop-1", "POST", "/orders", "abc")

	if _, err := s.Reserve(ctx, key, "hash-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := s.Fail(ctx, key, "stock ran out"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	out, err := s.Reserve(ctx, key, "hash-1")
	if err != nil {
		t.Fatalf("retry reserve: %v", err)
	}
	if out.State != Fresh {
		t.Fatalf("a failed reservation must be retakable, got %v", out.State)
	}
}

func TestCommitItem_DuplicateCommitCancels(t *testing.T) {
	s, fake := newTestStore()
	ctx := context.Background()
	key := LedgerKey("shop-1", "POST", "/orders", "abc")

	if _, err := s.Reserve(ctx, key, "hash-1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := commitDone(s, fake, key, "order-1", `{"n":1}`, 201); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// the record is no longer IN_PROGRESS, so a second commit cancels its
	// whole transaction instead of overwriting the stored response
	err := commitDone(s, fake, key, "order-2", `{"n":2}`, 500)
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		t.Fatalf("expected the duplicate commit to cancel, got %v", err)
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.ResponseBody != `{"n":1}` || rec.OrderID != "order-1" {
		t.Fatalf("committed record was overwritten: %+v", rec)
	}
}

// expiredRecordClient simulates a record evaporating via TTL between the
// failed insert and the follow-up read: the first Put loses the condition,
// the Get sees nothing, and the retried Put hits a transient service error.
type expiredRecordClient struct {
	*testutil.FakeDynamo
	putCalls int
}

func (c *expiredRecordClient) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	c.putCalls++
	if c.putCalls == 1 {
		return nil, &types.ConditionalCheckFailedException{}
	}
	return nil, errors.New("ProvisionedThroughputExceededException")
}

func (c *expiredRecordClient) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	return &dyn.GetItemOutput{}, nil
}

func TestReserve_RetryPutErrorIsSurfaced(t *testing.T) {
	fake := testutil.NewFakeDynamo()
	fake.CreateTable(testTable, "idempotency_key")
	client := &expiredRecordClient{FakeDynamo: fake}
	s := NewStore(client, testTable, 48*time.Hour)

	// a service error is not evidence that someone else holds the
	// reservation; reporting Pending here would turn a 500 into a 202
	_, err := s.Reserve(context.Background(), "shop-1#POST#/orders#abc", "hash-1")
	if err == nil {
		t.Fatal("expected the retry put error to surface")
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		t.Fatalf("a raw service error must not map to an API error here, got %v", ae)
	}
	if client.putCalls != 2 {
		t.Fatalf("expected insert then retry, got %d puts", client.putCalls)
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newTestStore()

	rec, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for missing key, got %+v", rec)
	}
}
