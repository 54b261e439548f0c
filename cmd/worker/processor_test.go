package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
	"github.com/hideyau28/hk-marketplace-sub002/internal/pricing"
	"github.com/hideyau28/hk-marketplace-sub002/internal/testutil"
)

const testOrdersTable = "orders-table"

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	m.Run()
}

func newTestProcessor() (*Processor, *testutil.FakeDynamo) {
	fake := testutil.NewFakeDynamo()
	fake.CreateTable(testOrdersTable, "tenant_id", "order_id")
	return &Processor{
		orderStore: orders.NewStore(fake, testOrdersTable),
		logger:     log.WithField("component", "receipt_worker"),
	}, fake
}

func seedOrder(t *testing.T, fake *testutil.FakeDynamo) orders.Order {
	t.Helper()
	o := orders.Order{
		TenantID:     "shop-1",
		OrderID:      "ord-1",
		OrderNumber:  "HK-20260829-001",
		CustomerName: "Ann",
		Phone:        "91234567",
		Items: []pricing.PricedItem{
			{ProductID: "p1", Name: "Product p1", UnitPrice: 100, Quantity: 2, LineTotal: 200},
		},
		Amounts:       pricing.Amounts{Subtotal: 200, DeliveryFee: 30, Total: 230, Currency: "HKD"},
		Status:        orders.StatusPending,
		PaymentStatus: orders.PaymentPending,
		ReceiptStatus: orders.ReceiptNone,
		CreatedAt:     time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	fake.Seed(testOrdersTable, item)
	return o
}

func receiptEvent(body string) events.SQSEvent {
	return events.SQSEvent{Records: []events.SQSMessage{{Body: body}}}
}

func TestHandle_RendersAndMarksReceipt(t *testing.T) {
	p, fake := newTestProcessor()
	seedOrder(t, fake)

	err := p.Handle(context.Background(), receiptEvent(
		`{"tenant_id":"shop-1","order_id":"ord-1","order_number":"HK-20260829-001"}`,
	))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	item := fake.Item(testOrdersTable, "shop-1", "ord-1")
	rs, ok := item["receipt_status"].(*types.AttributeValueMemberS)
	if !ok || rs.Value != orders.ReceiptRendered {
		t.Fatalf("expected receipt_status RENDERED, got %+v", item["receipt_status"])
	}
}

func TestHandle_DuplicateDeliveryIsSwallowed(t *testing.T) {
	p, fake := newTestProcessor()
	seedOrder(t, fake)
	body := `{"tenant_id":"shop-1","order_id":"ord-1"}`

	if err := p.Handle(context.Background(), receiptEvent(body)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := p.Handle(context.Background(), receiptEvent(body)); err != nil {
		t.Fatalf("duplicate delivery must succeed quietly: %v", err)
	}
}

func TestHandle_MissingOrderGoesToDLQ(t *testing.T) {
	p, _ := newTestProcessor()

	err := p.Handle(context.Background(), receiptEvent(
		`{"tenant_id":"shop-1","order_id":"ghost"}`,
	))
	if err == nil {
		t.Fatal("a missing order must surface an error for the redrive policy")
	}
}

func TestHandle_MalformedBodyGoesToDLQ(t *testing.T) {
	p, _ := newTestProcessor()

	if err := p.Handle(context.Background(), receiptEvent(`{nope`)); err == nil {
		t.Fatal("a malformed message must surface an error")
	}
}

func TestRenderReceipt_Layout(t *testing.T) {
	_, fake := newTestProcessor()
	o := seedOrder(t, fake)

	receipt := renderReceipt(&o)
	for _, want := range []string{
		"Order HK-20260829-001",
		"Customer: Ann (91234567)",
		"Product p1",
		"Subtotal: HKD 200.00",
		"Delivery: HKD 30.00",
		"Total: HKD 230.00",
	} {
		if !strings.Contains(receipt, want) {
			t.Fatalf("receipt missing %q:\n%s", want, receipt)
		}
	}
	if strings.Contains(receipt, "Discount") {
		t.Fatal("zero discount must not print a discount line")
	}
}
