package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"

	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
	"github.com/hideyau28/hk-marketplace-sub002/internal/orders"
)

// Processor consumes receipt messages and renders a plain-text receipt for
// each created order. Rendering is idempotent: duplicate deliveries of the
// same order are swallowed via the order's receipt state.
type Processor struct {
	orderStore *orders.Store
	logger     *log.Entry
}

// NewProcessor creates a receipt processor with AWS clients injected.
func NewProcessor(clients *aws.Clients, ordersTable string) *Processor {
	return &Processor{
		orderStore: orders.NewStore(clients.DynamoDB, ordersTable),
		logger:     log.WithField("component", "receipt_worker"),
	}
}

// Handle receives an SQS batch event and processes each message. Errors
// are returned so the Lambda runtime retries; poison messages end up in
// the queue's DLQ via its redrive policy.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.WithError(err).Error("receipt processing failed")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg aws.ReceiptMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	logger := p.logger.WithFields(log.Fields{
		"tenant_id": msg.TenantID,
		"order_id":  msg.OrderID,
		"corr":      msg.CorrelationID,
	})

	order, err := p.orderStore.Get(ctx, msg.TenantID, msg.OrderID)
	if err != nil {
		return fmt.Errorf("fetch order: %w", err)
	}
	if order == nil {
		// Should never happen; surfacing the error routes the message to the DLQ
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	receipt := renderReceipt(order)

	updated, err := p.orderStore.MarkReceiptRendered(ctx, msg.TenantID, msg.OrderID)
	if err != nil {
		return fmt.Errorf("mark receipt rendered: %w", err)
	}
	if !updated {
		logger.Info("receipt already rendered, skipping duplicate delivery")
		return nil
	}

	// Delivery of the rendered receipt (email, chat message) would hang off
	// here; logging it stands in for the delivery channel.
	logger.WithField("receipt_bytes", len(receipt)).Info("receipt rendered")
	return nil
}

// renderReceipt produces the customer-facing order summary.
func renderReceipt(o *orders.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n", o.OrderNumber)
	fmt.Fprintf(&b, "Customer: %s (%s)\n", o.CustomerName, o.Phone)
	b.WriteString("----\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "%-30s x%d  %s %.2f\n", it.Name, it.Quantity, o.Amounts.Currency, it.LineTotal)
	}
	b.WriteString("----\n")
	fmt.Fprintf(&b, "Subtotal: %s %.2f\n", o.Amounts.Currency, o.Amounts.Subtotal)
	if o.Amounts.DeliveryFee > 0 {
		fmt.Fprintf(&b, "Delivery: %s %.2f\n", o.Amounts.Currency, o.Amounts.DeliveryFee)
	}
	if o.Amounts.Discount > 0 {
		fmt.Fprintf(&b, "Discount: -%s %.2f\n", o.Amounts.Currency, o.Amounts.Discount)
	}
	fmt.Fprintf(&b, "Total: %s %.2f\n", o.Amounts.Currency, o.Amounts.Total)
	return b.String()
}
