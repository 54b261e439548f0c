package aws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ReceiptMessage is the payload sent from the API to the receipt worker.
type ReceiptMessage struct {
	TenantID      string `json:"tenant_id"`
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ReceiptPublisher wraps an SQS client and the receipt queue URL.
type ReceiptPublisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewReceiptPublisher returns a publisher bound to a queue URL.
func NewReceiptPublisher(sqsClient SQSAPI, queueURL string) *ReceiptPublisher {
	return &ReceiptPublisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// Publish enqueues a receipt-rendering job. Delivery retries and dead-lettering
// are the queue's redrive policy, not the caller's concern.
func (p *ReceiptPublisher) Publish(ctx context.Context, msg ReceiptMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal receipt message: %w", err)
	}

	bodyStr := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: &bodyStr,
	}

	attrs := map[string]string{
		"tenant_id": msg.TenantID,
		"order_id":  msg.OrderID,
	}
	if msg.CorrelationID != "" {
		attrs["correlation_id"] = msg.CorrelationID
	}
	msgAttrs := map[string]sqstypes.MessageAttributeValue{}
	for k, v := range attrs {
		v := v
		msgAttrs[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: &v,
		}
	}
	input.MessageAttributes = msgAttrs

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
