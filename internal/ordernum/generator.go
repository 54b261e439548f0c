package ordernum

import (
	"context"
	"fmt"
	"strconv"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/hideyau28/hk-marketplace-sub002/internal/aws"
)

// Generator hands out human-readable order numbers scoped per tenant per
// calendar day: {PREFIX}-{YYYYMMDD}-{seq:3digits}. The sequence lives in a
// counter row bumped with a single atomic ADD, so two concurrent checkouts
// can never compute the same number.
type Generator struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewGenerator(client aws.DynamoDBAPI, tableName string) *Generator {
	return &Generator{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Next returns the next order number for the tenant. A failed checkout
// after this point skips its sequence value; gaps are fine, duplicates
// are not.
func (g *Generator) Next(ctx context.Context, tenantID, prefix string) (string, error) {
	day := g.nowFunc().UTC().Format("20060102")
	counterID := tenantID + "#" + day

	out, err := g.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &g.tableName,
		Key: map[string]types.AttributeValue{
			"counter_id": &types.AttributeValueMemberS{Value: counterID},
		},
		UpdateExpression:         strPtr("ADD #seq :one"),
		ExpressionAttributeNames: map[string]string{"#seq": "seq"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return "", fmt.Errorf("increment order counter: %w", err)
	}

	seqAttr, ok := out.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("counter %s returned no seq attribute", counterID)
	}
	seq, err := strconv.ParseInt(seqAttr.Value, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse seq %q: %w", seqAttr.Value, err)
	}

	return fmt.Sprintf("%s-%s-%03d", prefix, day, seq), nil
}

func strPtr(s string) *string { return &s }
