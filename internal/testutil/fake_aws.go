package testutil

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// FakeSQS records sent messages for assertions.
type FakeSQS struct {
	mu       sync.Mutex
	Messages []string
	Err      error // when set, SendMessage fails with it
}

func (f *FakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	f.Messages = append(f.Messages, *params.MessageBody)
	return &sqs.SendMessageOutput{}, nil
}

// Sent returns a copy of the recorded message bodies.
func (f *FakeSQS) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Messages...)
}

// FakeCloudWatch counts metric datapoints by name.
type FakeCloudWatch struct {
	mu     sync.Mutex
	Counts map[string]int
}

func (f *FakeCloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Counts == nil {
		f.Counts = map[string]int{}
	}
	for _, d := range params.MetricData {
		if d.MetricName != nil {
			f.Counts[*d.MetricName]++
		}
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}
