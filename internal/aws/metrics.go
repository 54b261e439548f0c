package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	log "github.com/sirupsen/logrus"
)

const metricNamespace = "Marketplace/Orders"

// Metric names emitted by the order pipeline.
const (
	MetricOrderCreated      = "OrderCreated"
	MetricIdempotentReplay  = "IdempotentReplay"
	MetricRateLimited       = "RateLimited"
	MetricInsufficientStock = "InsufficientStock"
)

// Metrics emits best-effort counters to CloudWatch. A nil *Metrics is a
// valid no-op emitter so tests and local runs can skip wiring CloudWatch.
type Metrics struct {
	client CloudWatchAPI
	logger *log.Entry
}

func NewMetrics(client CloudWatchAPI) *Metrics {
	return &Metrics{
		client: client,
		logger: log.WithField("component", "metrics"),
	}
}

// Count emits a count-unit datum with a tenant dimension. Failures are
// logged and swallowed; metrics never fail a request.
func (m *Metrics) Count(ctx context.Context, name, tenantID string) {
	if m == nil || m.client == nil {
		return
	}
	now := time.Now().UTC()
	one := 1.0
	input := &cloudwatch.PutMetricDataInput{
		Namespace: awsString(metricNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &name,
				Timestamp:  &now,
				Value:      &one,
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: awsString("TenantId"), Value: &tenantID},
				},
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WithError(err).WithField("metric", name).Warn("put metric data failed")
	}
}
