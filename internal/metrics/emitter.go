package metrics

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
)

// Emitter pushes counters to CloudWatch. Emission failures are logged and
// swallowed; metrics must never take down the loop they observe.
type Emitter struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewEmitter returns an Emitter for the given namespace.
func NewEmitter(client aws.CloudWatchAPI, namespace string) *Emitter {
	return &Emitter{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count emits a single count datum.
func (e *Emitter) Count(ctx context.Context, metric string, value float64) {
	now := e.nowFunc()
	_, err := e.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &e.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: &metric,
				Value:      &value,
				Unit:       cwtypes.StandardUnitCount,
				Timestamp:  &now,
			},
		},
	})
	if err != nil {
		log.Printf("[metrics] put %s failed: %v", metric, err)
	}
}
