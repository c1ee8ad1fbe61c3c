package aws

import (
	"context"
	"log/slog"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// MetricsReporter publishes listener-failure counts to CloudWatch.
// Reporting is best-effort: a failed PutMetricData is logged and dropped.
type MetricsReporter struct {
	client    CloudWatchAPI
	namespace string
}

// NewMetricsReporter returns a reporter bound to a CloudWatch namespace.
func NewMetricsReporter(client CloudWatchAPI, namespace string) *MetricsReporter {
	return &MetricsReporter{client: client, namespace: namespace}
}

// ReportListenerFailure emits a count metric for a contained event-listener failure,
// dimensioned by event name and listener name.
func (r *MetricsReporter) ReportListenerFailure(ctx context.Context, event, listener string, err error) {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String("ListenerFailure"),
		Timestamp:  sdkaws.Time(time.Now().UTC()),
		Value:      sdkaws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{
			{Name: sdkaws.String("Event"), Value: sdkaws.String(event)},
			{Name: sdkaws.String("Listener"), Value: sdkaws.String(listener)},
		},
	}

	_, putErr := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(r.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if putErr != nil {
		slog.Warn("failed to publish listener failure metric",
			"event", event, "listener", listener, "err", putErr)
	}
}
