package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric is a single data point destined for CloudWatch.
type Metric struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
	Timestamp  time.Time
}

// MetricsRecorder publishes metrics under a fixed namespace.
type MetricsRecorder struct {
	CloudWatch CloudWatchAPI
	Namespace  string
}

// NewMetricsRecorder returns a MetricsRecorder for namespace.
func NewMetricsRecorder(cw CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{CloudWatch: cw, Namespace: namespace}
}

// Record sends metrics in a single PutMetricData call.
func (m *MetricsRecorder) Record(ctx context.Context, metrics ...Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, metric := range metrics {
		value := metric.Value
		datum := cwtypes.MetricDatum{
			MetricName: awsString(metric.Name),
			Value:      &value,
			Unit:       metric.Unit,
		}
		if !metric.Timestamp.IsZero() {
			ts := metric.Timestamp
			datum.Timestamp = &ts
		}
		// stable dimension order keeps requests deterministic
		names := make([]string, 0, len(metric.Dimensions))
		for name := range metric.Dimensions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
				Name:  awsString(name),
				Value: awsString(metric.Dimensions[name]),
			})
		}
		data = append(data, datum)
	}

	_, err := m.CloudWatch.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &m.Namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
