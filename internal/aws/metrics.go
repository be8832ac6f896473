package aws

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names
const (
	MetricTransactionsCompleted = "TransactionsCompleted"
	MetricSalesAmount           = "SalesAmount"
	MetricChangeGiven           = "ChangeGiven"
	MetricTransactionsRefunded  = "TransactionsRefunded"
	MetricTransactionsCancelled = "TransactionsCancelled"
	MetricCheckoutSaveFailures  = "CheckoutSaveFailures"
)

// MetricsClient publishes custom metrics to CloudWatch. A disabled client
// accepts every call and sends nothing.
type MetricsClient struct {
	client    CloudWatchAPI
	namespace string
	enabled   bool
	nowFunc   func() time.Time
}

func NewMetricsClient(client CloudWatchAPI, namespace string, enabled bool) *MetricsClient {
	if namespace == "" {
		namespace = "POS"
	}
	return &MetricsClient{
		client:    client,
		namespace: namespace,
		enabled:   enabled,
		nowFunc:   time.Now,
	}
}

// Datum is one data point of a PutMetrics call.
type Datum struct {
	Name  string
	Value float64
	Unit  types.StandardUnit
}

// PutMetric sends a single data point.
func (m *MetricsClient) PutMetric(ctx context.Context, metricName string, value float64, unit types.StandardUnit, dimensions map[string]string) error {
	return m.PutMetrics(ctx, []Datum{{Name: metricName, Value: value, Unit: unit}}, dimensions)
}

// PutMetrics sends data points that share dimensions in one request, so
// they are stored together or not at all.
func (m *MetricsClient) PutMetrics(ctx context.Context, data []Datum, dimensions map[string]string) error {
	if !m.enabled || len(data) == 0 {
		return nil
	}

	dims := toDimensions(dimensions)
	ts := sdkaws.Time(m.nowFunc())
	names := make([]string, 0, len(data))
	metricData := make([]types.MetricDatum, 0, len(data))
	for _, d := range data {
		names = append(names, d.Name)
		metricData = append(metricData, types.MetricDatum{
			MetricName: sdkaws.String(d.Name),
			Value:      sdkaws.Float64(d.Value),
			Unit:       d.Unit,
			Timestamp:  ts,
			Dimensions: dims,
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(m.namespace),
		MetricData: metricData,
	})
	if err != nil {
		return fmt.Errorf("put metrics %s: %w", strings.Join(names, ","), err)
	}
	return nil
}

// RecordCount increments a counter metric.
func (m *MetricsClient) RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error {
	return m.PutMetric(ctx, metricName, 1, types.StandardUnitCount, dimensions)
}

func (m *MetricsClient) IsEnabled() bool {
	return m.enabled
}

// toDimensions sorts by name so identical maps produce identical requests.
func toDimensions(dimensions map[string]string) []types.Dimension {
	names := make([]string, 0, len(dimensions))
	for k, v := range dimensions {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	dims := make([]types.Dimension, 0, len(names))
	for _, k := range names {
		dims = append(dims, types.Dimension{
			Name:  sdkaws.String(k),
			Value: sdkaws.String(dimensions[k]),
		})
	}
	return dims
}
