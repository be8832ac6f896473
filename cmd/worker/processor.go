package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
	"go.uber.org/zap"
)

// TransactionReader is satisfied by transactions.Store.
type TransactionReader interface {
	Get(ctx context.Context, transactionID string) (*checkout.Transaction, error)
}

// MetricsRecorder is satisfied by aws.MetricsClient.
type MetricsRecorder interface {
	PutMetrics(ctx context.Context, data []aws.Datum, dimensions map[string]string) error
}

// Processor consumes transaction.completed events and records sales metrics.
type Processor struct {
	transactions TransactionReader
	metrics      MetricsRecorder
	logger       *zap.Logger
}

func NewProcessor(transactions TransactionReader, metrics MetricsRecorder, logger *zap.Logger) *Processor {
	return &Processor{
		transactions: transactions,
		metrics:      metrics,
		logger:       logger,
	}
}

// Handle processes an SQS batch. Failed messages are reported individually
// so only they are redelivered; after too many attempts they go to the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker error",
				zap.String("message_id", rec.MessageId),
				zap.Error(err),
			)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg checkout.TransactionCompletedEvent
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.EventType != checkout.EventTransactionCompleted {
		p.logger.Warn("skipping unknown event", zap.String("event_type", msg.EventType))
		return nil
	}

	tx, err := p.transactions.Get(ctx, msg.TransactionID)
	if err != nil {
		return fmt.Errorf("failed to fetch transaction: %w", err)
	}
	if tx == nil {
		return fmt.Errorf("transaction not found: %s", msg.TransactionID)
	}
	if tx.Status != checkout.StatusCompleted {
		// refunded or cancelled before we got here; those paths record their own metrics
		p.logger.Info("skipping non-completed transaction",
			zap.String("transaction_id", tx.ID),
			zap.String("status", tx.Status),
		)
		return nil
	}

	dims := map[string]string{
		"StoreId":       tx.StoreID,
		"PaymentMethod": tx.PaymentMethod,
	}
	sales, _ := tx.GrandTotal.Float64()
	data := []aws.Datum{
		{Name: aws.MetricTransactionsCompleted, Value: 1, Unit: types.StandardUnitCount},
		{Name: aws.MetricSalesAmount, Value: sales, Unit: types.StandardUnitNone},
	}
	if tx.Change.IsPositive() {
		change, _ := tx.Change.Float64()
		data = append(data, aws.Datum{Name: aws.MetricChangeGiven, Value: change, Unit: types.StandardUnitNone})
	}
	// a single request; a redelivered message must not count twice
	if err := p.metrics.PutMetrics(ctx, data, dims); err != nil {
		return fmt.Errorf("record transaction metrics: %w", err)
	}

	p.logger.Info("transaction recorded",
		zap.String("transaction_id", tx.ID),
		zap.String("number", tx.Number),
		zap.String("grand_total", tx.GrandTotal.String()),
	)
	return nil
}
