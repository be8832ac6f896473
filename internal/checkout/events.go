package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
)

const EventTransactionCompleted = "transaction.completed"

// TransactionCompletedEvent is the queue payload sent after a transaction is
// persisted. The worker reads the full record back from the store.
type TransactionCompletedEvent struct {
	EventType     string    `json:"event_type"`
	TransactionID string    `json:"transaction_id"`
	Number        string    `json:"number"`
	GrandTotal    string    `json:"grand_total"`
	PaymentMethod string    `json:"payment_method"`
	StoreID       string    `json:"store_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// MessageSender is satisfied by aws.Publisher.
type MessageSender interface {
	Send(ctx context.Context, msg aws.Message) error
}

// QueuePublisher publishes transaction events through a MessageSender.
type QueuePublisher struct {
	sender MessageSender
}

func NewQueuePublisher(sender MessageSender) *QueuePublisher {
	return &QueuePublisher{sender: sender}
}

func (q *QueuePublisher) PublishTransactionCompleted(ctx context.Context, tx Transaction) error {
	ev := TransactionCompletedEvent{
		EventType:     EventTransactionCompleted,
		TransactionID: tx.ID,
		Number:        tx.Number,
		GrandTotal:    tx.GrandTotal.String(),
		PaymentMethod: tx.PaymentMethod,
		StoreID:       tx.StoreID,
		OccurredAt:    tx.CreatedAt,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := aws.Message{
		Body: string(body),
		Attributes: map[string]string{
			"event_type":     EventTransactionCompleted,
			"transaction_id": tx.ID,
			"store_id":       tx.StoreID,
		},
		// one group per store keeps a store's sales in order on FIFO queues
		GroupID:         groupID(tx),
		DeduplicationID: tx.ID,
	}
	if err := q.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", EventTransactionCompleted, err)
	}
	return nil
}

func groupID(tx Transaction) string {
	if tx.StoreID != "" {
		return tx.StoreID
	}
	return "default"
}
