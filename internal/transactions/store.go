package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
	"github.com/imrishuroy/go-pos-cartflow/internal/checkout"
)

var (
	// ErrStatusMismatch is returned when a conditional status update fails.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateTransaction is returned when a transaction with the same ID
	// already exists or the idempotency record has gone missing.
	ErrDuplicateTransaction = errors.New("transaction already stored")
)

// Store encapsulates operations on the transactions table.
type Store struct {
	client           aws.DynamoDBAPI
	tableName        string
	idempotencyTable string
	nowFunc          func() time.Time
}

// NewStore creates a new transactions Store. idempotencyTable may be empty,
// in which case Save never touches idempotency records.
func NewStore(client aws.DynamoDBAPI, tableName, idempotencyTable string) *Store {
	return &Store{
		client:           client,
		tableName:        tableName,
		idempotencyTable: idempotencyTable,
		nowFunc:          time.Now,
	}
}

// Save writes tx to the transactions table. When idempotencyKey is set, the
// idempotency record is linked to the transaction in the same TransactWriteItems
// call, so either both writes land or neither does.
func (s *Store) Save(ctx context.Context, tx checkout.Transaction, idempotencyKey string) (checkout.Transaction, error) {
	now := s.nowFunc().UTC()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}

	rec := toRecord(tx)
	rec.UpdatedAt = now
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return checkout.Transaction{}, fmt.Errorf("marshal transaction item: %w", err)
	}

	transactItems := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                item,
				ConditionExpression: awsString("attribute_not_exists(transaction_id)"),
			},
		},
	}
	if idempotencyKey != "" && s.idempotencyTable != "" {
		transactItems = append(transactItems, types.TransactWriteItem{
			Update: &types.Update{
				TableName: &s.idempotencyTable,
				Key: map[string]types.AttributeValue{
					"idempotency_key": &types.AttributeValueMemberS{Value: idempotencyKey},
				},
				UpdateExpression:    awsString("SET transaction_id = :tid, updated_at = :ua"),
				ConditionExpression: awsString("attribute_exists(idempotency_key)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":tid": &types.AttributeValueMemberS{Value: tx.ID},
					":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
				},
			},
		})
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: transactItems,
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) {
			return checkout.Transaction{}, fmt.Errorf("%w: %v", ErrDuplicateTransaction, err)
		}
		return checkout.Transaction{}, fmt.Errorf("transact write: %w", err)
	}
	return tx, nil
}

// Get fetches a transaction by transaction_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, transactionID string) (*checkout.Transaction, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal transaction: %w", err)
	}
	tx, err := rec.toTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", transactionID, err)
	}
	return &tx, nil
}

// UpdateStatus conditionally moves a transaction from expectedStatus to
// newStatus. Returns ErrStatusMismatch if the stored status differs or the
// transaction does not exist.
func (s *Store) UpdateStatus(ctx context.Context, transactionID, expectedStatus, newStatus string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"transaction_id": &types.AttributeValueMemberS{Value: transactionID},
		},
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }
