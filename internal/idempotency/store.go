package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-pos-cartflow/internal/aws"
)

const keyAttr = "idempotency_key"

// Store keeps checkout idempotency records in DynamoDB.
type Store struct {
	client  aws.DynamoDBAPI
	table   string
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewStore(client aws.DynamoDBAPI, table string, ttl time.Duration) *Store {
	return &Store{
		client:  client,
		table:   table,
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// CreateIfNotExists claims key for a checkout on sessionID. It reports false
// when a live record already holds the key; an expired one is replaced.
func (s *Store) CreateIfNotExists(ctx context.Context, key, sessionID string) (bool, error) {
	now := s.nowFunc().UTC()
	item, err := attributevalue.MarshalMap(Record{
		Key:       key,
		Status:    StatusInProgress,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.table,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(idempotency_key) OR expires_at < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": epoch(now),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim idempotency key %s: %w", key, err)
	}
	return true, nil
}

// Get returns the record for key, or (nil, nil) when it is missing or expired.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.table,
		Key:       itemKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get idempotency key %s: %w", key, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency record: %w", err)
	}
	if rec.expired(s.nowFunc()) {
		return nil, nil
	}
	return &rec, nil
}

// MarkDone completes the claim and keeps resp for replay.
func (s *Store) MarkDone(ctx context.Context, key, transactionID string, resp Response) error {
	return s.transition(ctx, key, StatusDone, statusUpdate{
		set: "transaction_id = :tid, response_body = :rb, response_status = :rs",
		values: map[string]types.AttributeValue{
			":tid": &types.AttributeValueMemberS{Value: transactionID},
			":rb":  &types.AttributeValueMemberS{Value: string(resp.Body)},
			":rs":  &types.AttributeValueMemberN{Value: strconv.Itoa(resp.Status)},
		},
		condition: "attribute_exists(idempotency_key)",
	})
}

// MarkFailed records why the checkout under key did not complete.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.transition(ctx, key, StatusFailed, statusUpdate{
		set: "note = :n",
		values: map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: note},
		},
		condition: "attribute_exists(idempotency_key)",
	})
}

// Reclaim moves a FAILED record back to IN_PROGRESS so the key can be
// retried. It reports false when the record is missing or not FAILED.
func (s *Store) Reclaim(ctx context.Context, key string) (bool, error) {
	err := s.transition(ctx, key, StatusInProgress, statusUpdate{
		remove: "note",
		values: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
		},
		condition: "#s = :failed",
	})
	if isConditionFailed(err) {
		return false, nil
	}
	return err == nil, err
}

type statusUpdate struct {
	set       string
	remove    string
	condition string
	values    map[string]types.AttributeValue
}

// transition sets status and updated_at plus whatever u adds.
func (s *Store) transition(ctx context.Context, key, status string, u statusUpdate) error {
	expr := "SET #s = :status, updated_at = :ua"
	if u.set != "" {
		expr += ", " + u.set
	}
	if u.remove != "" {
		expr += " REMOVE " + u.remove
	}

	values := map[string]types.AttributeValue{
		":status": &types.AttributeValueMemberS{Value: status},
		":ua":     &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)},
	}
	for k, v := range u.values {
		values[k] = v
	}

	input := &dyn.UpdateItemInput{
		TableName:                 &s.table,
		Key:                       itemKey(key),
		UpdateExpression:          &expr,
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	}
	if u.condition != "" {
		input.ConditionExpression = &u.condition
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("set idempotency key %s to %s: %w", key, status, err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{keyAttr: &types.AttributeValueMemberS{Value: key}}
}

func epoch(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.Unix(), 10)}
}

func awsString(s string) *string { return &s }
