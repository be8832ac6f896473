package idempotency

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo is a single-table DynamoDB keyed by idempotency_key. It
// evaluates the small expression subset the store issues: OR-ed conditions
// built from attribute_exists, attribute_not_exists, = and <, and update
// expressions made of SET and REMOVE clauses.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k, err := keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	if !holds(deref(in.ConditionExpression), f.items[k], in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[k] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: f.items[k]}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	k, err := keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	item := f.items[k]
	if !holds(deref(in.ConditionExpression), item, in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if item == nil {
		item = map[string]types.AttributeValue{keyAttr: in.Key[keyAttr]}
	}

	expr := strings.TrimPrefix(deref(in.UpdateExpression), "SET ")
	setPart, removePart, _ := strings.Cut(expr, " REMOVE ")
	for _, assign := range strings.Split(setPart, ", ") {
		name, placeholder, ok := strings.Cut(assign, " = ")
		if !ok {
			return nil, errors.New("fake: bad SET clause " + assign)
		}
		item[resolve(name, in.ExpressionAttributeNames)] = in.ExpressionAttributeValues[placeholder]
	}
	if removePart != "" {
		for _, name := range strings.Split(removePart, ", ") {
			delete(item, resolve(name, in.ExpressionAttributeNames))
		}
	}
	f.items[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("fake: TransactWriteItems not used by the idempotency store")
}

func (f *fakeDynamo) status(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.items[key]["status"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func holds(cond string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	if cond == "" {
		return true
	}
	for _, clause := range strings.Split(cond, " OR ") {
		if clauseHolds(clause, item, names, values) {
			return true
		}
	}
	return false
}

func clauseHolds(clause string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) bool {
	switch {
	case strings.HasPrefix(clause, "attribute_not_exists("):
		name := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
		return item == nil || item[resolve(name, names)] == nil
	case strings.HasPrefix(clause, "attribute_exists("):
		name := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_exists("), ")")
		return item != nil && item[resolve(name, names)] != nil
	}
	if item == nil {
		return false
	}
	if name, placeholder, ok := strings.Cut(clause, " = "); ok {
		got, _ := item[resolve(name, names)].(*types.AttributeValueMemberS)
		want, _ := values[placeholder].(*types.AttributeValueMemberS)
		return got != nil && want != nil && got.Value == want.Value
	}
	if name, placeholder, ok := strings.Cut(clause, " < "); ok {
		got, _ := item[resolve(name, names)].(*types.AttributeValueMemberN)
		want, _ := values[placeholder].(*types.AttributeValueMemberN)
		if got == nil || want == nil {
			return false
		}
		a, _ := strconv.ParseInt(got.Value, 10, 64)
		b, _ := strconv.ParseInt(want.Value, 10, 64)
		return a < b
	}
	return false
}

func resolve(name string, names map[string]string) string {
	if n, ok := names[name]; ok {
		return n
	}
	return name
}

func keyOf(item map[string]types.AttributeValue) (string, error) {
	k, ok := item[keyAttr].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("fake: missing idempotency_key")
	}
	return k.Value, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
