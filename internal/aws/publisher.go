package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

var ErrQueueNotConfigured = errors.New("queue url not configured")

// Message is one queue message. GroupID and DeduplicationID are only sent to
// FIFO queues, where GroupID orders messages and DeduplicationID drops
// repeats inside the SQS five minute window.
type Message struct {
	Body            string
	Attributes      map[string]string
	GroupID         string
	DeduplicationID string
}

// Publisher sends messages to one SQS queue.
type Publisher struct {
	sqs      SQSAPI
	queueURL string
	fifo     bool
}

func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		sqs:      client,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

func (p *Publisher) Send(ctx context.Context, msg Message) error {
	if p.queueURL == "" {
		return ErrQueueNotConfigured
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          sdkaws.String(p.queueURL),
		MessageBody:       sdkaws.String(msg.Body),
		MessageAttributes: stringAttributes(msg.Attributes),
	}
	if p.fifo {
		if msg.GroupID == "" {
			return fmt.Errorf("send message: fifo queue needs a group id")
		}
		input.MessageGroupId = sdkaws.String(msg.GroupID)
		if msg.DeduplicationID != "" {
			input.MessageDeduplicationId = sdkaws.String(msg.DeduplicationID)
		}
	}

	if _, err := p.sqs.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SQS rejects attributes with empty values, so those are dropped.
func stringAttributes(in map[string]string) map[string]sqstypes.MessageAttributeValue {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]sqstypes.MessageAttributeValue, len(in))
	for k, v := range in {
		if v == "" {
			continue
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    sdkaws.String("String"),
			StringValue: sdkaws.String(v),
		}
	}
	return out
}
