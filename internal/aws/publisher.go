package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Publisher sends event payloads to topics backed by SQS FIFO queues.
// A topic name resolves to a queue URL; the partition key becomes the
// MessageGroupId so per-aggregate ordering is preserved.
type Publisher struct {
	SQS    SQSAPI
	Queues map[string]string // topic -> queue URL
}

// NewPublisher returns a Publisher bound to a topic->queue mapping.
func NewPublisher(sqsClient SQSAPI, queues map[string]string) *Publisher {
	return &Publisher{
		SQS:    sqsClient,
		Queues: queues,
	}
}

// Publish sends payload to the queue behind topic, keyed by partitionKey.
// attributes are propagated as SQS message attributes. The attribute
// "event_id", when present, doubles as the FIFO deduplication id.
func (p *Publisher) Publish(ctx context.Context, topic, partitionKey string, payload []byte, attributes map[string]string) error {
	queueURL, ok := p.Queues[topic]
	if !ok {
		return fmt.Errorf("no queue configured for topic %q", topic)
	}

	body := string(payload)
	input := &sqs.SendMessageInput{
		QueueUrl:       &queueURL,
		MessageBody:    &body,
		MessageGroupId: &partitionKey,
	}
	if eventID, ok := attributes["event_id"]; ok && eventID != "" {
		input.MessageDeduplicationId = &eventID
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: &v,
			}
		}
		input.MessageAttributes = msgAttrs
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message to %s: %w", topic, err)
	}
	return nil
}

// awsString helper
func awsString(s string) *string { return &s }
