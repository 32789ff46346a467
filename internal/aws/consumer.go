package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// Message is one consumed item plus the handle needed to acknowledge it.
type Message struct {
	MessageID     string
	Body          []byte
	ReceiptHandle string
}

// Consumer pulls ordered batches from one SQS queue. Nothing is acknowledged
// implicitly: callers must Ack after their side effects are durable.
type Consumer struct {
	SQS       SQSAPI
	QueueURL  string
	BatchSize int32
	WaitSecs  int32
}

// NewConsumer returns a Consumer with long polling enabled.
func NewConsumer(sqsClient SQSAPI, queueURL string) *Consumer {
	return &Consumer{
		SQS:       sqsClient,
		QueueURL:  queueURL,
		BatchSize: 10,
		WaitSecs:  5,
	}
}

// Receive long-polls for the next batch. An empty slice means the queue was
// quiet for the whole wait window.
func (c *Consumer) Receive(ctx context.Context) ([]Message, error) {
	out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              &c.QueueURL,
		MaxNumberOfMessages:   c.BatchSize,
		WaitTimeSeconds:       c.WaitSecs,
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msg := Message{}
		if m.MessageId != nil {
			msg.MessageID = *m.MessageId
		}
		if m.Body != nil {
			msg.Body = []byte(*m.Body)
		}
		if m.ReceiptHandle != nil {
			msg.ReceiptHandle = *m.ReceiptHandle
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ack deletes the given messages, committing the consumption position.
// Messages left out of the batch are redelivered after visibility timeout.
func (c *Consumer) Ack(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}
	entries := make([]sqstypes.DeleteMessageBatchRequestEntry, 0, len(msgs))
	for i, m := range msgs {
		id := fmt.Sprintf("msg-%d", i)
		handle := m.ReceiptHandle
		entries = append(entries, sqstypes.DeleteMessageBatchRequestEntry{
			Id:            &id,
			ReceiptHandle: &handle,
		})
	}
	out, err := c.SQS.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: &c.QueueURL,
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("delete message batch: %w", err)
	}
	if len(out.Failed) > 0 {
		return fmt.Errorf("delete message batch: %d entries failed", len(out.Failed))
	}
	return nil
}
