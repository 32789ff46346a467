package projector

import (
	"context"
	"log"
	"time"

	"github.com/imrishuroy/go-order-outbox/internal/aws"
)

// receiveRetryDelay paces the loop when Receive itself fails; long polling
// only paces the success path.
const receiveRetryDelay = time.Second

// Loop is the pull-based consumer: receive a batch, apply every message,
// then acknowledge only what was handled. A message whose transaction failed
// stays on the queue and is redelivered after visibility timeout -- the
// consumption position is never committed ahead of the side effect.
type Loop struct {
	consumer *aws.Consumer
	proj     *Projector
}

// NewLoop wires the consumer loop.
func NewLoop(consumer *aws.Consumer, proj *Projector) *Loop {
	return &Loop{consumer: consumer, proj: proj}
}

// Run consumes until ctx is canceled. Long polling paces the loop; there is
// no extra sleep between batches.
func (l *Loop) Run(ctx context.Context) {
	log.Printf("[projector] consuming %s", l.consumer.QueueURL)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[projector] stopping: %v", ctx.Err())
			return
		default:
		}

		msgs, err := l.consumer.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[projector] receive failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(receiveRetryDelay):
			}
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		handled := make([]aws.Message, 0, len(msgs))
		for _, m := range msgs {
			outcome, err := l.proj.HandleMessage(ctx, m.Body)
			if err != nil {
				log.Printf("[projector] message %s left on queue: %v", m.MessageID, err)
				continue
			}
			log.Printf("[projector] message %s %s", m.MessageID, outcome)
			handled = append(handled, m)
		}

		if err := l.consumer.Ack(ctx, handled); err != nil {
			// Redelivery of already-applied events is safe; the ledger
			// absorbs them.
			log.Printf("[projector] ack failed: %v", err)
		}
	}
}
