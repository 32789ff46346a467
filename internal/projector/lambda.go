package projector

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
)

// HandleSQSEvent adapts the projector to a Lambda SQS trigger. Messages whose
// transaction failed are reported as batch item failures so only they are
// redelivered; everything else is acknowledged by the runtime.
func (p *Projector) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range event.Records {
		outcome, err := p.HandleMessage(ctx, []byte(rec.Body))
		if err != nil {
			log.Printf("[projector] message %s failed, will retry: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
			continue
		}
		log.Printf("[projector] message %s %s", rec.MessageId, outcome)
	}
	return resp, nil
}
