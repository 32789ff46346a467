package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
	"github.com/imrishuroy/go-order-outbox/internal/orders"
)

// Metrics receives operational counters. May be nil.
type Metrics interface {
	Count(ctx context.Context, metric string, value float64)
}

// Projector applies inbound payment results to orders exactly once.
//
// Per message it commits one transaction holding the dedup ledger insert
// (conditional on the event id being unseen) and the guarded PENDING ->
// terminal status update. Redelivered events cancel on the ledger condition
// and are skipped without a side effect.
type Projector struct {
	client  aws.DynamoDBAPI
	orders  *orders.Store
	ledger  *Ledger
	metrics Metrics
}

// New wires a Projector to its stores.
func New(client aws.DynamoDBAPI, ordersStore *orders.Store, ledger *Ledger, metrics Metrics) *Projector {
	return &Projector{
		client:  client,
		orders:  ordersStore,
		ledger:  ledger,
		metrics: metrics,
	}
}

// statusFor maps the payment outcome to the order status. The comparison is
// case-insensitive; anything that is not SUCCESS cancels the order.
func statusFor(paymentStatus string) string {
	if strings.EqualFold(paymentStatus, "SUCCESS") {
		return orders.StatusConfirmed
	}
	return orders.StatusCanceled
}

// HandleMessage processes one raw event payload. A returned error means the
// message must stay unacknowledged and be redelivered; every Outcome return
// means the message is finished and safe to ack.
func (p *Projector) HandleMessage(ctx context.Context, body []byte) (Outcome, error) {
	var evt PaymentResult
	if err := json.Unmarshal(body, &evt); err != nil || evt.EventID == "" || evt.OrderID == "" {
		// No dead-letter path: undecodable payloads are dropped after this
		// one parse attempt.
		log.Printf("[projector] dropping malformed payload: %v", err)
		p.count(ctx, "EventsMalformed", 1)
		return OutcomeMalformed, nil
	}
	return p.apply(ctx, evt)
}

func (p *Projector) apply(ctx context.Context, evt PaymentResult) (Outcome, error) {
	newStatus := statusFor(evt.Status)

	_, err := p.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			p.ledger.InsertTransactItem(evt.EventID),
			p.orders.StatusUpdateTransactItem(evt.OrderID, orders.StatusPending, newStatus),
		},
	})
	if err == nil {
		log.Printf("[projector] applied event=%s order=%s status=%s", evt.EventID, evt.OrderID, newStatus)
		p.count(ctx, "EventsApplied", 1)
		return OutcomeApplied, nil
	}

	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return 0, fmt.Errorf("apply event %s: %w", evt.EventID, err)
	}

	// The transaction canceled on one of the two conditions. Distinguish a
	// redelivered event from a stale event against a settled order.
	seen, serr := p.ledger.Seen(ctx, evt.EventID)
	if serr != nil {
		return 0, fmt.Errorf("check ledger for event %s: %w", evt.EventID, serr)
	}
	if seen {
		log.Printf("[projector] duplicate event=%s order=%s", evt.EventID, evt.OrderID)
		p.count(ctx, "EventsDuplicate", 1)
		return OutcomeDuplicate, nil
	}

	ord, gerr := p.orders.Get(ctx, evt.OrderID)
	if gerr != nil {
		return 0, fmt.Errorf("fetch order %s: %w", evt.OrderID, gerr)
	}
	if ord == nil {
		// The order event may still be in flight through the outbox; let the
		// bus redeliver.
		return 0, fmt.Errorf("order %s not found for event %s", evt.OrderID, evt.EventID)
	}
	if ord.Status == orders.StatusPending {
		// Event unseen and order still PENDING: neither condition failed, the
		// transaction canceled for a transient reason (conflict, throttling).
		// Leave the message on the queue so the next delivery applies it.
		return 0, fmt.Errorf("transient cancel applying event %s to order %s: %w", evt.EventID, evt.OrderID, err)
	}

	// Order already settled under a different event. Record this event in the
	// ledger without touching the order so it stops being redelivered.
	if err := p.ledger.Insert(ctx, evt.EventID); err != nil {
		return 0, err
	}
	log.Printf("[projector] stale event=%s order=%s already %s", evt.EventID, evt.OrderID, ord.Status)
	p.count(ctx, "EventsStale", 1)
	return OutcomeStale, nil
}

func (p *Projector) count(ctx context.Context, metric string, value float64) {
	if p.metrics != nil {
		p.metrics.Count(ctx, metric, value)
	}
}
