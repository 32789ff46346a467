package outbox

import (
	"context"
	"log"
	"strconv"
	"time"
)

// Bus is the publish side of the event bus the relay drains into.
type Bus interface {
	Publish(ctx context.Context, topic, partitionKey string, payload []byte, attributes map[string]string) error
}

// Metrics receives operational counters. May be nil.
type Metrics interface {
	Count(ctx context.Context, metric string, value float64)
}

// Relay drains NEW outbox records to the bus on a fixed interval.
//
// Delivery is at-least-once: a crash after publish but before MarkSent leaves
// the record NEW and it is republished on restart. Consumers dedup by event
// id. Running two relays against the same table duplicates publishes; this
// package does not coordinate instances.
type Relay struct {
	store     *Store
	bus       Bus
	topic     string
	interval  time.Duration
	batchSize int32
	metrics   Metrics
}

// NewRelay wires a relay to its outbox store and bus.
func NewRelay(store *Store, bus Bus, topic string, interval time.Duration, batchSize int32, metrics Metrics) *Relay {
	return &Relay{
		store:     store,
		bus:       bus,
		topic:     topic,
		interval:  interval,
		batchSize: batchSize,
		metrics:   metrics,
	}
}

// Run polls until ctx is canceled. Cancellation is checked once per
// iteration; an in-flight batch finishes normally.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	log.Printf("[relay] started, topic=%s interval=%s batch=%d", r.topic, r.interval, r.batchSize)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[relay] stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			r.drainOnce(ctx)
		}
	}
}

// drainOnce fetches one batch and publishes each record, isolating failures
// per record so one bad payload never blocks the rest of the batch.
func (r *Relay) drainOnce(ctx context.Context) {
	recs, err := r.store.FetchNew(ctx, r.batchSize)
	if err != nil {
		log.Printf("[relay] fetch failed: %v", err)
		return
	}
	if len(recs) == 0 {
		return
	}

	var sent, failed int
	for _, rec := range recs {
		attrs := map[string]string{
			"event_type":   rec.EventType,
			"aggregate_id": rec.AggregateID,
			"event_id":     strconv.FormatInt(rec.ID, 10),
		}
		if err := r.bus.Publish(ctx, r.topic, rec.AggregateID, rec.Payload, attrs); err != nil {
			log.Printf("[relay] publish failed for record %d: %v", rec.ID, err)
			if merr := r.store.MarkFailed(ctx, rec.ID); merr != nil {
				log.Printf("[relay] mark FAILED for record %d: %v", rec.ID, merr)
			}
			failed++
			continue
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			// Record stays NEW and will be republished next tick; the
			// consumer's dedup ledger absorbs the duplicate.
			log.Printf("[relay] mark SENT for record %d: %v", rec.ID, err)
			continue
		}
		sent++
	}

	log.Printf("[relay] batch done: %d sent, %d failed, %d total", sent, failed, len(recs))
	if r.metrics != nil {
		if sent > 0 {
			r.metrics.Count(ctx, "OutboxPublished", float64(sent))
		}
		if failed > 0 {
			r.metrics.Count(ctx, "OutboxFailed", float64(failed))
		}
	}
}
