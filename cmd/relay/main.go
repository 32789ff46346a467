package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/imrishuroy/go-order-outbox/internal/aws"
	"github.com/imrishuroy/go-order-outbox/internal/metrics"
	"github.com/imrishuroy/go-order-outbox/internal/outbox"
)

const topicOrders = "orders.v1"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	interval := durationEnv("RELAY_POLL_INTERVAL", time.Second)
	batchSize := int32Env("RELAY_BATCH_SIZE", 100)

	store := outbox.NewStore(clients.DynamoDB, os.Getenv("OUTBOX_TABLE"))
	publisher := aws.NewPublisher(clients.SQS, map[string]string{
		topicOrders: os.Getenv("ORDER_EVENTS_QUEUE_URL"),
	})
	emitter := metrics.NewEmitter(clients.CloudWatch, "OrderOutbox")

	relay := outbox.NewRelay(store, publisher, topicOrders, interval, batchSize, emitter)
	relay.Run(ctx)
}

func durationEnv(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("invalid %s, using %s", name, def)
	}
	return def
}

func int32Env(name string, def int32) int32 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			return int32(n)
		}
		log.Printf("invalid %s, using %d", name, def)
	}
	return def
}
