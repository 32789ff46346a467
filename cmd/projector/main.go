package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
	"github.com/imrishuroy/go-order-outbox/internal/metrics"
	"github.com/imrishuroy/go-order-outbox/internal/orders"
	"github.com/imrishuroy/go-order-outbox/internal/projector"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	ordersStore := orders.NewStore(clients.DynamoDB, os.Getenv("ORDERS_TABLE"), os.Getenv("ORDER_ITEMS_TABLE"))
	ledger := projector.NewLedger(clients.DynamoDB, os.Getenv("PROCESSED_EVENTS_TABLE"))
	emitter := metrics.NewEmitter(clients.CloudWatch, "OrderOutbox")

	proj := projector.New(clients.DynamoDB, ordersStore, ledger, emitter)

	// RUN_LOCAL runs the pull-based poll loop; the default is a Lambda SQS
	// trigger with partial batch responses.
	if os.Getenv("RUN_LOCAL") == "true" {
		consumer := aws.NewConsumer(clients.SQS, os.Getenv("PAYMENTS_QUEUE_URL"))
		projector.NewLoop(consumer, proj).Run(ctx)
		return
	}

	lambda.Start(proj.HandleSQSEvent)
}
