package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
	"github.com/imrishuroy/go-order-outbox/internal/handlers"
)

const topicPayments = "payments.v1"

func setupRouter(cfg handlers.HandlerConfig, publisher *aws.Publisher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handlers.RequestID())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	if simRoutesEnabled() {
		handlers.RegisterSimRoutes(r, publisher, topicPayments)
	}

	return r
}

// simRoutesEnabled defaults to true when SIM_ROUTES_ENABLED is unset; once
// set, only a value parsing as true keeps the route on.
func simRoutesEnabled() bool {
	v := os.Getenv("SIM_ROUTES_ENABLED")
	if v == "" {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	return err == nil && enabled
}

func main() {
	clients, err := aws.NewAWSClients(context.Background())
	if err != nil {
		log.Fatalf("failed to init aws clients: %v", err)
	}

	cfg := handlers.HandlerConfig{
		DynamoDBClient:   clients.DynamoDB,
		IdempotencyTable: os.Getenv("IDEMPOTENCY_TABLE"),
		OrdersTable:      os.Getenv("ORDERS_TABLE"),
		OrderItemsTable:  os.Getenv("ORDER_ITEMS_TABLE"),
		OutboxTable:      os.Getenv("OUTBOX_TABLE"),
		TTLWindow:        48 * time.Hour,
	}

	publisher := aws.NewPublisher(clients.SQS, map[string]string{
		topicPayments: os.Getenv("PAYMENTS_QUEUE_URL"),
	})

	r := setupRouter(cfg, publisher)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if os.Getenv("RUN_LOCAL") == "true" {
		addr := ":8080"
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		}
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
