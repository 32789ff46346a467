package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
	"github.com/imrishuroy/go-order-outbox/internal/idempotency"
	"github.com/imrishuroy/go-order-outbox/internal/orders"
	"github.com/imrishuroy/go-order-outbox/internal/outbox"
	"github.com/imrishuroy/go-order-outbox/internal/validation"
)

const ordersPath = "/orders"

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	DynamoDBClient   aws.DynamoDBAPI
	IdempotencyTable string
	OrdersTable      string
	OrderItemsTable  string
	OutboxTable      string
	TTLWindow        time.Duration
}

// orderResponse is the POST/GET body shape. The POST body is stored verbatim
// in the idempotency record so replays return byte-identical responses.
type orderResponse struct {
	OrderID          string `json:"orderId"`
	Status           string `json:"status"`
	TotalAmountCents int64  `json:"totalAmountCents"`
	Currency         string `json:"currency"`
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	idempStore := idempotency.NewStore(cfg.DynamoDBClient, cfg.IdempotencyTable, cfg.TTLWindow)
	ordersStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable, cfg.OrderItemsTable)
	outboxStore := outbox.NewStore(cfg.DynamoDBClient, cfg.OutboxTable)

	r.POST(ordersPath, func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		// The guard is optional: without an Idempotency-Key the request runs
		// unguarded and always creates a fresh order.
		idempKey := c.GetHeader("Idempotency-Key")
		requestHash := hashRequest(req)

		if idempKey != "" {
			rec, err := idempStore.Get(ctx, idempKey, ordersPath)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
				return
			}
			if rec != nil {
				replayStoredOutcome(c, rec, requestHash)
				return
			}
		}

		orderID := uuid.NewString()
		order := orders.Order{
			OrderID:          orderID,
			CustomerID:       req.CustomerID,
			Status:           orders.StatusPending,
			TotalAmountCents: req.TotalCents(),
			Currency:         strings.ToUpper(req.Currency),
		}
		items := make([]orders.Item, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, orders.Item{
				OrderID:    orderID,
				SKU:        it.SKU,
				Qty:        it.Qty,
				PriceCents: it.PriceCents,
			})
		}

		// Everything below commits in one transaction: the idempotency slot,
		// the order, its items and the OrderCreated outbox record.
		extra := make([]types.TransactWriteItem, 0, 2)
		if idempKey != "" {
			reservation, err := idempStore.ReservationTransactItem(idempKey, ordersPath, requestHash, orderID)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_reserve_failed", "detail": err.Error()})
				return
			}
			extra = append(extra, reservation)
		}

		outboxID, err := outboxStore.NextID(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "outbox_sequence_failed", "detail": err.Error()})
			return
		}
		eventPayload, _ := json.Marshal(gin.H{
			"eventId":          uuid.NewString(),
			"orderId":          orderID,
			"customerId":       order.CustomerID,
			"totalAmountCents": order.TotalAmountCents,
			"currency":         order.Currency,
			"items":            req.Items,
			"requestId":        c.GetString("request_id"),
		})
		outboxItem, err := outboxStore.SaveTransactItem(
			outboxStore.NewRecord(outboxID, orderID, outbox.EventOrderCreated, eventPayload))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "outbox_record_failed", "detail": err.Error()})
			return
		}
		extra = append(extra, outboxItem)

		if err := ordersStore.Create(ctx, order, items, extra...); err != nil {
			// A canceled transaction with a guard almost always means we lost
			// the idempotency slot to a concurrent duplicate. Re-read it and
			// answer from the winner's record.
			if idempKey != "" {
				rec, getErr := idempStore.Get(ctx, idempKey, ordersPath)
				if getErr == nil && rec != nil {
					replayStoredOutcome(c, rec, requestHash)
					return
				}
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_create_failed", "detail": err.Error()})
			return
		}

		respBody, _ := json.Marshal(orderResponse{
			OrderID:          orderID,
			Status:           order.Status,
			TotalAmountCents: order.TotalAmountCents,
			Currency:         order.Currency,
		})
		if idempKey != "" {
			// Best effort: if this mark is lost the retry path answers 202
			// until the record expires, it never duplicates the order.
			_ = idempStore.MarkDone(ctx, idempKey, ordersPath, string(respBody), http.StatusCreated)
		}

		c.Header("Location", fmt.Sprintf("%s/%s", ordersPath, orderID))
		c.Data(http.StatusCreated, "application/json", respBody)
	})

	r.GET(ordersPath+"/:id", func(c *gin.Context) {
		ctx := c.Request.Context()
		orderID := c.Param("id")

		order, err := ordersStore.Get(ctx, orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_fetch_failed", "detail": err.Error()})
			return
		}
		if order == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
			return
		}
		items, err := ordersStore.GetItems(ctx, orderID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_items_fetch_failed", "detail": err.Error()})
			return
		}

		lines := make([]gin.H, 0, len(items))
		for _, it := range items {
			lines = append(lines, gin.H{"sku": it.SKU, "qty": it.Qty, "priceCents": it.PriceCents})
		}
		c.JSON(http.StatusOK, gin.H{
			"orderId":          order.OrderID,
			"customerId":       order.CustomerID,
			"status":           order.Status,
			"totalAmountCents": order.TotalAmountCents,
			"currency":         order.Currency,
			"items":            lines,
		})
	})
}

// replayStoredOutcome answers from an existing idempotency record: the stored
// response verbatim for a faithful replay, 409 for a payload mismatch, 202
// while the original request is still in flight.
func replayStoredOutcome(c *gin.Context, rec *idempotency.Record, requestHash string) {
	stored, err := idempotency.CheckReplay(rec, requestHash)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency_conflict", "detail": "Idempotency-Key replay with different payload"})
		return
	}
	if stored != nil {
		c.Data(stored.ResponseStatus, "application/json", []byte(stored.ResponseBody))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "orderId": rec.OrderID})
}

// hashRequest digests the normalized (re-marshaled) request body, so
// formatting differences between retries do not trip the conflict check.
func hashRequest(req validation.CreateOrderRequest) string {
	normalized, _ := json.Marshal(req)
	sum := sha256.Sum256(normalized)
	return hex.EncodeToString(sum[:])
}
