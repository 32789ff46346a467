package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/imrishuroy/go-order-outbox/internal/aws"
)

// SimPaymentRequest drives a synthetic payment result through the bus.
type SimPaymentRequest struct {
	OrderID string `json:"orderId" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

// RegisterSimRoutes adds the payment-simulation endpoint, used in local
// development to exercise the projector without a real payment service.
func RegisterSimRoutes(r *gin.Engine, publisher *aws.Publisher, topic string) {
	r.POST("/_sim/payments", func(c *gin.Context) {
		var req SimPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
			return
		}

		evt := gin.H{
			"eventId": uuid.NewString(),
			"orderId": req.OrderID,
			"status":  strings.ToUpper(req.Status),
		}
		payload, _ := json.Marshal(evt)
		attrs := map[string]string{
			"event_id": evt["eventId"].(string),
		}
		if err := publisher.Publish(c.Request.Context(), topic, req.OrderID, payload, attrs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "publish_failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, evt)
	})
}
