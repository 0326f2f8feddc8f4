// internal/interfaces/http/handlers/webhook.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/checkout"
	"github.com/mnlamart/shop-sub002/internal/domain/order"
	"github.com/mnlamart/shop-sub002/internal/domain/payment"
	"github.com/sirupsen/logrus"
)

// WebhookHandler handles payment processor callbacks
type WebhookHandler struct {
	orderService *order.Service
	config       *config.Config
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(orderService *order.Service, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{
		orderService: orderService,
		config:       cfg,
	}
}

// HandleStripe handles POST /webhooks/stripe, the primary materialization
// trigger. The response is 200 for anything the processor should not
// retry; materialization failures worth retrying return 500 so the
// processor re-delivers.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read payload"})
		return
	}

	event, err := payment.ParseWebhookEvent(payload, c.GetHeader("Stripe-Signature"), h.config.External.Stripe.WebhookSecret)
	if err != nil {
		logrus.WithError(err).Warn("rejected stripe webhook with bad signature")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid webhook signature"})
		return
	}

	if event.SessionID == "" {
		// Event type we don't act on; acknowledge so it isn't retried
		c.JSON(http.StatusOK, gin.H{"message": "Event ignored"})
		return
	}

	o, err := h.orderService.Materialize(c.Request.Context(), event.SessionID, "webhook")
	if err != nil {
		switch {
		case errors.Is(err, order.ErrPaymentNotConfirmed),
			errors.Is(err, checkout.ErrSnapshotNotFound):
			// Retrying the same delivery cannot change either outcome
			logrus.WithFields(logrus.Fields{
				"session_id": event.SessionID,
				"event_type": event.Type,
			}).WithError(err).Warn("webhook materialization skipped")
			c.JSON(http.StatusOK, gin.H{"message": "Event acknowledged"})
		default:
			logrus.WithFields(logrus.Fields{
				"session_id": event.SessionID,
				"event_type": event.Type,
			}).WithError(err).Error("webhook materialization failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Materialization failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order materialized successfully",
		"data": gin.H{
			"order_number": o.OrderNumber,
		},
	})
}
