// internal/interfaces/http/handlers/checkout.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/checkout"
	"github.com/mnlamart/shop-sub002/internal/domain/order"
)

// CheckoutHandler handles checkout submission and the post-payment
// session-to-order endpoints
type CheckoutHandler struct {
	checkoutService *checkout.Service
	orderService    *order.Service
	config          *config.Config
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(checkoutService *checkout.Service, orderService *order.Service, cfg *config.Config) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService: checkoutService,
		orderService:    orderService,
		config:          cfg,
	}
}

// GetSummary handles GET /checkout/summary
func (h *CheckoutHandler) GetSummary(c *gin.Context) {
	country := c.DefaultQuery("country", h.config.Store.OriginCountry)

	summary, err := h.checkoutService.GetSummary(c.Request.Context(), cartIdentity(c), country)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Checkout summary retrieved successfully",
		"data":    summary,
	})
}

// GetShippingMethods handles GET /checkout/shipping-methods
func (h *CheckoutHandler) GetShippingMethods(c *gin.Context) {
	country := c.DefaultQuery("country", h.config.Store.OriginCountry)

	summary, err := h.checkoutService.GetSummary(c.Request.Context(), cartIdentity(c), country)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping methods retrieved successfully",
		"data": gin.H{
			"country": country,
			"methods": summary.Methods,
		},
	})
}

// CreateSession handles POST /checkout/sessions
func (h *CheckoutHandler) CreateSession(c *gin.Context) {
	var req checkout.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	result, err := h.checkoutService.CreateSession(c.Request.Context(), cartIdentity(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Checkout session created successfully",
		"data":    result,
	})
}

// GetSessionOrder handles GET /checkout/sessions/:id/order. This is the
// client polling trigger: it attempts materialization and reports progress
// so the success page converges even when the webhook is late.
func (h *CheckoutHandler) GetSessionOrder(c *gin.Context) {
	sessionID := c.Param("id")

	o, err := h.orderService.Materialize(c.Request.Context(), sessionID, "poll")
	if err != nil {
		if errors.Is(err, order.ErrPaymentNotConfirmed) {
			c.JSON(http.StatusAccepted, gin.H{
				"message":        "Payment not confirmed yet",
				"status":         "pending",
				"retry_after_ms": h.config.Checkout.PollInterval.Milliseconds(),
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Order retrieved successfully",
		"data":    o,
	})
}

// ReconcileSession handles POST /checkout/sessions/:id/reconcile, the
// manual trigger for sessions that paid but never produced an order
func (h *CheckoutHandler) ReconcileSession(c *gin.Context) {
	sessionID := c.Param("id")

	o, err := h.orderService.Materialize(c.Request.Context(), sessionID, "reconcile")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Session reconciled successfully",
		"data":    o,
	})
}
