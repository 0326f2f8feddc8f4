// internal/interfaces/http/handlers/shipping.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/shipping"
	"gorm.io/gorm"
)

// ShippingHandler handles admin shipping configuration endpoints
type ShippingHandler struct {
	shippingService *shipping.Service
	config          *config.Config
}

// NewShippingHandler creates a new shipping handler
func NewShippingHandler(db *gorm.DB, cfg *config.Config) *ShippingHandler {
	return &ShippingHandler{
		shippingService: shipping.NewService(db, cfg),
		config:          cfg,
	}
}

// Service exposes the shipping service for cross-handler wiring
func (h *ShippingHandler) Service() *shipping.Service {
	return h.shippingService
}

// ListZones handles GET /admin/shipping/zones
func (h *ShippingHandler) ListZones(c *gin.Context) {
	zones, err := h.shippingService.ListZones()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping zones retrieved successfully",
		"data":    zones,
	})
}

// SaveZone handles POST /admin/shipping/zones
func (h *ShippingHandler) SaveZone(c *gin.Context) {
	var zone shipping.Zone
	if err := c.ShouldBindJSON(&zone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.shippingService.SaveZone(&zone); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping zone saved successfully",
		"data":    zone,
	})
}

// SaveMethod handles POST /admin/shipping/methods
func (h *ShippingHandler) SaveMethod(c *gin.Context) {
	var method shipping.Method
	if err := c.ShouldBindJSON(&method); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.shippingService.SaveMethod(&method); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping method saved successfully",
		"data":    method,
	})
}

// DeleteMethod handles DELETE /admin/shipping/methods/:id
func (h *ShippingHandler) DeleteMethod(c *gin.Context) {
	methodID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.shippingService.DeleteMethod(methodID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Shipping method deleted successfully",
	})
}
