// internal/interfaces/http/handlers/helpers.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mnlamart/shop-sub002/internal/domain/cart"
	"github.com/mnlamart/shop-sub002/internal/domain/checkout"
	"github.com/mnlamart/shop-sub002/internal/domain/order"
	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"github.com/mnlamart/shop-sub002/internal/domain/shipping"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/mnlamart/shop-sub002/internal/interfaces/http/middleware"
)

// cartIdentity resolves who the cart belongs to: the authenticated user, or
// a guest keyed by the X-Session-Token header (cookie fallback). A missing
// token is minted and echoed back so the client can persist it.
func cartIdentity(c *gin.Context) cart.Identity {
	if userID, ok := middleware.GetUserIDFromContext(c); ok {
		return cart.Identity{UserID: &userID}
	}

	token := c.GetHeader("X-Session-Token")
	if token == "" {
		token, _ = c.Cookie("session_token")
	}
	if token == "" {
		token = uuid.New().String()
		c.SetCookie("session_token", token, 86400*30, "/", "", false, true)
	}
	c.Header("X-Session-Token", token)

	return cart.Identity{Token: token}
}

// pathID parses a numeric path parameter
func pathID(c *gin.Context, name string) (uint, bool) {
	raw, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return uint(raw), true
}

// queryVariantID parses the optional variant_id query parameter
func queryVariantID(c *gin.Context) *uint {
	raw := c.Query("variant_id")
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	id := uint(parsed)
	return &id
}

// respondError maps domain errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	var shortage *stock.ShortageError
	if errors.As(err, &shortage) {
		c.JSON(http.StatusConflict, gin.H{
			"error":     "Insufficient stock",
			"shortages": shortage.Shortages,
		})
		return
	}

	switch {
	case errors.Is(err, product.ErrNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, shipping.ErrMethodNotFound),
		errors.Is(err, checkout.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, checkout.ErrEmailRequired),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrNoTrackingNumber):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, order.ErrPaymentNotConfirmed):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
