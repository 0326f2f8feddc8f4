// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/carrier"
	"github.com/mnlamart/shop-sub002/internal/domain/checkout"
	"github.com/mnlamart/shop-sub002/internal/domain/order"
	"github.com/mnlamart/shop-sub002/internal/domain/payment"
	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/mnlamart/shop-sub002/internal/interfaces/http/handlers"
	"github.com/mnlamart/shop-sub002/internal/interfaces/http/middleware"
	"github.com/mnlamart/shop-sub002/internal/pkg/email"
	"github.com/mnlamart/shop-sub002/internal/pkg/pdf"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRoutes wires the checkout pipeline and registers every route
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	// Shared collaborators
	catalog := product.NewGormReader(db)
	validator := stock.NewValidator(catalog)
	snapshots := checkout.NewRedisSnapshotStore(redisClient, cfg.Checkout.SessionTTL)
	provider := payment.NewStripeProvider(cfg.External.Stripe.SecretKey)
	carrierClient := carrier.NewHTTPClient(cfg)

	// Handlers own their services; cross-service wiring goes through them
	cartHandler := handlers.NewCartHandler(db, redisClient, cfg)
	productHandler := handlers.NewProductHandler(db, cfg)
	shippingHandler := handlers.NewShippingHandler(db, cfg)

	checkoutService := checkout.NewService(
		cartHandler.Service(),
		shippingHandler.Service(),
		validator,
		provider,
		snapshots,
		cfg,
	)
	orderService := order.NewService(
		order.NewGormRepository(db),
		snapshots,
		provider,
		validator,
		carrierClient,
		cartHandler.Service(),
		email.NewService(cfg),
		cfg,
	)

	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, orderService, cfg)
	orderHandler := handlers.NewOrderHandler(orderService, pdf.NewService(cfg), cfg)
	webhookHandler := handlers.NewWebhookHandler(orderService, cfg)

	// Catalog (public, optional auth for future personalization)
	products := rg.Group("/products")
	products.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		products.GET("", productHandler.ListProducts)
		products.GET("/:id", productHandler.GetProduct)
	}

	// Cart (guest sessions or authenticated users)
	cart := rg.Group("/cart")
	cart.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cart.GET("", cartHandler.GetCart)
		cart.POST("/items", cartHandler.AddToCart)
		cart.PUT("/items/:id", cartHandler.UpdateCartItem)
		cart.DELETE("/items/:id", cartHandler.RemoveFromCart)
		cart.DELETE("", cartHandler.ClearCart)
	}
	// Merge requires a logged-in user to fold the guest cart into
	rg.POST("/cart/merge", middleware.AuthMiddleware(cfg), cartHandler.MergeCart)

	// Checkout (guests check out too; identity rides the session token)
	checkoutGroup := rg.Group("/checkout")
	checkoutGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		checkoutGroup.GET("/summary", checkoutHandler.GetSummary)
		checkoutGroup.GET("/shipping-methods", checkoutHandler.GetShippingMethods)
		checkoutGroup.POST("/sessions", checkoutHandler.CreateSession)
		checkoutGroup.GET("/sessions/:id/order", checkoutHandler.GetSessionOrder)
		checkoutGroup.POST("/sessions/:id/reconcile", checkoutHandler.ReconcileSession)
	}

	// Processor callbacks (signature-verified, no auth)
	rg.POST("/webhooks/stripe", webhookHandler.HandleStripe)

	// Customer order history
	orders := rg.Group("/orders")
	orders.Use(middleware.AuthMiddleware(cfg))
	{
		orders.GET("", orderHandler.ListOrders)
		orders.GET("/:id", orderHandler.GetOrder)
		orders.GET("/:id/invoice", orderHandler.GetInvoice)
	}

	// Admin
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		adminOrders := admin.Group("/orders")
		{
			adminOrders.PUT("/:id/status", orderHandler.UpdateStatus)
			adminOrders.POST("/:id/shipment", orderHandler.CreateShipment)
			adminOrders.POST("/:id/sync-tracking", orderHandler.SyncTracking)
		}

		shippingAdmin := admin.Group("/shipping")
		{
			shippingAdmin.GET("/zones", shippingHandler.ListZones)
			shippingAdmin.POST("/zones", shippingHandler.SaveZone)
			shippingAdmin.POST("/methods", shippingHandler.SaveMethod)
			shippingAdmin.DELETE("/methods/:id", shippingHandler.DeleteMethod)
		}
	}
}
