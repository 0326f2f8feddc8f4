// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/mnlamart/shop-sub002/internal/domain/cart"
	"github.com/mnlamart/shop-sub002/internal/domain/order"
	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"github.com/mnlamart/shop-sub002/internal/domain/shipping"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// Models in dependency order
	models := []interface{}{
		// Product domain - base tables
		&product.Category{},
		&product.Product{},
		&product.ProductVariant{},

		// Shipping domain
		&shipping.Zone{},
		&shipping.Method{},

		// Cart domain
		&cart.CartItem{},
		&cart.MergedCart{},

		// Order domain - dependent tables
		&order.Order{},
		&order.OrderItem{},
		&order.StatusHistory{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates additional indexes for better performance
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	indexes := []string{
		// Product indexes
		"CREATE INDEX IF NOT EXISTS idx_products_category_active ON products(category_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_products_price ON products(price)",
		"CREATE INDEX IF NOT EXISTS idx_products_created_at ON products(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_product_variants_product_active ON product_variants(product_id, is_active)",

		// Category indexes
		"CREATE INDEX IF NOT EXISTS idx_categories_parent_active ON categories(parent_id, is_active)",
		"CREATE INDEX IF NOT EXISTS idx_categories_sort_order ON categories(sort_order)",

		// Cart indexes. idx_cart_line (from the model tags) only guards
		// lines with a variant; NULLs never collide in postgres, so
		// variant-less lines need their own partial unique index.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_cart_line_novariant ON cart_items(user_id, product_id) WHERE product_variant_id IS NULL",
		"CREATE INDEX IF NOT EXISTS idx_cart_items_created_at ON cart_items(created_at DESC)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_merged_carts_token ON merged_carts(token)",

		// Shipping indexes
		"CREATE INDEX IF NOT EXISTS idx_shipping_zones_active_position ON shipping_zones(is_active, position)",
		"CREATE INDEX IF NOT EXISTS idx_shipping_methods_zone_active ON shipping_methods(zone_id, is_active)",

		// Order indexes. The checkout_session_id unique index is what makes
		// materialization idempotent under concurrent triggers.
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_checkout_session ON orders(checkout_session_id)",
		"CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders(user_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)",
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_stock_flagged ON orders(stock_flagged) WHERE stock_flagged",

		// Order items indexes
		"CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)",
		"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",

		// Order status history indexes
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_order_status_history_status ON order_status_history(status)",
	}

	successCount := 0
	failCount := 0

	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	return nil
}
