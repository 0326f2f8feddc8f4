// internal/domain/order/repository.go
package order

import (
	"errors"
	"fmt"

	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when no order matches the lookup
	ErrNotFound = errors.New("order not found")
	// ErrDuplicateSession is returned when an insert loses the race on the
	// checkout_session_id unique index
	ErrDuplicateSession = errors.New("order already exists for checkout session")
)

// StockDecrement is one line's stock movement applied with an order write
type StockDecrement struct {
	ProductID        uint
	ProductVariantID *uint
	Quantity         int
}

// Repository persists orders. The single-transaction write methods are the
// seam that keeps materialization and cancellation atomic.
type Repository interface {
	FindBySessionID(sessionID string) (*Order, error)
	FindByID(id uint) (*Order, error)
	ListByUser(userID uint, limit, offset int) ([]Order, int64, error)
	// CreateFromSnapshot inserts the order, its items, its first history
	// rows and the stock decrements in one transaction. A unique-index
	// collision on checkout_session_id maps to ErrDuplicateSession.
	CreateFromSnapshot(order *Order, decrements []StockDecrement) error
	// ApplyTransition saves the order's mutated fields, appends a history
	// row and applies stock restocks (negative decrements) in one
	// transaction
	ApplyTransition(order *Order, history StatusHistory, restock []StockDecrement) error
}

// GormRepository implements Repository on postgres
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates an order repository
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) FindBySessionID(sessionID string) (*Order, error) {
	var o Order
	err := r.db.Preload("Items").Preload("StatusHistory").
		Where("checkout_session_id = ?", sessionID).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func (r *GormRepository) FindByID(id uint) (*Order, error) {
	var o Order
	err := r.db.Preload("Items").Preload("StatusHistory").First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &o, nil
}

func (r *GormRepository) ListByUser(userID uint, limit, offset int) ([]Order, int64, error) {
	var orders []Order
	var total int64

	query := r.db.Model(&Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	err := query.Preload("Items").
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

func (r *GormRepository) CreateFromSnapshot(order *Order, decrements []StockDecrement) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return applyDecrements(tx, decrements)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *GormRepository) ApplyTransition(order *Order, history StatusHistory, restock []StockDecrement) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(order).Error; err != nil {
			return err
		}
		history.OrderID = order.ID
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		negated := make([]StockDecrement, len(restock))
		for i, d := range restock {
			negated[i] = StockDecrement{ProductID: d.ProductID, ProductVariantID: d.ProductVariantID, Quantity: -d.Quantity}
		}
		return applyDecrements(tx, negated)
	})
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return nil
}

// applyDecrements adjusts stock counters in place. Negative quantities
// restock. Untracked products are adjusted too but their counter is
// ignored by availability checks.
func applyDecrements(tx *gorm.DB, decrements []StockDecrement) error {
	for _, d := range decrements {
		if d.ProductVariantID != nil {
			err := tx.Model(&product.ProductVariant{}).
				Where("id = ?", *d.ProductVariantID).
				UpdateColumn("quantity", gorm.Expr("quantity - ?", d.Quantity)).Error
			if err != nil {
				return err
			}
			continue
		}
		err := tx.Model(&product.Product{}).
			Where("id = ?", d.ProductID).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", d.Quantity)).Error
		if err != nil {
			return err
		}
	}
	return nil
}
