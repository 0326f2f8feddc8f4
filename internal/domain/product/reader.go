// internal/domain/product/reader.go
package product

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a product or variant cannot be resolved
var ErrNotFound = errors.New("product not found")

// Reader resolves catalog records for the checkout pipeline. Services take
// this interface so tests can run against an in-memory catalog.
type Reader interface {
	// FindProduct returns an active product by id
	FindProduct(id uint) (*Product, error)
	// FindVariant returns an active variant belonging to the given product
	FindVariant(id, productID uint) (*ProductVariant, error)
}

// GormReader is the database-backed Reader
type GormReader struct {
	db *gorm.DB
}

// NewGormReader creates a Reader backed by the relational store
func NewGormReader(db *gorm.DB) *GormReader {
	return &GormReader{db: db}
}

func (r *GormReader) FindProduct(id uint) (*Product, error) {
	var prod Product
	err := r.db.Where("id = ? AND is_active = ?", id, true).First(&prod).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load product %d: %w", id, err)
	}
	return &prod, nil
}

func (r *GormReader) FindVariant(id, productID uint) (*ProductVariant, error) {
	var variant ProductVariant
	err := r.db.Where("id = ? AND product_id = ? AND is_active = ?", id, productID, true).
		First(&variant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load variant %d: %w", id, err)
	}
	return &variant, nil
}
