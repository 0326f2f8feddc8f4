// internal/domain/stock/validator.go
package stock

import (
	"fmt"
	"strings"

	"github.com/mnlamart/shop-sub002/internal/domain/product"
)

// Line is one requested (product, variant, quantity) triple to validate
type Line struct {
	ProductID        uint
	ProductVariantID *uint
	Quantity         int
}

// Shortage describes one under-stocked line
type Shortage struct {
	ProductID        uint   `json:"product_id"`
	ProductVariantID *uint  `json:"product_variant_id,omitempty"`
	ProductName      string `json:"product_name"`
	Requested        int    `json:"requested"`
	Available        int    `json:"available"`
}

// ShortageError carries every under-stocked line of a validation pass, not
// just the first one, so callers can report all problems at once
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s: requested %d, available %d", s.ProductName, s.Requested, s.Available)
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// Validator checks requested quantities against currently recorded stock.
// It reads, never mutates; the only stock mutation in the system happens
// inside the order materialization transaction.
type Validator struct {
	catalog product.Reader
}

// NewValidator creates a stock validator over the given catalog
func NewValidator(catalog product.Reader) *Validator {
	return &Validator{catalog: catalog}
}

// Validate compares every line against current availability. It returns a
// *ShortageError listing all failing lines, a lookup error for unresolvable
// products, or nil when every line clears. The check is advisory: stock can
// still change between validation and payment confirmation.
func (v *Validator) Validate(lines []Line) error {
	var shortages []Shortage

	for _, line := range lines {
		prod, err := v.catalog.FindProduct(line.ProductID)
		if err != nil {
			return fmt.Errorf("stock validation: %w", err)
		}

		var variant *product.ProductVariant
		if line.ProductVariantID != nil {
			variant, err = v.catalog.FindVariant(*line.ProductVariantID, line.ProductID)
			if err != nil {
				return fmt.Errorf("stock validation: %w", err)
			}
		}

		if !prod.TrackQuantity {
			continue
		}

		available := prod.AvailableQuantity(variant)
		if available < line.Quantity {
			shortages = append(shortages, Shortage{
				ProductID:        line.ProductID,
				ProductVariantID: line.ProductVariantID,
				ProductName:      prod.Name,
				Requested:        line.Quantity,
				Available:        available,
			})
		}
	}

	if len(shortages) > 0 {
		return &ShortageError{Shortages: shortages}
	}
	return nil
}
