// internal/domain/cart/entity.go
package cart

import (
	"time"

	"gorm.io/gorm"
)

// CartItem represents a cart line stored in the database for authenticated
// users. The composite unique index keeps at most one line per
// (user, product, variant) so merges and retried writes converge on the
// same row instead of duplicating it.
type CartItem struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	UserID           uint           `gorm:"not null;index;uniqueIndex:idx_cart_line" json:"user_id"`
	ProductID        uint           `gorm:"not null;index;uniqueIndex:idx_cart_line" json:"product_id"`
	ProductVariantID *uint          `gorm:"index;uniqueIndex:idx_cart_line" json:"product_variant_id"`
	Quantity         int            `gorm:"not null;default:1" json:"quantity"`
	Price            int64          `gorm:"not null" json:"price"` // Price at time of adding, display only
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the table name
func (CartItem) TableName() string {
	return "cart_items"
}

// MergedCart records a guest token whose cart has been folded into a user
// cart. The unique token makes a re-run of the merge (after a crash between
// the commit and the Redis delete) a no-op instead of a double count.
type MergedCart struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null;size:100" json:"token"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName overrides the table name
func (MergedCart) TableName() string {
	return "merged_carts"
}

// SessionCart represents a guest cart stored in Redis under a session token
type SessionCart struct {
	Token     string            `json:"token"`
	Items     []SessionCartItem `json:"items"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SessionCartItem represents a cart line for guest users
type SessionCartItem struct {
	ProductID        uint      `json:"product_id"`
	ProductVariantID *uint     `json:"product_variant_id,omitempty"`
	Quantity         int       `json:"quantity"`
	Price            int64     `json:"price"`
	AddedAt          time.Time `json:"added_at"`
}

// Identity names the owner of a cart: either an authenticated user or a
// guest session token, never both.
type Identity struct {
	UserID *uint
	Token  string
}

// IsUser reports whether the identity is an authenticated user
func (id Identity) IsUser() bool {
	return id.UserID != nil
}

// sameLine reports whether two optional variant ids reference the same variant
func sameLine(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
