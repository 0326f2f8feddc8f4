// internal/domain/cart/store.go
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ErrItemNotFound is returned when a cart line does not exist
var ErrItemNotFound = errors.New("item not found in cart")

// GuestStore persists guest carts keyed by session token
type GuestStore interface {
	// Get returns the guest cart, or a fresh empty cart when none exists
	Get(ctx context.Context, token string) (*SessionCart, error)
	Save(ctx context.Context, token string, cart *SessionCart) error
	Delete(ctx context.Context, token string) error
}

// UserStore persists authenticated user carts as rows
type UserStore interface {
	Items(userID uint) ([]CartItem, error)
	// Upsert writes a line keyed by (user, product, variant)
	Upsert(item *CartItem) error
	Delete(userID, productID uint, variantID *uint) error
	Clear(userID uint) error
	// ApplyMerge upserts all given lines and records the consumed guest
	// token, all in a single transaction
	ApplyMerge(userID uint, token string, items []CartItem) error
	// Merged reports whether the guest token was already merged
	Merged(token string) (bool, error)
}

// RedisGuestStore stores guest carts as TTL'd JSON blobs
type RedisGuestStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisGuestStore creates a guest cart store
func NewRedisGuestStore(client *redis.Client, ttl time.Duration) *RedisGuestStore {
	return &RedisGuestStore{client: client, ttl: ttl}
}

func guestCartKey(token string) string {
	return fmt.Sprintf("cart:session:%s", token)
}

func (s *RedisGuestStore) Get(ctx context.Context, token string) (*SessionCart, error) {
	if token == "" {
		return nil, fmt.Errorf("session token required for guest cart")
	}

	data, err := s.client.Get(ctx, guestCartKey(token)).Result()
	if err == redis.Nil {
		// Cart does not exist yet, materialize an empty one lazily
		now := time.Now().UTC()
		return &SessionCart{
			Token:     token,
			Items:     []SessionCartItem{},
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to load guest cart: %w", err)
	}

	var sessionCart SessionCart
	if err := json.Unmarshal([]byte(data), &sessionCart); err != nil {
		return nil, fmt.Errorf("failed to decode guest cart: %w", err)
	}
	return &sessionCart, nil
}

func (s *RedisGuestStore) Save(ctx context.Context, token string, cart *SessionCart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to encode guest cart: %w", err)
	}
	return s.client.Set(ctx, guestCartKey(token), data, s.ttl).Err()
}

func (s *RedisGuestStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, guestCartKey(token)).Err()
}

// GormUserStore stores user carts in the relational store
type GormUserStore struct {
	db *gorm.DB
}

// NewGormUserStore creates a user cart store
func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) Items(userID uint) ([]CartItem, error) {
	var items []CartItem
	err := s.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load user cart: %w", err)
	}
	return items, nil
}

func (s *GormUserStore) Upsert(item *CartItem) error {
	return upsertLine(s.db, item)
}

func (s *GormUserStore) Delete(userID, productID uint, variantID *uint) error {
	result := variantScope(s.db.Where("user_id = ? AND product_id = ?", userID, productID), variantID).
		Delete(&CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *GormUserStore) Clear(userID uint) error {
	return s.db.Where("user_id = ?", userID).Delete(&CartItem{}).Error
}

func (s *GormUserStore) ApplyMerge(userID uint, token string, items []CartItem) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&MergedCart{Token: token, UserID: userID}).Error; err != nil {
			return fmt.Errorf("failed to record merged cart token: %w", err)
		}
		for i := range items {
			items[i].UserID = userID
			if err := upsertLine(tx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormUserStore) Merged(token string) (bool, error) {
	var count int64
	err := s.db.Model(&MergedCart{}).Where("token = ?", token).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check merged cart token: %w", err)
	}
	return count > 0, nil
}

// upsertLine writes the line's quantity and price into the unique
// (user, product, variant) row, inserting it when absent
func upsertLine(db *gorm.DB, item *CartItem) error {
	var existing CartItem
	err := variantScope(db.Where("user_id = ? AND product_id = ?", item.UserID, item.ProductID), item.ProductVariantID).
		First(&existing).Error

	if err == gorm.ErrRecordNotFound {
		return db.Create(item).Error
	}
	if err != nil {
		return fmt.Errorf("failed to look up cart line: %w", err)
	}

	existing.Quantity = item.Quantity
	existing.Price = item.Price
	if err := db.Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update cart line: %w", err)
	}
	*item = existing
	return nil
}

func variantScope(db *gorm.DB, variantID *uint) *gorm.DB {
	if variantID == nil {
		return db.Where("product_variant_id IS NULL")
	}
	return db.Where("product_variant_id = ?", *variantID)
}
