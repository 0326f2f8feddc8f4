// internal/domain/checkout/session.go
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSnapshotNotFound is returned when no snapshot exists for a session id
var ErrSnapshotNotFound = errors.New("checkout session snapshot not found")

// Address is the destination captured at submission time
type Address struct {
	FirstName  string `json:"first_name" binding:"required"`
	LastName   string `json:"last_name" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required,len=2"`
	Phone      string `json:"phone"`
}

// Line is one frozen cart line inside a session snapshot. Name and price
// are captured at submission time and never recomputed from the catalog.
type Line struct {
	ProductID        uint    `json:"product_id"`
	ProductVariantID *uint   `json:"product_variant_id,omitempty"`
	SKU              string  `json:"sku"`
	Name             string  `json:"name"`
	VariantTitle     string  `json:"variant_title,omitempty"`
	Quantity         int     `json:"quantity"`
	UnitPrice        int64   `json:"unit_price"`
	WeightGrams      float64 `json:"weight_grams"`
}

// Session is the ephemeral snapshot correlated with a payment-provider
// session id. The cart itself stays mutable after submission, so this
// snapshot is the single source of truth for what the customer is paying
// for.
type Session struct {
	ID                 string    `json:"id"` // provider session id
	CartUserID         *uint     `json:"cart_user_id,omitempty"`
	CartToken          string    `json:"cart_token,omitempty"`
	Email              string    `json:"email"`
	Lines              []Line    `json:"lines"`
	ShippingMethodID   uint      `json:"shipping_method_id"`
	ShippingMethodName string    `json:"shipping_method_name"`
	ShippingCost       int64     `json:"shipping_cost"`
	Subtotal           int64     `json:"subtotal"`
	Total              int64     `json:"total"`
	Currency           string    `json:"currency"`
	Address            Address   `json:"address"`
	CreatedAt          time.Time `json:"created_at"`
}

// SnapshotStore holds session snapshots outside the relational store
type SnapshotStore interface {
	Save(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionID string) (*Session, error)
	Delete(ctx context.Context, sessionID string) error
}

// RedisSnapshotStore stores snapshots as TTL'd JSON blobs
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore creates a snapshot store
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func snapshotKey(sessionID string) string {
	return fmt.Sprintf("checkout:session:%s", sessionID)
}

func (s *RedisSnapshotStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode checkout session: %w", err)
	}
	return s.client.Set(ctx, snapshotKey(session.ID), data, s.ttl).Err()
}

func (s *RedisSnapshotStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, snapshotKey(sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrSnapshotNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to load checkout session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	return &session, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, snapshotKey(sessionID)).Err()
}
