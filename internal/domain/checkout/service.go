// internal/domain/checkout/service.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/cart"
	"github.com/mnlamart/shop-sub002/internal/domain/payment"
	"github.com/mnlamart/shop-sub002/internal/domain/shipping"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/sirupsen/logrus"
)

var (
	// ErrEmptyCart is returned when checkout is attempted on an empty cart
	ErrEmptyCart = errors.New("cannot check out an empty cart")
	// ErrEmailRequired is returned when a guest submits without an email
	ErrEmailRequired = errors.New("email is required for guest checkout")
)

// CartSource reads the cart being checked out
type CartSource interface {
	GetCart(ctx context.Context, id cart.Identity) (*cart.View, error)
}

// RateSource resolves shipping methods and their coverage
type RateSource interface {
	MethodsFor(countryCode string) ([]shipping.Method, error)
	GetMethod(methodID uint, countryCode string) (*shipping.Method, error)
}

// StockChecker validates requested quantities against the catalog
type StockChecker interface {
	Validate(lines []stock.Line) error
}

// Service orchestrates checkout submission: it freezes the cart into a
// priced snapshot, opens a session with the payment processor, and hands
// the customer off to the processor's hosted page.
type Service struct {
	carts     CartSource
	rates     RateSource
	validator StockChecker
	provider  payment.Provider
	snapshots SnapshotStore
	config    *config.Config
}

// NewService creates a new checkout service
func NewService(carts CartSource, rates RateSource, validator StockChecker, provider payment.Provider, snapshots SnapshotStore, cfg *config.Config) *Service {
	return &Service{
		carts:     carts,
		rates:     rates,
		validator: validator,
		provider:  provider,
		snapshots: snapshots,
		config:    cfg,
	}
}

// CreateSessionRequest is the checkout submission payload
type CreateSessionRequest struct {
	ShippingMethodID uint    `json:"shipping_method_id" binding:"required"`
	Email            string  `json:"email" binding:"omitempty,email"`
	Address          Address `json:"address" binding:"required"`
}

// CreateSessionResult points the customer at the processor's hosted page
type CreateSessionResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
}

// Summary is the pre-submission quote: the current cart priced against a
// destination, with the shipping methods available there
type Summary struct {
	Cart     *cart.View    `json:"cart"`
	Methods  []MethodQuote `json:"shipping_methods"`
	Currency string        `json:"currency"`
}

// MethodQuote is one shipping option priced for the current cart
type MethodQuote struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Cost     int64  `json:"cost"`
	Estimate string `json:"estimate,omitempty"`
}

// CreateSession submits the cart for payment. The cart is validated against
// live stock, priced server-side from the current catalog, and frozen into a
// snapshot keyed by the processor's session id. The cart itself is left
// untouched until an order materializes.
func (s *Service) CreateSession(ctx context.Context, id cart.Identity, req *CreateSessionRequest) (*CreateSessionResult, error) {
	view, err := s.carts.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(view.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if !id.IsUser() && req.Email == "" {
		return nil, ErrEmailRequired
	}

	// Abort on any shortage; the error carries the complete list so the
	// customer can fix the whole cart in one pass
	if err := s.validator.Validate(view.StockLines()); err != nil {
		return nil, err
	}

	lines, subtotal, weight, err := s.freezeLines(view)
	if err != nil {
		return nil, err
	}

	method, err := s.rates.GetMethod(req.ShippingMethodID, req.Address.Country)
	if err != nil {
		return nil, err
	}
	shippingCost := shipping.Cost(method, subtotal, weight)
	total := subtotal + shippingCost

	providerItems := make([]payment.LineItem, len(lines))
	for i, line := range lines {
		providerItems[i] = payment.LineItem{
			Name:       line.Name,
			SKU:        line.SKU,
			Quantity:   int64(line.Quantity),
			UnitAmount: line.UnitPrice,
		}
	}

	metadata := map[string]string{"cart_token": id.Token}
	if id.IsUser() {
		metadata["user_id"] = fmt.Sprintf("%d", *id.UserID)
	}

	session, err := s.provider.CreateSession(ctx, payment.CreateSessionRequest{
		Currency:       s.config.Store.Currency,
		Items:          providerItems,
		ShippingLabel:  fmt.Sprintf("Shipping: %s", method.Name),
		ShippingAmount: shippingCost,
		CustomerEmail:  req.Email,
		SuccessURL:     s.config.Checkout.SuccessURL,
		CancelURL:      s.config.Checkout.CancelURL,
		Metadata:       metadata,
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open payment session: %w", err)
	}

	snapshot := &Session{
		ID:                 session.ID,
		CartUserID:         id.UserID,
		CartToken:          id.Token,
		Email:              req.Email,
		Lines:              lines,
		ShippingMethodID:   method.ID,
		ShippingMethodName: method.Name,
		ShippingCost:       shippingCost,
		Subtotal:           subtotal,
		Total:              total,
		Currency:           s.config.Store.Currency,
		Address:            req.Address,
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.snapshots.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to save checkout snapshot: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"total":      total,
		"lines":      len(lines),
	}).Info("Checkout session created")

	return &CreateSessionResult{
		SessionID:   session.ID,
		RedirectURL: session.RedirectURL,
		Total:       total,
		Currency:    s.config.Store.Currency,
	}, nil
}

// GetSummary prices the current cart for a destination country and lists
// the shipping options available there
func (s *Service) GetSummary(ctx context.Context, id cart.Identity, countryCode string) (*Summary, error) {
	view, err := s.carts.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}

	_, subtotal, weight, err := s.freezeLines(view)
	if err != nil {
		return nil, err
	}

	methods, err := s.rates.MethodsFor(countryCode)
	if err != nil {
		return nil, err
	}

	quotes := make([]MethodQuote, len(methods))
	for i := range methods {
		quotes[i] = MethodQuote{
			ID:       methods[i].ID,
			Name:     methods[i].Name,
			Cost:     shipping.Cost(&methods[i], subtotal, weight),
			Estimate: methods[i].EstimateLabel(),
		}
	}

	return &Summary{
		Cart:     view,
		Methods:  quotes,
		Currency: s.config.Store.Currency,
	}, nil
}

// GetSnapshot re-reads a saved checkout snapshot
func (s *Service) GetSnapshot(ctx context.Context, sessionID string) (*Session, error) {
	return s.snapshots.Get(ctx, sessionID)
}

// freezeLines re-prices the cart against the current catalog. Cart-held
// prices are advisory only; the snapshot carries the authoritative ones.
func (s *Service) freezeLines(view *cart.View) ([]Line, int64, float64, error) {
	lines := make([]Line, 0, len(view.Items))
	var subtotal int64
	var weighted []shipping.WeightedItem

	for _, item := range view.Items {
		if item.Product == nil {
			return nil, 0, 0, fmt.Errorf("product %d no longer exists", item.ProductID)
		}
		unitPrice := item.Product.UnitPrice(item.ProductVariant)
		unitWeight := item.Product.UnitWeight(item.ProductVariant, s.config.Store.DefaultWeightGrams)

		line := Line{
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			SKU:              item.Product.SKU,
			Name:             item.Product.Name,
			Quantity:         item.Quantity,
			UnitPrice:        unitPrice,
			WeightGrams:      unitWeight,
		}
		if item.ProductVariant != nil {
			line.SKU = item.ProductVariant.SKU
			line.VariantTitle = item.ProductVariant.Name
		}
		lines = append(lines, line)

		subtotal += unitPrice * int64(item.Quantity)
		weighted = append(weighted, shipping.WeightedItem{Grams: unitWeight, Quantity: item.Quantity})
	}

	return lines, subtotal, shipping.TotalWeight(weighted), nil
}
