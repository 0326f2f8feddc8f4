// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/sirupsen/logrus"
)

// ErrInvalidQuantity is returned for non-positive quantity updates; callers
// must use Remove to drop a line
var ErrInvalidQuantity = errors.New("quantity must be a positive integer")

// Service handles cart business logic for guest and authenticated carts
type Service struct {
	guest   GuestStore
	users   UserStore
	catalog product.Reader
	config  *config.Config
}

// NewService creates a new cart service
func NewService(guest GuestStore, users UserStore, catalog product.Reader, cfg *config.Config) *Service {
	return &Service{
		guest:   guest,
		users:   users,
		catalog: catalog,
		config:  cfg,
	}
}

// ItemView represents a cart line with resolved product details
type ItemView struct {
	ProductID        uint                    `json:"product_id"`
	ProductVariantID *uint                   `json:"product_variant_id,omitempty"`
	Quantity         int                     `json:"quantity"`
	Price            int64                   `json:"price"`
	Product          *product.Product        `json:"product,omitempty"`
	ProductVariant   *product.ProductVariant `json:"product_variant,omitempty"`
	AddedAt          time.Time               `json:"added_at"`
}

// Totals represents calculated cart totals
type Totals struct {
	ItemCount     int   `json:"item_count"`     // Number of distinct lines
	TotalQuantity int   `json:"total_quantity"` // Sum of all quantities
	SubTotal      int64 `json:"sub_total"`      // Before shipping
}

// View represents a cart with items and summary
type View struct {
	Token     string     `json:"token,omitempty"`
	UserID    *uint      `json:"user_id,omitempty"`
	Items     []ItemView `json:"items"`
	Totals    Totals     `json:"totals"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// AddItemRequest represents an add-to-cart request
type AddItemRequest struct {
	ProductID        uint  `json:"product_id" binding:"required"`
	ProductVariantID *uint `json:"product_variant_id"`
	Quantity         int   `json:"quantity" binding:"required,min=1"`
}

// UpdateItemRequest represents a quantity update
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

// GetCart retrieves the cart for a user or guest session, lazily
// materializing an empty guest cart
func (s *Service) GetCart(ctx context.Context, id Identity) (*View, error) {
	var items []ItemView
	var createdAt, updatedAt time.Time

	if id.IsUser() {
		dbItems, err := s.users.Items(*id.UserID)
		if err != nil {
			return nil, err
		}
		items = make([]ItemView, len(dbItems))
		for i, item := range dbItems {
			items[i] = ItemView{
				ProductID:        item.ProductID,
				ProductVariantID: item.ProductVariantID,
				Quantity:         item.Quantity,
				Price:            item.Price,
				AddedAt:          item.CreatedAt,
			}
		}
		if len(dbItems) > 0 {
			createdAt = dbItems[0].CreatedAt
			updatedAt = dbItems[len(dbItems)-1].UpdatedAt
		} else {
			createdAt = time.Now().UTC()
			updatedAt = createdAt
		}
	} else {
		sessionCart, err := s.guest.Get(ctx, id.Token)
		if err != nil {
			return nil, err
		}
		items = make([]ItemView, len(sessionCart.Items))
		for i, item := range sessionCart.Items {
			items[i] = ItemView{
				ProductID:        item.ProductID,
				ProductVariantID: item.ProductVariantID,
				Quantity:         item.Quantity,
				Price:            item.Price,
				AddedAt:          item.AddedAt,
			}
		}
		createdAt = sessionCart.CreatedAt
		updatedAt = sessionCart.UpdatedAt
	}

	s.loadProductDetails(items)

	return &View{
		Token:     id.Token,
		UserID:    id.UserID,
		Items:     items,
		Totals:    calculateTotals(items),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

// AddItem adds a line to the cart, summing the quantity into an existing
// (product, variant) line when present
func (s *Service) AddItem(ctx context.Context, id Identity, req *AddItemRequest) (*View, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	prod, err := s.catalog.FindProduct(req.ProductID)
	if err != nil {
		return nil, err
	}

	var variant *product.ProductVariant
	if req.ProductVariantID != nil {
		variant, err = s.catalog.FindVariant(*req.ProductVariantID, req.ProductID)
		if err != nil {
			return nil, err
		}
	}

	price := prod.UnitPrice(variant)

	current := 0
	if existing, err := s.findLine(ctx, id, req.ProductID, req.ProductVariantID); err == nil && existing != nil {
		current = existing.Quantity
	}

	newQuantity := current + req.Quantity
	if available := prod.AvailableQuantity(variant); available < newQuantity {
		return nil, &stock.ShortageError{Shortages: []stock.Shortage{{
			ProductID:        req.ProductID,
			ProductVariantID: req.ProductVariantID,
			ProductName:      prod.Name,
			Requested:        newQuantity,
			Available:        available,
		}}}
	}

	if id.IsUser() {
		err = s.users.Upsert(&CartItem{
			UserID:           *id.UserID,
			ProductID:        req.ProductID,
			ProductVariantID: req.ProductVariantID,
			Quantity:         newQuantity,
			Price:            price,
		})
	} else {
		err = s.writeGuestLine(ctx, id.Token, req.ProductID, req.ProductVariantID, newQuantity, price)
	}
	if err != nil {
		return nil, err
	}

	return s.GetCart(ctx, id)
}

// UpdateQuantity sets the quantity of an existing line. Non-positive
// quantities are rejected; use Remove instead.
func (s *Service) UpdateQuantity(ctx context.Context, id Identity, productID uint, variantID *uint, quantity int) (*View, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	existing, err := s.findLine(ctx, id, productID, variantID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrItemNotFound
	}

	prod, err := s.catalog.FindProduct(productID)
	if err != nil {
		return nil, err
	}
	var variant *product.ProductVariant
	if variantID != nil {
		variant, err = s.catalog.FindVariant(*variantID, productID)
		if err != nil {
			return nil, err
		}
	}
	if available := prod.AvailableQuantity(variant); available < quantity {
		return nil, &stock.ShortageError{Shortages: []stock.Shortage{{
			ProductID:        productID,
			ProductVariantID: variantID,
			ProductName:      prod.Name,
			Requested:        quantity,
			Available:        available,
		}}}
	}

	if id.IsUser() {
		err = s.users.Upsert(&CartItem{
			UserID:           *id.UserID,
			ProductID:        productID,
			ProductVariantID: variantID,
			Quantity:         quantity,
			Price:            existing.Price,
		})
	} else {
		err = s.writeGuestLine(ctx, id.Token, productID, variantID, quantity, existing.Price)
	}
	if err != nil {
		return nil, err
	}

	return s.GetCart(ctx, id)
}

// Remove drops a line from the cart
func (s *Service) Remove(ctx context.Context, id Identity, productID uint, variantID *uint) (*View, error) {
	if id.IsUser() {
		if err := s.users.Delete(*id.UserID, productID, variantID); err != nil {
			return nil, err
		}
		return s.GetCart(ctx, id)
	}

	sessionCart, err := s.guest.Get(ctx, id.Token)
	if err != nil {
		return nil, err
	}
	found := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == productID && sameLine(sessionCart.Items[i].ProductVariantID, variantID) {
			sessionCart.Items = append(sessionCart.Items[:i], sessionCart.Items[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return nil, ErrItemNotFound
	}
	sessionCart.UpdatedAt = time.Now().UTC()
	if err := s.guest.Save(ctx, id.Token, sessionCart); err != nil {
		return nil, err
	}
	return s.GetCart(ctx, id)
}

// Clear removes every line from the cart
func (s *Service) Clear(ctx context.Context, id Identity) error {
	if id.IsUser() {
		return s.users.Clear(*id.UserID)
	}
	return s.guest.Delete(ctx, id.Token)
}

// Merge folds a guest cart into a user cart at authentication time.
// Matching (product, variant) lines have their quantities summed, other
// lines move over, and the guest cart is deleted afterwards whether or not
// the user had a pre-existing cart. The row writes run in one transaction;
// because the apply is an upsert keyed by the unique line index, a retry
// after a crash converges instead of duplicating lines.
func (s *Service) Merge(ctx context.Context, token string, userID uint) error {
	if done, err := s.users.Merged(token); err != nil {
		return err
	} else if done {
		// A previous merge committed but left the guest blob behind
		return s.guest.Delete(ctx, token)
	}

	guestCart, err := s.guest.Get(ctx, token)
	if err != nil || len(guestCart.Items) == 0 {
		// No guest cart to merge; still drop the key
		return s.guest.Delete(ctx, token)
	}

	userItems, err := s.users.Items(userID)
	if err != nil {
		return err
	}

	merged := PlanMerge(userItems, guestCart.Items)
	if err := s.users.ApplyMerge(userID, token, merged); err != nil {
		return fmt.Errorf("failed to merge guest cart: %w", err)
	}

	if err := s.guest.Delete(ctx, token); err != nil {
		// The merge is committed; a stale guest blob re-merges into the
		// same rows, so this is only worth a warning
		logrus.WithField("token", token).WithError(err).Warn("failed to delete guest cart after merge")
	}
	return nil
}

// PlanMerge computes the upserts that fold guest lines into user lines.
// For each guest line matching an existing (product, variant) pair the
// quantities are summed; unmatched guest lines carry over as-is.
func PlanMerge(userItems []CartItem, guestItems []SessionCartItem) []CartItem {
	merged := make([]CartItem, 0, len(guestItems))
	for _, guestItem := range guestItems {
		out := CartItem{
			ProductID:        guestItem.ProductID,
			ProductVariantID: guestItem.ProductVariantID,
			Quantity:         guestItem.Quantity,
			Price:            guestItem.Price,
		}
		for _, userItem := range userItems {
			if userItem.ProductID == guestItem.ProductID && sameLine(userItem.ProductVariantID, guestItem.ProductVariantID) {
				out.Quantity = userItem.Quantity + guestItem.Quantity
				out.Price = userItem.Price
				break
			}
		}
		merged = append(merged, out)
	}
	return merged
}

// StockLines converts the cart view into stock validation input
func (v *View) StockLines() []stock.Line {
	lines := make([]stock.Line, len(v.Items))
	for i, item := range v.Items {
		lines[i] = stock.Line{
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			Quantity:         item.Quantity,
		}
	}
	return lines
}

// Private helpers

func (s *Service) findLine(ctx context.Context, id Identity, productID uint, variantID *uint) (*ItemView, error) {
	view, err := s.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range view.Items {
		if view.Items[i].ProductID == productID && sameLine(view.Items[i].ProductVariantID, variantID) {
			return &view.Items[i], nil
		}
	}
	return nil, nil
}

func (s *Service) writeGuestLine(ctx context.Context, token string, productID uint, variantID *uint, quantity int, price int64) error {
	sessionCart, err := s.guest.Get(ctx, token)
	if err != nil {
		return err
	}

	found := false
	for i := range sessionCart.Items {
		if sessionCart.Items[i].ProductID == productID && sameLine(sessionCart.Items[i].ProductVariantID, variantID) {
			sessionCart.Items[i].Quantity = quantity
			sessionCart.Items[i].Price = price
			found = true
			break
		}
	}
	if !found {
		sessionCart.Items = append(sessionCart.Items, SessionCartItem{
			ProductID:        productID,
			ProductVariantID: variantID,
			Quantity:         quantity,
			Price:            price,
			AddedAt:          time.Now().UTC(),
		})
	}

	sessionCart.UpdatedAt = time.Now().UTC()
	return s.guest.Save(ctx, token, sessionCart)
}

func (s *Service) loadProductDetails(items []ItemView) {
	for i := range items {
		prod, err := s.catalog.FindProduct(items[i].ProductID)
		if err != nil {
			continue // Skip lines whose product vanished
		}
		items[i].Product = prod

		if items[i].ProductVariantID != nil {
			if variant, err := s.catalog.FindVariant(*items[i].ProductVariantID, items[i].ProductID); err == nil {
				items[i].ProductVariant = variant
			}
		}
	}
}

func calculateTotals(items []ItemView) Totals {
	var totals Totals
	totals.ItemCount = len(items)
	for _, item := range items {
		totals.TotalQuantity += item.Quantity
		totals.SubTotal += item.Price * int64(item.Quantity)
	}
	return totals
}
