package cart

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memGuestStore struct {
	m     sync.Mutex
	carts map[string]*SessionCart
}

func newMemGuestStore() *memGuestStore {
	return &memGuestStore{carts: make(map[string]*SessionCart)}
}

func (s *memGuestStore) Get(_ context.Context, token string) (*SessionCart, error) {
	s.m.Lock()
	defer s.m.Unlock()
	if c, ok := s.carts[token]; ok {
		copied := *c
		copied.Items = append([]SessionCartItem(nil), c.Items...)
		return &copied, nil
	}
	now := time.Now().UTC()
	return &SessionCart{Token: token, Items: []SessionCartItem{}, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *memGuestStore) Save(_ context.Context, token string, cart *SessionCart) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.carts[token] = cart
	return nil
}

func (s *memGuestStore) Delete(_ context.Context, token string) error {
	s.m.Lock()
	defer s.m.Unlock()
	delete(s.carts, token)
	return nil
}

func (s *memGuestStore) exists(token string) bool {
	s.m.Lock()
	defer s.m.Unlock()
	_, ok := s.carts[token]
	return ok
}

type memUserStore struct {
	m      sync.Mutex
	nextID uint
	items  []CartItem
	merged map[string]bool
}

func (s *memUserStore) Items(userID uint) ([]CartItem, error) {
	s.m.Lock()
	defer s.m.Unlock()
	var out []CartItem
	for _, item := range s.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memUserStore) Upsert(item *CartItem) error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.upsertLocked(item)
}

func (s *memUserStore) upsertLocked(item *CartItem) error {
	for i := range s.items {
		if s.items[i].UserID == item.UserID && s.items[i].ProductID == item.ProductID && sameLine(s.items[i].ProductVariantID, item.ProductVariantID) {
			s.items[i].Quantity = item.Quantity
			s.items[i].Price = item.Price
			*item = s.items[i]
			return nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	item.CreatedAt = time.Now().UTC()
	s.items = append(s.items, *item)
	return nil
}

func (s *memUserStore) Delete(userID, productID uint, variantID *uint) error {
	s.m.Lock()
	defer s.m.Unlock()
	for i := range s.items {
		if s.items[i].UserID == userID && s.items[i].ProductID == productID && sameLine(s.items[i].ProductVariantID, variantID) {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

func (s *memUserStore) Clear(userID uint) error {
	s.m.Lock()
	defer s.m.Unlock()
	var kept []CartItem
	for _, item := range s.items {
		if item.UserID != userID {
			kept = append(kept, item)
		}
	}
	s.items = kept
	return nil
}

func (s *memUserStore) ApplyMerge(userID uint, token string, items []CartItem) error {
	s.m.Lock()
	defer s.m.Unlock()
	if s.merged == nil {
		s.merged = make(map[string]bool)
	}
	s.merged[token] = true
	for i := range items {
		items[i].UserID = userID
		if err := s.upsertLocked(&items[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memUserStore) Merged(token string) (bool, error) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.merged[token], nil
}

type memCatalog struct {
	products map[uint]*product.Product
	variants map[uint]*product.ProductVariant
}

func (m *memCatalog) FindProduct(id uint) (*product.Product, error) {
	if p, ok := m.products[id]; ok {
		return p, nil
	}
	return nil, product.ErrNotFound
}

func (m *memCatalog) FindVariant(id, productID uint) (*product.ProductVariant, error) {
	if v, ok := m.variants[id]; ok && v.ProductID == productID {
		return v, nil
	}
	return nil, product.ErrNotFound
}

func uintPtr(v uint) *uint { return &v }

func testService() (*Service, *memGuestStore, *memUserStore) {
	guest := newMemGuestStore()
	users := &memUserStore{}
	catalog := &memCatalog{
		products: map[uint]*product.Product{
			1: {ID: 1, Name: "Candle", Price: 1500, TrackQuantity: true, Quantity: 10},
			2: {ID: 2, Name: "Soap", Price: 700, TrackQuantity: true, Quantity: 5},
			3: {ID: 3, Name: "Shirt", Price: 2900, TrackQuantity: true, Quantity: 50},
		},
		variants: map[uint]*product.ProductVariant{
			7: {ID: 7, ProductID: 3, Name: "Shirt / M", Price: 3100, Quantity: 4},
		},
	}
	svc := NewService(guest, users, catalog, &config.Config{})
	return svc, guest, users
}

func TestAddItem_MergesDuplicateLine(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()
	id := Identity{Token: "tok-1"}

	_, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)

	view, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 1, Quantity: 3})
	require.NoError(t, err)

	// One line per (product, variant) pair, quantities summed
	require.Len(t, view.Items, 1)
	assert.Equal(t, 5, view.Items[0].Quantity)
	assert.Equal(t, int64(1500*5), view.Totals.SubTotal)
}

func TestAddItem_VariantIsADistinctLine(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()
	id := Identity{Token: "tok-1"}

	_, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 3, Quantity: 1})
	require.NoError(t, err)
	view, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 3, ProductVariantID: uintPtr(7), Quantity: 1})
	require.NoError(t, err)

	assert.Len(t, view.Items, 2)
}

func TestAddItem_RejectsOverselling(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()
	id := Identity{Token: "tok-1"}

	_, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 2, Quantity: 4})
	require.NoError(t, err)

	// 4 already in the cart + 2 more exceeds the 5 in stock
	_, err = svc.AddItem(ctx, id, &AddItemRequest{ProductID: 2, Quantity: 2})
	var shortage *stock.ShortageError
	require.ErrorAs(t, err, &shortage)
	assert.Equal(t, 6, shortage.Shortages[0].Requested)
	assert.Equal(t, 5, shortage.Shortages[0].Available)
}

func TestUpdateQuantity_RejectsNonPositive(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()
	id := Identity{Token: "tok-1"}

	_, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	_, err = svc.UpdateQuantity(ctx, id, 1, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.UpdateQuantity(ctx, id, 1, nil, -2)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRemove_DropsLine(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()
	id := Identity{Token: "tok-1"}

	_, err := svc.AddItem(ctx, id, &AddItemRequest{ProductID: 1, Quantity: 1})
	require.NoError(t, err)

	view, err := svc.Remove(ctx, id, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, view.Items)

	_, err = svc.Remove(ctx, id, 1, nil)
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestMerge_Conservation(t *testing.T) {
	svc, guest, _ := testService()
	ctx := context.Background()
	userID := uint(42)
	userIdentity := Identity{UserID: &userID}

	// User already has 2x product 1 and 1x product 3
	_, err := svc.AddItem(ctx, userIdentity, &AddItemRequest{ProductID: 1, Quantity: 2})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, userIdentity, &AddItemRequest{ProductID: 3, Quantity: 1})
	require.NoError(t, err)

	// Guest has 3x product 1 and 1x product 2
	guestIdentity := Identity{Token: "guest-tok"}
	_, err = svc.AddItem(ctx, guestIdentity, &AddItemRequest{ProductID: 1, Quantity: 3})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, guestIdentity, &AddItemRequest{ProductID: 2, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, svc.Merge(ctx, "guest-tok", userID))

	view, err := svc.GetCart(ctx, userIdentity)
	require.NoError(t, err)

	quantities := map[uint]int{}
	for _, item := range view.Items {
		quantities[item.ProductID] = item.Quantity
	}
	// Per-pair quantity equals the sum of both carts
	assert.Equal(t, 5, quantities[1])
	assert.Equal(t, 1, quantities[2])
	assert.Equal(t, 1, quantities[3])

	// The guest cart no longer exists
	assert.False(t, guest.exists("guest-tok"))
}

func TestMerge_EmptyGuestCartIsANoOp(t *testing.T) {
	svc, _, _ := testService()
	ctx := context.Background()
	userID := uint(42)

	require.NoError(t, svc.Merge(ctx, "never-used", userID))

	view, err := svc.GetCart(ctx, Identity{UserID: &userID})
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestMerge_RerunConverges(t *testing.T) {
	// A crashed merge that left the guest blob behind must not duplicate
	// lines when merge runs again
	svc, guest, users := testService()
	ctx := context.Background()
	userID := uint(42)

	guestIdentity := Identity{Token: "guest-tok"}
	_, err := svc.AddItem(ctx, guestIdentity, &AddItemRequest{ProductID: 1, Quantity: 3})
	require.NoError(t, err)

	userItems, err := users.Items(userID)
	require.NoError(t, err)
	guestCart, err := guest.Get(ctx, "guest-tok")
	require.NoError(t, err)

	plan := PlanMerge(userItems, guestCart.Items)
	require.NoError(t, users.ApplyMerge(userID, "guest-tok", plan))
	// Simulate the crash: guest blob not deleted, merge re-runs fully
	require.NoError(t, svc.Merge(ctx, "guest-tok", userID))

	view, err := svc.GetCart(ctx, Identity{UserID: &userID})
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
}

func TestPlanMerge_SumsMatchingPairs(t *testing.T) {
	userItems := []CartItem{
		{UserID: 1, ProductID: 10, Quantity: 2, Price: 100},
		{UserID: 1, ProductID: 11, ProductVariantID: uintPtr(5), Quantity: 1, Price: 200},
	}
	guestItems := []SessionCartItem{
		{ProductID: 10, Quantity: 3, Price: 120},
		{ProductID: 11, ProductVariantID: uintPtr(6), Quantity: 4, Price: 210},
	}

	plan := PlanMerge(userItems, guestItems)
	require.Len(t, plan, 2)

	assert.Equal(t, uint(10), plan[0].ProductID)
	assert.Equal(t, 5, plan[0].Quantity)
	assert.Equal(t, int64(100), plan[0].Price) // existing line keeps its price

	// Different variant of the same product is a separate pair and moves as-is
	assert.Equal(t, uint(11), plan[1].ProductID)
	assert.Equal(t, 4, plan[1].Quantity)
}

func TestGetCart_LazyGuestCart(t *testing.T) {
	svc, guest, _ := testService()

	view, err := svc.GetCart(context.Background(), Identity{Token: "fresh"})
	require.NoError(t, err)
	assert.Empty(t, view.Items)
	// Reading never persists an empty cart
	assert.False(t, guest.exists("fresh"))
}
