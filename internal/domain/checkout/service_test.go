// internal/domain/checkout/service_test.go
package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/cart"
	"github.com/mnlamart/shop-sub002/internal/domain/payment"
	"github.com/mnlamart/shop-sub002/internal/domain/product"
	"github.com/mnlamart/shop-sub002/internal/domain/shipping"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory collaborators

type memCartSource struct {
	view *cart.View
	err  error
}

func (m *memCartSource) GetCart(ctx context.Context, id cart.Identity) (*cart.View, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

type memRates struct {
	methods []shipping.Method
}

func (m *memRates) MethodsFor(countryCode string) ([]shipping.Method, error) {
	return m.methods, nil
}

func (m *memRates) GetMethod(methodID uint, countryCode string) (*shipping.Method, error) {
	for i := range m.methods {
		if m.methods[i].ID == methodID {
			return &m.methods[i], nil
		}
	}
	return nil, shipping.ErrMethodNotFound
}

type memChecker struct {
	err error
}

func (m *memChecker) Validate(lines []stock.Line) error {
	return m.err
}

type memProvider struct {
	mu       sync.Mutex
	requests []payment.CreateSessionRequest
	fail     bool
}

func (m *memProvider) CreateSession(ctx context.Context, req payment.CreateSessionRequest) (*payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errors.New("processor unavailable")
	}
	m.requests = append(m.requests, req)
	return &payment.Session{
		ID:            "cs_test_123",
		RedirectURL:   "https://pay.example.com/cs_test_123",
		PaymentStatus: payment.StatusPending,
	}, nil
}

func (m *memProvider) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	return &payment.Session{ID: sessionID, PaymentStatus: payment.StatusPending}, nil
}

type memSnapshots struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{sessions: make(map[string]*Session)}
}

func (m *memSnapshots) Save(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memSnapshots) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *memSnapshots) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Fixtures

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Store.Currency = "usd"
	cfg.Store.DefaultWeightGrams = 100
	cfg.Checkout.SuccessURL = "https://shop.example.com/checkout/success"
	cfg.Checkout.CancelURL = "https://shop.example.com/checkout/cancel"
	return cfg
}

func testCartView() *cart.View {
	mug := &product.Product{ID: 1, SKU: "MUG-1", Name: "Coffee Mug", Price: 1500, Weight: 300, TrackQuantity: true, Quantity: 10, IsActive: true}
	tee := &product.Product{ID: 2, SKU: "TEE-1", Name: "T-Shirt", Price: 2500, TrackQuantity: true, Quantity: 10, IsActive: true}
	teeL := &product.ProductVariant{ID: 21, ProductID: 2, SKU: "TEE-1-L", Name: "Large", Price: 2700, Weight: 180, Quantity: 5, IsActive: true}
	variantID := teeL.ID

	items := []cart.ItemView{
		{ProductID: 1, Quantity: 2, Price: 1400, Product: mug, AddedAt: time.Now()},
		{ProductID: 2, ProductVariantID: &variantID, Quantity: 1, Price: 2700, Product: tee, ProductVariant: teeL, AddedAt: time.Now()},
	}
	return &cart.View{
		Token: "guest-token",
		Items: items,
		Totals: cart.Totals{
			ItemCount:     2,
			TotalQuantity: 3,
			SubTotal:      2*1400 + 2700,
		},
	}
}

func flatMethod(id uint, name string, amount int64) shipping.Method {
	return shipping.Method{ID: id, Name: name, RateType: shipping.RateFlat, Amount: amount, IsActive: true}
}

func newTestService(carts CartSource, rates RateSource, checker StockChecker, provider payment.Provider, snapshots SnapshotStore) *Service {
	return NewService(carts, rates, checker, provider, snapshots, testConfig())
}

// Tests

func TestCreateSession_FreezesCurrentCatalogPrices(t *testing.T) {
	provider := &memProvider{}
	snapshots := newMemSnapshots()
	service := newTestService(
		&memCartSource{view: testCartView()},
		&memRates{methods: []shipping.Method{flatMethod(1, "Standard", 500)}},
		&memChecker{},
		provider,
		snapshots,
	)

	result, err := service.CreateSession(context.Background(), cart.Identity{Token: "guest-token"}, &CreateSessionRequest{
		ShippingMethodID: 1,
		Email:            "jo@example.com",
		Address:          Address{FirstName: "Jo", LastName: "Doe", Line1: "1 Main St", City: "Lyon", PostalCode: "69000", Country: "FR"},
	})
	require.NoError(t, err)

	// Catalog prices win over stale cart prices: the mug is 1500 in the
	// catalog even though the cart line says 1400
	assert.Equal(t, int64(2*1500+2700+500), result.Total)
	assert.Equal(t, "cs_test_123", result.SessionID)
	assert.Equal(t, "https://pay.example.com/cs_test_123", result.RedirectURL)

	snapshot, err := snapshots.Get(context.Background(), "cs_test_123")
	require.NoError(t, err)
	require.Len(t, snapshot.Lines, 2)
	assert.Equal(t, int64(1500), snapshot.Lines[0].UnitPrice)
	assert.Equal(t, int64(2700), snapshot.Lines[1].UnitPrice)
	assert.Equal(t, "TEE-1-L", snapshot.Lines[1].SKU)
	assert.Equal(t, "Large", snapshot.Lines[1].VariantTitle)
	assert.Equal(t, int64(500), snapshot.ShippingCost)
	assert.Equal(t, int64(2*1500+2700), snapshot.Subtotal)
	assert.Equal(t, "guest-token", snapshot.CartToken)

	require.Len(t, provider.requests, 1)
	assert.Equal(t, "usd", provider.requests[0].Currency)
	assert.Equal(t, int64(500), provider.requests[0].ShippingAmount)
	assert.NotEmpty(t, provider.requests[0].IdempotencyKey)
	assert.Equal(t, "guest-token", provider.requests[0].Metadata["cart_token"])
}

func TestCreateSession_EmptyCartRejected(t *testing.T) {
	service := newTestService(
		&memCartSource{view: &cart.View{Token: "guest-token"}},
		&memRates{},
		&memChecker{},
		&memProvider{},
		newMemSnapshots(),
	)

	_, err := service.CreateSession(context.Background(), cart.Identity{Token: "guest-token"}, &CreateSessionRequest{
		ShippingMethodID: 1,
		Email:            "jo@example.com",
		Address:          Address{Country: "FR"},
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateSession_GuestWithoutEmailRejected(t *testing.T) {
	service := newTestService(
		&memCartSource{view: testCartView()},
		&memRates{},
		&memChecker{},
		&memProvider{},
		newMemSnapshots(),
	)

	_, err := service.CreateSession(context.Background(), cart.Identity{Token: "guest-token"}, &CreateSessionRequest{
		ShippingMethodID: 1,
		Address:          Address{Country: "FR"},
	})
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestCreateSession_ShortageAbortsBeforeProvider(t *testing.T) {
	provider := &memProvider{}
	shortage := &stock.ShortageError{Shortages: []stock.Shortage{
		{ProductID: 1, ProductName: "Coffee Mug", Requested: 2, Available: 1},
	}}
	service := newTestService(
		&memCartSource{view: testCartView()},
		&memRates{methods: []shipping.Method{flatMethod(1, "Standard", 500)}},
		&memChecker{err: shortage},
		provider,
		newMemSnapshots(),
	)

	_, err := service.CreateSession(context.Background(), cart.Identity{Token: "guest-token"}, &CreateSessionRequest{
		ShippingMethodID: 1,
		Email:            "jo@example.com",
		Address:          Address{Country: "FR"},
	})

	var shortageErr *stock.ShortageError
	require.ErrorAs(t, err, &shortageErr)
	assert.Len(t, shortageErr.Shortages, 1)
	assert.Empty(t, provider.requests)
}

func TestCreateSession_UnknownShippingMethod(t *testing.T) {
	service := newTestService(
		&memCartSource{view: testCartView()},
		&memRates{methods: []shipping.Method{flatMethod(1, "Standard", 500)}},
		&memChecker{},
		&memProvider{},
		newMemSnapshots(),
	)

	_, err := service.CreateSession(context.Background(), cart.Identity{Token: "guest-token"}, &CreateSessionRequest{
		ShippingMethodID: 99,
		Email:            "jo@example.com",
		Address:          Address{Country: "FR"},
	})
	assert.ErrorIs(t, err, shipping.ErrMethodNotFound)
}

func TestCreateSession_ProviderFailureLeavesNoSnapshot(t *testing.T) {
	snapshots := newMemSnapshots()
	service := newTestService(
		&memCartSource{view: testCartView()},
		&memRates{methods: []shipping.Method{flatMethod(1, "Standard", 500)}},
		&memChecker{},
		&memProvider{fail: true},
		snapshots,
	)

	_, err := service.CreateSession(context.Background(), cart.Identity{Token: "guest-token"}, &CreateSessionRequest{
		ShippingMethodID: 1,
		Email:            "jo@example.com",
		Address:          Address{Country: "FR"},
	})
	require.Error(t, err)
	assert.Empty(t, snapshots.sessions)
}

func TestCreateSession_UserIdentityInMetadata(t *testing.T) {
	provider := &memProvider{}
	userID := uint(42)
	view := testCartView()
	view.Token = ""
	view.UserID = &userID

	service := newTestService(
		&memCartSource{view: view},
		&memRates{methods: []shipping.Method{flatMethod(1, "Standard", 500)}},
		&memChecker{},
		provider,
		newMemSnapshots(),
	)

	_, err := service.CreateSession(context.Background(), cart.Identity{UserID: &userID}, &CreateSessionRequest{
		ShippingMethodID: 1,
		Address:          Address{Country: "FR"},
	})
	require.NoError(t, err)
	require.Len(t, provider.requests, 1)
	assert.Equal(t, "42", provider.requests[0].Metadata["user_id"])
}

func TestGetSummary_PricesEveryMethod(t *testing.T) {
	methods := []shipping.Method{
		flatMethod(1, "Standard", 500),
		{ID: 2, Name: "Free over 40", RateType: shipping.RateFreeOver, Amount: 900, FreeOverAmount: 4000, IsActive: true},
	}
	service := newTestService(
		&memCartSource{view: testCartView()},
		&memRates{methods: methods},
		&memChecker{},
		&memProvider{},
		newMemSnapshots(),
	)

	summary, err := service.GetSummary(context.Background(), cart.Identity{Token: "guest-token"}, "FR")
	require.NoError(t, err)
	require.Len(t, summary.Methods, 2)
	assert.Equal(t, int64(500), summary.Methods[0].Cost)
	// Catalog subtotal is 5700, above the 4000 threshold
	assert.Equal(t, int64(0), summary.Methods[1].Cost)
	assert.Equal(t, "usd", summary.Currency)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snapshots := newMemSnapshots()
	session := &Session{ID: "cs_x", Total: 1234, Currency: "usd"}
	require.NoError(t, snapshots.Save(context.Background(), session))

	loaded, err := snapshots.Get(context.Background(), "cs_x")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), loaded.Total)

	require.NoError(t, snapshots.Delete(context.Background(), "cs_x"))
	_, err = snapshots.Get(context.Background(), "cs_x")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
