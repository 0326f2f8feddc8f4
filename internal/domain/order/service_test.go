// internal/domain/order/service_test.go
package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/carrier"
	"github.com/mnlamart/shop-sub002/internal/domain/cart"
	"github.com/mnlamart/shop-sub002/internal/domain/checkout"
	"github.com/mnlamart/shop-sub002/internal/domain/payment"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory collaborators

type memRepo struct {
	mu         sync.Mutex
	orders     map[uint]*Order
	bySession  map[string]uint
	nextID     uint
	decrements []StockDecrement
	restocks   []StockDecrement
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[uint]*Order), bySession: make(map[string]uint)}
}

func (r *memRepo) FindBySessionID(sessionID string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r.orders[id]
	return &copied, nil
}

func (r *memRepo) FindByID(id uint) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *memRepo) ListByUser(userID uint, limit, offset int) ([]Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memRepo) CreateFromSnapshot(o *Order, decrements []StockDecrement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bySession[o.CheckoutSessionID]; exists {
		return ErrDuplicateSession
	}
	r.nextID++
	o.ID = r.nextID
	copied := *o
	r.orders[o.ID] = &copied
	r.bySession[o.CheckoutSessionID] = o.ID
	r.decrements = append(r.decrements, decrements...)
	return nil
}

func (r *memRepo) ApplyTransition(o *Order, history StatusHistory, restock []StockDecrement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *o
	copied.StatusHistory = append(copied.StatusHistory, history)
	r.orders[o.ID] = &copied
	r.restocks = append(r.restocks, restock...)
	return nil
}

type memSnapshots struct {
	mu       sync.Mutex
	sessions map[string]*checkout.Session
	deleted  []string
}

func newMemSnapshots() *memSnapshots {
	return &memSnapshots{sessions: make(map[string]*checkout.Session)}
}

func (m *memSnapshots) Save(ctx context.Context, session *checkout.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session
	return nil
}

func (m *memSnapshots) Get(ctx context.Context, sessionID string) (*checkout.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, checkout.ErrSnapshotNotFound
	}
	return session, nil
}

func (m *memSnapshots) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	m.deleted = append(m.deleted, sessionID)
	return nil
}

type memProvider struct {
	mu     sync.Mutex
	status payment.Status
	email  string
	calls  int
}

func (m *memProvider) CreateSession(ctx context.Context, req payment.CreateSessionRequest) (*payment.Session, error) {
	return nil, errors.New("not used")
}

func (m *memProvider) GetSession(ctx context.Context, sessionID string) (*payment.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return &payment.Session{ID: sessionID, PaymentStatus: m.status, CustomerEmail: m.email}, nil
}

type memChecker struct {
	err error
}

func (m *memChecker) Validate(lines []stock.Line) error { return m.err }

type memCarrier struct {
	mu        sync.Mutex
	tracking  *carrier.TrackingInfo
	err       error
	shipments []*carrier.ShipmentRequest
}

func (m *memCarrier) GetTrackingInfo(ctx context.Context, trackingNumber string) (*carrier.TrackingInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tracking, nil
}

func (m *memCarrier) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.shipments = append(m.shipments, req)
	return &carrier.Shipment{TrackingNumber: "TRK-123", Carrier: "colissimo", LabelURL: "https://carrier.example.com/label/TRK-123"}, nil
}

type memCleaner struct {
	mu      sync.Mutex
	cleared []cart.Identity
}

func (m *memCleaner) Clear(ctx context.Context, id cart.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleared = append(m.cleared, id)
	return nil
}

type memNotifier struct {
	sent chan string
}

func newMemNotifier() *memNotifier {
	return &memNotifier{sent: make(chan string, 4)}
}

func (m *memNotifier) SendShipmentDispatched(o *Order) error {
	m.sent <- o.OrderNumber
	return nil
}

// Fixtures

type fixture struct {
	repo      *memRepo
	snapshots *memSnapshots
	provider  *memProvider
	checker   *memChecker
	carrier   *memCarrier
	cleaner   *memCleaner
	notifier  *memNotifier
	service   *Service
}

func newFixture() *fixture {
	cfg := &config.Config{}
	cfg.Checkout.ProcessorTimeout = 5 * time.Second
	cfg.Store.DefaultWeightGrams = 100
	cfg.Store.OriginName = "Shop Warehouse"
	cfg.Store.OriginCountry = "FR"

	f := &fixture{
		repo:      newMemRepo(),
		snapshots: newMemSnapshots(),
		provider:  &memProvider{status: payment.StatusPaid},
		checker:   &memChecker{},
		carrier:   &memCarrier{},
		cleaner:   &memCleaner{},
		notifier:  newMemNotifier(),
	}
	f.service = NewService(f.repo, f.snapshots, f.provider, f.checker, f.carrier, f.cleaner, f.notifier, cfg)
	return f
}

func testSnapshot(sessionID string) *checkout.Session {
	variantID := uint(21)
	return &checkout.Session{
		ID:        sessionID,
		CartToken: "guest-token",
		Email:     "jo@example.com",
		Lines: []checkout.Line{
			{ProductID: 1, SKU: "MUG-1", Name: "Coffee Mug", Quantity: 2, UnitPrice: 1500, WeightGrams: 300},
			{ProductID: 2, ProductVariantID: &variantID, SKU: "TEE-1-L", Name: "T-Shirt", VariantTitle: "Large", Quantity: 1, UnitPrice: 2700, WeightGrams: 180},
		},
		ShippingMethodID:   1,
		ShippingMethodName: "Standard",
		ShippingCost:       500,
		Subtotal:           4700,
		Total:              5200,
		Currency:           "usd",
		Address: checkout.Address{
			FirstName: "Jo", LastName: "Doe", Line1: "1 Main St",
			City: "Lyon", PostalCode: "69000", Country: "FR",
		},
		CreatedAt: time.Now().UTC(),
	}
}

// Materializer tests

func TestMaterialize_CreatesOrderFromSnapshot(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.snapshots.Save(context.Background(), testSnapshot("cs_1")))

	o, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)

	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, "cs_1", o.CheckoutSessionID)
	assert.Equal(t, int64(4700), o.SubtotalAmount)
	assert.Equal(t, int64(500), o.ShippingAmount)
	assert.Equal(t, int64(5200), o.TotalAmount)
	assert.Equal(t, "jo@example.com", o.Email)
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(1500), o.Items[0].Price)
	assert.Equal(t, int64(3000), o.Items[0].TotalPrice)
	assert.Equal(t, "Large", o.Items[1].VariantTitle)
	assert.False(t, o.StockFlagged)

	// Stock was decremented per line
	require.Len(t, f.repo.decrements, 2)
	assert.Equal(t, 2, f.repo.decrements[0].Quantity)

	// Cart and snapshot cleaned up
	require.Len(t, f.cleaner.cleared, 1)
	assert.Equal(t, "guest-token", f.cleaner.cleared[0].Token)
	assert.Contains(t, f.snapshots.deleted, "cs_1")
}

func TestMaterialize_SecondCallIsNoOp(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.snapshots.Save(context.Background(), testSnapshot("cs_1")))

	first, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)
	second, err := f.service.Materialize(context.Background(), "cs_1", "poll")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	assert.Len(t, f.repo.orders, 1)
}

func TestMaterialize_ConcurrentTriggersProduceOneOrder(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.snapshots.Save(context.Background(), testSnapshot("cs_race")))

	const n = 20
	results := make([]*Order, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.Materialize(context.Background(), "cs_race", "poll")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, results[0].ID, results[i].ID)
		assert.Equal(t, results[0].OrderNumber, results[i].OrderNumber)
	}
	assert.Len(t, f.repo.orders, 1)
	// Stock moved exactly once despite n triggers
	assert.Len(t, f.repo.decrements, 2)
}

func TestMaterialize_UnpaidSessionRejected(t *testing.T) {
	f := newFixture()
	f.provider.status = payment.StatusPending
	require.NoError(t, f.snapshots.Save(context.Background(), testSnapshot("cs_1")))

	_, err := f.service.Materialize(context.Background(), "cs_1", "poll")
	assert.ErrorIs(t, err, ErrPaymentNotConfirmed)
	assert.Empty(t, f.repo.orders)
	// Snapshot stays for later triggers
	_, err = f.snapshots.Get(context.Background(), "cs_1")
	assert.NoError(t, err)
}

func TestMaterialize_UnknownSession(t *testing.T) {
	f := newFixture()
	_, err := f.service.Materialize(context.Background(), "cs_missing", "reconcile")
	assert.ErrorIs(t, err, checkout.ErrSnapshotNotFound)
}

func TestMaterialize_ShortageFlagsOrderInsteadOfDropping(t *testing.T) {
	f := newFixture()
	f.checker.err = &stock.ShortageError{Shortages: []stock.Shortage{
		{ProductID: 1, ProductName: "Coffee Mug", Requested: 2, Available: 1},
	}}
	require.NoError(t, f.snapshots.Save(context.Background(), testSnapshot("cs_1")))

	o, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)
	assert.True(t, o.StockFlagged)
	assert.Contains(t, o.InternalNotes, "Coffee Mug")
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestMaterialize_FreezesSnapshotPrices(t *testing.T) {
	f := newFixture()
	snapshot := testSnapshot("cs_1")
	require.NoError(t, f.snapshots.Save(context.Background(), snapshot))

	// Catalog price changes between submission and payment are irrelevant;
	// nothing in materialization consults the catalog for prices
	o, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)
	assert.Equal(t, snapshot.Lines[0].UnitPrice, o.Items[0].Price)
	assert.Equal(t, snapshot.Total, o.TotalAmount)
}

func TestMaterialize_FallsBackToProviderEmail(t *testing.T) {
	f := newFixture()
	f.provider.email = "paid-as@example.com"
	snapshot := testSnapshot("cs_1")
	snapshot.Email = ""
	require.NoError(t, f.snapshots.Save(context.Background(), snapshot))

	o, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)
	assert.Equal(t, "paid-as@example.com", o.Email)
}

// Status machine tests

func materializedOrder(t *testing.T, f *fixture) *Order {
	t.Helper()
	require.NoError(t, f.snapshots.Save(context.Background(), testSnapshot("cs_1")))
	o, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)
	return o
}

func TestUpdateStatus_HappyPath(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	for _, next := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		updated, err := f.service.UpdateStatus(o.ID, next, "", nil)
		require.NoError(t, err)
		assert.Equal(t, next, updated.Status)
	}

	final, err := f.service.Get(o.ID)
	require.NoError(t, err)
	assert.NotNil(t, final.DeliveredAt)
}

func TestUpdateStatus_RejectsSkippingStates(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	_, err := f.service.UpdateStatus(o.ID, StatusDelivered, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_RejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	_, err := f.service.UpdateStatus(o.ID, Status("misplaced"), "", nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestUpdateStatus_TerminalStatesAreSticky(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	_, err := f.service.UpdateStatus(o.ID, StatusCancelled, "customer request", nil)
	require.NoError(t, err)

	_, err = f.service.UpdateStatus(o.ID, StatusProcessing, "", nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	_, err := f.service.UpdateStatus(o.ID, StatusCancelled, "customer request", nil)
	require.NoError(t, err)

	require.Len(t, f.repo.restocks, 2)
	assert.Equal(t, 2, f.repo.restocks[0].Quantity)
	assert.Equal(t, 1, f.repo.restocks[1].Quantity)
}

// Tracking sync tests

func shippedOrder(t *testing.T, f *fixture) *Order {
	t.Helper()
	o := materializedOrder(t, f)
	_, err := f.service.UpdateStatus(o.ID, StatusProcessing, "", nil)
	require.NoError(t, err)
	shipped, err := f.service.CreateShipment(context.Background(), o.ID, nil)
	require.NoError(t, err)
	return shipped
}

func TestSyncTracking_AdvancesToDelivered(t *testing.T) {
	f := newFixture()
	o := shippedOrder(t, f)
	deliveredAt := time.Now().UTC().Add(-time.Hour)
	f.carrier.tracking = &carrier.TrackingInfo{
		TrackingNumber: o.TrackingNumber,
		Status:         carrier.TrackingDelivered,
		DeliveredAt:    &deliveredAt,
	}

	synced, err := f.service.SyncTracking(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, synced.Status)
	require.NotNil(t, synced.DeliveredAt)
	assert.Equal(t, deliveredAt, *synced.DeliveredAt)
}

func TestSyncTracking_NeverRegresses(t *testing.T) {
	f := newFixture()
	o := shippedOrder(t, f)
	_, err := f.service.UpdateStatus(o.ID, StatusDelivered, "", nil)
	require.NoError(t, err)

	// Stale carrier feed still says in transit
	f.carrier.tracking = &carrier.TrackingInfo{Status: carrier.TrackingInTransit}

	synced, err := f.service.SyncTracking(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, synced.Status)
}

func TestSyncTracking_NeverLeavesCancelled(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)
	_, err := f.service.UpdateStatus(o.ID, StatusCancelled, "", nil)
	require.NoError(t, err)

	f.carrier.tracking = &carrier.TrackingInfo{Status: carrier.TrackingDelivered}

	synced, err := f.service.SyncTracking(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, synced.Status)
}

func TestSyncTracking_CarrierFailureDegrades(t *testing.T) {
	f := newFixture()
	o := shippedOrder(t, f)
	f.carrier.err = errors.New("carrier down")

	synced, err := f.service.SyncTracking(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, synced.Status)
}

func TestSyncTracking_RequiresTrackingNumber(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	_, err := f.service.SyncTracking(context.Background(), o.ID)
	assert.ErrorIs(t, err, ErrNoTrackingNumber)
}

// Shipment tests

func TestCreateShipment_SetsTrackingAndShips(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)
	_, err := f.service.UpdateStatus(o.ID, StatusProcessing, "", nil)
	require.NoError(t, err)

	shipped, err := f.service.CreateShipment(context.Background(), o.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, shipped.Status)
	assert.Equal(t, "TRK-123", shipped.TrackingNumber)
	assert.Equal(t, "colissimo", shipped.ShippingCarrier)
	assert.NotNil(t, shipped.ShippedAt)

	require.Len(t, f.carrier.shipments, 1)
	assert.Equal(t, "Jo Doe", f.carrier.shipments[0].ToName)
	assert.Equal(t, "FR", f.carrier.shipments[0].ToCountry)

	select {
	case number := <-f.notifier.sent:
		assert.Equal(t, shipped.OrderNumber, number)
	case <-time.After(time.Second):
		t.Fatal("dispatch email was never sent")
	}
}

func TestCreateShipment_RequiresProcessingStatus(t *testing.T) {
	f := newFixture()
	o := materializedOrder(t, f)

	_, err := f.service.CreateShipment(context.Background(), o.ID, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, f.carrier.shipments)
}

// Ownership tests

func TestGetForUser_EnforcesOwnership(t *testing.T) {
	f := newFixture()
	userID := uint(7)
	snapshot := testSnapshot("cs_1")
	snapshot.CartUserID = &userID
	snapshot.CartToken = ""
	require.NoError(t, f.snapshots.Save(context.Background(), snapshot))
	o, err := f.service.Materialize(context.Background(), "cs_1", "webhook")
	require.NoError(t, err)

	found, err := f.service.GetForUser(o.ID, userID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, found.ID)

	_, err = f.service.GetForUser(o.ID, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}
