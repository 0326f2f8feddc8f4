// internal/domain/order/service.go
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/carrier"
	"github.com/mnlamart/shop-sub002/internal/domain/cart"
	"github.com/mnlamart/shop-sub002/internal/domain/checkout"
	"github.com/mnlamart/shop-sub002/internal/domain/payment"
	"github.com/mnlamart/shop-sub002/internal/domain/stock"
	"github.com/sirupsen/logrus"
)

var (
	// ErrPaymentNotConfirmed is returned when the processor does not report
	// the session as paid. Terminal for the triggering request; the next
	// trigger re-checks.
	ErrPaymentNotConfirmed = errors.New("payment not confirmed by processor")
	// ErrInvalidTransition is returned for a disallowed status change
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrInvalidStatus is returned for an unknown status name
	ErrInvalidStatus = errors.New("unknown order status")
	// ErrNoTrackingNumber is returned when tracking sync is requested for
	// an order that was never handed to a carrier
	ErrNoTrackingNumber = errors.New("order has no tracking number")
)

// CartCleaner empties the originating cart once an order materializes
type CartCleaner interface {
	Clear(ctx context.Context, id cart.Identity) error
}

// StockChecker re-validates snapshot quantities against live stock
type StockChecker interface {
	Validate(lines []stock.Line) error
}

// Notifier sends customer-facing order emails
type Notifier interface {
	SendShipmentDispatched(o *Order) error
}

// Service owns order materialization and the status lifecycle
type Service struct {
	repo      Repository
	snapshots checkout.SnapshotStore
	provider  payment.Provider
	validator StockChecker
	carrier   carrier.Client
	carts     CartCleaner
	notifier  Notifier
	config    *config.Config
}

// NewService creates a new order service
func NewService(repo Repository, snapshots checkout.SnapshotStore, provider payment.Provider, validator StockChecker, carrierClient carrier.Client, carts CartCleaner, notifier Notifier, cfg *config.Config) *Service {
	return &Service{
		repo:      repo,
		snapshots: snapshots,
		provider:  provider,
		validator: validator,
		carrier:   carrierClient,
		carts:     carts,
		notifier:  notifier,
		config:    cfg,
	}
}

// Materialize converts a paid checkout session into a durable order. It is
// safe to call any number of times, from any number of concurrent triggers:
// exactly one order ever exists per session, enforced by the unique index
// on checkout_session_id.
func (s *Service) Materialize(ctx context.Context, sessionID, trigger string) (*Order, error) {
	log := logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"trigger":    trigger,
	})

	// Fast path: a previous trigger already won
	existing, err := s.repo.FindBySessionID(sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	snapshot, err := s.snapshots.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.config.Checkout.ProcessorTimeout)
	defer cancel()
	session, err := s.provider.GetSession(checkCtx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if session.PaymentStatus != payment.StatusPaid {
		log.WithField("payment_status", session.PaymentStatus).Info("Materialization skipped, session not paid")
		return nil, ErrPaymentNotConfirmed
	}

	// Re-check stock against the snapshot. A shortage here means the stock
	// moved between submission and payment; the customer has already paid,
	// so the order is created anyway and flagged for manual fulfillment.
	stockFlagged := false
	internalNotes := ""
	if err := s.validator.Validate(snapshotStockLines(snapshot)); err != nil {
		var shortageErr *stock.ShortageError
		if !errors.As(err, &shortageErr) {
			return nil, fmt.Errorf("stock re-check failed: %w", err)
		}
		stockFlagged = true
		internalNotes = "Stock shortage at materialization: " + shortageErr.Error()
		log.WithField("shortages", len(shortageErr.Shortages)).Warn("Paid order exceeds available stock, flagging")
	}

	o, decrements := buildOrder(snapshot, session, stockFlagged, internalNotes)

	if err := s.repo.CreateFromSnapshot(o, decrements); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			// A concurrent trigger won the insert; their order is ours
			log.Info("Lost materialization race, returning existing order")
			return s.repo.FindBySessionID(sessionID)
		}
		return nil, err
	}

	log.WithField("order_number", o.OrderNumber).Info("Order materialized")

	// Best-effort cleanup; a leftover cart or snapshot cannot produce a
	// second order
	identity := cart.Identity{UserID: snapshot.CartUserID, Token: snapshot.CartToken}
	if err := s.carts.Clear(ctx, identity); err != nil {
		log.WithError(err).Warn("failed to clear cart after materialization")
	}
	if err := s.snapshots.Delete(ctx, sessionID); err != nil {
		log.WithError(err).Warn("failed to delete checkout snapshot")
	}

	return o, nil
}

// UpdateStatus moves an order through the lifecycle, recording history.
// Cancelling restores the stock the order had claimed.
func (s *Service) UpdateStatus(orderID uint, to Status, comment string, actor *uint) (*Order, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%q: %w", to, ErrInvalidStatus)
	}

	o, err := s.repo.FindByID(orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, to, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	var restock []StockDecrement

	switch to {
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	case StatusCancelled:
		restock = orderDecrements(o)
	}
	o.Status = to

	history := StatusHistory{
		Status:    to,
		Comment:   comment,
		CreatedBy: actor,
		CreatedAt: now,
	}
	if err := s.repo.ApplyTransition(o, history, restock); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"order_number": o.OrderNumber,
		"status":       to,
	}).Info("Order status updated")
	return o, nil
}

// SyncTracking reconciles the order status with the carrier. Carrier state
// can only move the order forward; a stale or confused carrier feed never
// regresses a status and never resurrects a cancelled order. Carrier
// failures degrade to the stored state.
func (s *Service) SyncTracking(ctx context.Context, orderID uint) (*Order, error) {
	o, err := s.repo.FindByID(orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusCancelled {
		return o, nil
	}
	if o.TrackingNumber == "" {
		return nil, ErrNoTrackingNumber
	}

	info, err := s.carrier.GetTrackingInfo(ctx, o.TrackingNumber)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"order_number":    o.OrderNumber,
			"tracking_number": o.TrackingNumber,
		}).WithError(err).Warn("carrier tracking lookup failed, keeping stored status")
		return o, nil
	}

	target := statusFromTracking(info.Status)
	if target == "" || !target.Ahead(o.Status) {
		return o, nil
	}
	if !CanTransition(o.Status, target) {
		return o, nil
	}

	now := time.Now().UTC()
	if target == StatusDelivered {
		if info.DeliveredAt != nil {
			o.DeliveredAt = info.DeliveredAt
		} else {
			o.DeliveredAt = &now
		}
	}
	o.Status = target

	history := StatusHistory{
		Status:    target,
		Comment:   "Carrier tracking update",
		CreatedAt: now,
	}
	if err := s.repo.ApplyTransition(o, history, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// CreateShipment hands the order's parcel to the carrier, records the
// tracking handle and moves the order to shipped. The dispatch email is
// fire-and-forget.
func (s *Service) CreateShipment(ctx context.Context, orderID uint, actor *uint) (*Order, error) {
	o, err := s.repo.FindByID(orderID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, StatusShipped) {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, StatusShipped, ErrInvalidTransition)
	}

	shipment, err := s.carrier.CreateShipment(ctx, s.shipmentRequest(o))
	if err != nil {
		return nil, fmt.Errorf("failed to create carrier shipment: %w", err)
	}

	now := time.Now().UTC()
	o.TrackingNumber = shipment.TrackingNumber
	o.ShippingCarrier = shipment.Carrier
	o.LabelURL = shipment.LabelURL
	o.ShippedAt = &now
	o.Status = StatusShipped

	history := StatusHistory{
		Status:    StatusShipped,
		Comment:   fmt.Sprintf("Shipment created, tracking %s", shipment.TrackingNumber),
		CreatedBy: actor,
		CreatedAt: now,
	}
	if err := s.repo.ApplyTransition(o, history, nil); err != nil {
		return nil, err
	}

	go func(dispatched Order) {
		if err := s.notifier.SendShipmentDispatched(&dispatched); err != nil {
			logrus.WithField("order_number", dispatched.OrderNumber).
				WithError(err).Warn("failed to send dispatch email")
		}
	}(*o)

	return o, nil
}

// Get returns an order by id
func (s *Service) Get(orderID uint) (*Order, error) {
	return s.repo.FindByID(orderID)
}

// GetForUser returns an order only if it belongs to the given user
func (s *Service) GetForUser(orderID, userID uint) (*Order, error) {
	o, err := s.repo.FindByID(orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID == nil || *o.UserID != userID {
		return nil, ErrNotFound
	}
	return o, nil
}

// List returns a user's orders, newest first
func (s *Service) List(userID uint, limit, offset int) ([]Order, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListByUser(userID, limit, offset)
}

// Internal helpers

// buildOrder freezes a snapshot into an order. The order is born confirmed:
// payment was verified before this point, and the pending history row keeps
// the full lifecycle visible.
func buildOrder(snapshot *checkout.Session, session *payment.Session, stockFlagged bool, internalNotes string) (*Order, []StockDecrement) {
	now := time.Now().UTC()

	email := snapshot.Email
	if email == "" {
		email = session.CustomerEmail
	}

	o := &Order{
		OrderNumber:       GenerateOrderNumber(snapshot.ID, now),
		CheckoutSessionID: snapshot.ID,
		UserID:            snapshot.CartUserID,
		Email:             email,
		Status:            StatusConfirmed,
		SubtotalAmount:    snapshot.Subtotal,
		ShippingAmount:    snapshot.ShippingCost,
		TotalAmount:       snapshot.Total,
		Currency:          snapshot.Currency,
		ShippingMethod:    snapshot.ShippingMethodName,
		StockFlagged:      stockFlagged,
		InternalNotes:     internalNotes,
		ShippingAddress: Address{
			FirstName:    snapshot.Address.FirstName,
			LastName:     snapshot.Address.LastName,
			AddressLine1: snapshot.Address.Line1,
			AddressLine2: snapshot.Address.Line2,
			City:         snapshot.Address.City,
			State:        snapshot.Address.State,
			PostalCode:   snapshot.Address.PostalCode,
			Country:      snapshot.Address.Country,
			Phone:        snapshot.Address.Phone,
		},
	}

	decrements := make([]StockDecrement, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		o.Items = append(o.Items, OrderItem{
			ProductID:        line.ProductID,
			ProductVariantID: line.ProductVariantID,
			SKU:              line.SKU,
			Name:             line.Name,
			VariantTitle:     line.VariantTitle,
			Quantity:         line.Quantity,
			Price:            line.UnitPrice,
			TotalPrice:       line.UnitPrice * int64(line.Quantity),
		})
		decrements = append(decrements, StockDecrement{
			ProductID:        line.ProductID,
			ProductVariantID: line.ProductVariantID,
			Quantity:         line.Quantity,
		})
	}

	o.StatusHistory = []StatusHistory{
		{Status: StatusPending, Comment: "Checkout session " + snapshot.ID, CreatedAt: now},
		{Status: StatusConfirmed, Comment: "Payment confirmed", CreatedAt: now},
	}

	return o, decrements
}

func snapshotStockLines(snapshot *checkout.Session) []stock.Line {
	lines := make([]stock.Line, len(snapshot.Lines))
	for i, line := range snapshot.Lines {
		lines[i] = stock.Line{
			ProductID:        line.ProductID,
			ProductVariantID: line.ProductVariantID,
			Quantity:         line.Quantity,
		}
	}
	return lines
}

func orderDecrements(o *Order) []StockDecrement {
	decrements := make([]StockDecrement, len(o.Items))
	for i, item := range o.Items {
		decrements[i] = StockDecrement{
			ProductID:        item.ProductID,
			ProductVariantID: item.ProductVariantID,
			Quantity:         item.Quantity,
		}
	}
	return decrements
}

func statusFromTracking(s carrier.TrackingStatus) Status {
	switch s {
	case carrier.TrackingInTransit:
		return StatusShipped
	case carrier.TrackingDelivered:
		return StatusDelivered
	default:
		return ""
	}
}

func (s *Service) shipmentRequest(o *Order) *carrier.ShipmentRequest {
	var weight float64
	for _, item := range o.Items {
		weight += s.config.Store.DefaultWeightGrams * float64(item.Quantity)
	}
	return &carrier.ShipmentRequest{
		OrderNumber: o.OrderNumber,
		WeightGrams: weight,
		FromName:    s.config.Store.OriginName,
		FromLine1:   s.config.Store.OriginLine1,
		FromCity:    s.config.Store.OriginCity,
		FromPostal:  s.config.Store.OriginPostalCode,
		FromCountry: s.config.Store.OriginCountry,
		ToName:      o.ShippingAddress.FullName(),
		ToLine1:     o.ShippingAddress.AddressLine1,
		ToLine2:     o.ShippingAddress.AddressLine2,
		ToCity:      o.ShippingAddress.City,
		ToPostal:    o.ShippingAddress.PostalCode,
		ToCountry:   o.ShippingAddress.Country,
	}
}
