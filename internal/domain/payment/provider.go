// internal/domain/payment/provider.go
package payment

import (
	"context"
	"errors"
)

// Status enumerates the normalized payment states of a checkout session
type Status string

const (
	// StatusPending indicates the session is awaiting customer action
	StatusPending Status = "pending"
	// StatusPaid indicates the processor reports the payment as captured
	StatusPaid Status = "paid"
	// StatusFailed indicates the session expired or the payment failed
	StatusFailed Status = "failed"
)

// ErrSessionNotFound is returned when the processor does not know the session
var ErrSessionNotFound = errors.New("payment session not found")

// LineItem describes a single line to include in a checkout session
type LineItem struct {
	Name       string
	SKU        string
	Quantity   int64
	UnitAmount int64 // cents
}

// CreateSessionRequest captures the payload required to create a session.
// Prices are always server-computed by the caller; client-supplied amounts
// never reach this struct.
type CreateSessionRequest struct {
	Currency       string
	Items          []LineItem
	ShippingLabel  string
	ShippingAmount int64
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// Session represents the processor-held session
type Session struct {
	ID            string
	RedirectURL   string
	PaymentStatus Status
	CustomerEmail string
}

// Provider is the external payment processor collaborator. Implementations
// must be safe for concurrent use.
type Provider interface {
	// CreateSession submits a priced snapshot and returns the session id
	// and the redirect handle for the customer
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	// GetSession re-reads the session's payment status from the processor
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}
