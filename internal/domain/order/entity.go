// internal/domain/order/entity.go
package order

import (
	"fmt"
	"hash/fnv"
	"time"

	"gorm.io/gorm"
)

// Status represents the order lifecycle state
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// transitions is the forward edge set of the lifecycle. Cancelled is
// reachable from every non-terminal state; delivered and cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered, StatusCancelled},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

// ValidStatus reports whether s names a known lifecycle state
func ValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether moving from one state to another is allowed
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// rank orders the forward states so tracking sync never moves backwards
var rank = map[Status]int{
	StatusPending:    0,
	StatusConfirmed:  1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// Ahead reports whether s is strictly further along the forward path than
// other. Cancelled has no rank and is never ahead of anything.
func (s Status) Ahead(other Status) bool {
	sr, ok1 := rank[s]
	or, ok2 := rank[other]
	return ok1 && ok2 && sr > or
}

// Order is the durable record materialized from a paid checkout session
type Order struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	OrderNumber       string `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	CheckoutSessionID string `gorm:"uniqueIndex;not null;size:255" json:"checkout_session_id"`
	UserID            *uint  `gorm:"index" json:"user_id"` // Nullable for guest orders
	Email             string `gorm:"not null;size:255" json:"email"`
	Status            Status `gorm:"not null;default:'pending'" json:"status"`

	// Amounts in cents, frozen from the checkout snapshot
	SubtotalAmount int64  `gorm:"not null" json:"subtotal_amount"`
	ShippingAmount int64  `gorm:"default:0" json:"shipping_amount"`
	TotalAmount    int64  `gorm:"not null" json:"total_amount"`
	Currency       string `gorm:"size:3;default:'USD'" json:"currency"`

	// Destination, denormalized at materialization time
	ShippingAddress Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	ShippingMethod  string  `gorm:"size:100" json:"shipping_method"`

	// Set when the post-payment stock re-check found a shortage
	StockFlagged  bool   `gorm:"default:false" json:"stock_flagged"`
	InternalNotes string `gorm:"type:text" json:"-"`

	// Carrier handoff
	TrackingNumber  string     `gorm:"size:100" json:"tracking_number"`
	ShippingCarrier string     `gorm:"size:50" json:"shipping_carrier"`
	LabelURL        string     `gorm:"size:512" json:"-"`
	ShippedAt       *time.Time `json:"shipped_at"`
	DeliveredAt     *time.Time `json:"delivered_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []StatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is one frozen line of an order. Name, SKU and price are copied
// from the checkout snapshot and never re-read from the catalog.
type OrderItem struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	OrderID          uint      `gorm:"not null;index" json:"order_id"`
	ProductID        uint      `gorm:"not null;index" json:"product_id"`
	ProductVariantID *uint     `gorm:"index" json:"product_variant_id"`
	SKU              string    `gorm:"not null;size:100" json:"sku"`
	Name             string    `gorm:"not null;size:255" json:"name"`
	VariantTitle     string    `gorm:"size:255" json:"variant_title"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	Price            int64     `gorm:"not null" json:"price"`       // Per unit in cents
	TotalPrice       int64     `gorm:"not null" json:"total_price"` // Quantity * Price
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// StatusHistory tracks order status changes
type StatusHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	Status    Status    `gorm:"not null" json:"status"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedBy *uint     `gorm:"index" json:"created_by"` // Nil for system changes
	CreatedAt time.Time `json:"created_at"`
}

// Address is the shipping destination embedded in Order
type Address struct {
	FirstName    string `gorm:"size:100" json:"first_name"`
	LastName     string `gorm:"size:100" json:"last_name"`
	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	AddressLine2 string `gorm:"size:255" json:"address_line2"`
	City         string `gorm:"size:100" json:"city"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code"`
	Country      string `gorm:"size:2" json:"country"`
	Phone        string `gorm:"size:20" json:"phone"`
}

// FullName renders the recipient name for labels and emails
func (a Address) FullName() string {
	return a.FirstName + " " + a.LastName
}

// TableName overrides
func (Order) TableName() string         { return "orders" }
func (OrderItem) TableName() string     { return "order_items" }
func (StatusHistory) TableName() string { return "order_status_history" }

// GenerateOrderNumber derives the customer-facing identifier from the
// checkout session id, so racing materializations of the same session
// compute the same number. Format: ORD-YYYYMMDD-XXXXXXXX
func GenerateOrderNumber(sessionID string, at time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(sessionID))
	return fmt.Sprintf("ORD-%s-%08X", at.Format("20060102"), h.Sum32())
}

// CanBeCancelled checks if the order can still be cancelled
func (o *Order) CanBeCancelled() bool {
	return CanTransition(o.Status, StatusCancelled)
}

// AddStatusHistory appends a status change to the in-memory history
func (o *Order) AddStatusHistory(status Status, comment string, createdBy *uint) {
	o.StatusHistory = append(o.StatusHistory, StatusHistory{
		OrderID:   o.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	})
}
