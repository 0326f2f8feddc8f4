// internal/pkg/email/types.go
package email

// Type labels the kind of email being sent
type Type string

const (
	TypeShipmentDispatched Type = "shipment_dispatched"
)

// Email represents an outbound message
type Email struct {
	To          []string `json:"to"`
	Subject     string   `json:"subject"`
	HTMLContent string   `json:"html_content"`
	Type        Type     `json:"type"`
}

// ShipmentDispatchedData feeds the dispatch notification template
type ShipmentDispatchedData struct {
	SiteName       string
	CustomerName   string
	OrderNumber    string
	Carrier        string
	TrackingNumber string
	Estimate       string
	Year           int
}
