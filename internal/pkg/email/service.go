// internal/pkg/email/service.go
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/mnlamart/shop-sub002/internal/domain/order"
	"github.com/sirupsen/logrus"
)

// Service sends transactional emails over SMTP
type Service struct {
	config *config.Config
}

// NewService creates a new email service
func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg}
}

var dispatchTemplate = template.Must(template.New("shipment_dispatched").Parse(`
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Your order is on its way</h2>
  <p>Hi {{.CustomerName}},</p>
  <p>Order <strong>{{.OrderNumber}}</strong> has been handed to {{.Carrier}}.</p>
  <p>Tracking number: <strong>{{.TrackingNumber}}</strong></p>
  {{if .Estimate}}<p>Estimated delivery: {{.Estimate}}</p>{{end}}
  <p>Thanks for shopping with {{.SiteName}}.</p>
  <p style="color: #999; font-size: 12px;">&copy; {{.Year}} {{.SiteName}}</p>
</body>
</html>
`))

// SendShipmentDispatched notifies the customer that their parcel shipped
func (s *Service) SendShipmentDispatched(o *order.Order) error {
	if o.Email == "" {
		return fmt.Errorf("order %s has no email address", o.OrderNumber)
	}

	data := ShipmentDispatchedData{
		SiteName:       s.config.App.Name,
		CustomerName:   o.ShippingAddress.FirstName,
		OrderNumber:    o.OrderNumber,
		Carrier:        o.ShippingCarrier,
		TrackingNumber: o.TrackingNumber,
		Year:           time.Now().Year(),
	}

	var body bytes.Buffer
	if err := dispatchTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to render dispatch email: %w", err)
	}

	msg := &Email{
		To:          []string{o.Email},
		Subject:     fmt.Sprintf("Your order %s has shipped", o.OrderNumber),
		HTMLContent: body.String(),
		Type:        TypeShipmentDispatched,
	}
	if err := s.sendSMTP(msg); err != nil {
		return fmt.Errorf("failed to send dispatch email: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"order_number": o.OrderNumber,
		"to":           o.Email,
	}).Info("Dispatch email sent")
	return nil
}
