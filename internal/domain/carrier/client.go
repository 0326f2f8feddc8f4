// internal/domain/carrier/client.go
package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mnlamart/shop-sub002/internal/config"
)

// ErrShipmentNotFound is returned when the carrier does not know the
// tracking number
var ErrShipmentNotFound = errors.New("shipment not found at carrier")

// TrackingStatus is the carrier's coarse delivery state
type TrackingStatus string

const (
	TrackingInTransit TrackingStatus = "in_transit"
	TrackingDelivered TrackingStatus = "delivered"
	TrackingException TrackingStatus = "exception"
)

// TrackingInfo is the carrier's view of a shipment in flight
type TrackingInfo struct {
	TrackingNumber string         `json:"tracking_number"`
	Status         TrackingStatus `json:"status"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	LastEvent      string         `json:"last_event,omitempty"`
}

// ShipmentRequest describes a parcel to hand to the carrier
type ShipmentRequest struct {
	OrderNumber string  `json:"order_number"`
	WeightGrams float64 `json:"weight_grams"`
	FromName    string  `json:"from_name"`
	FromLine1   string  `json:"from_line1"`
	FromCity    string  `json:"from_city"`
	FromPostal  string  `json:"from_postal"`
	FromCountry string  `json:"from_country"`
	ToName      string  `json:"to_name"`
	ToLine1     string  `json:"to_line1"`
	ToLine2     string  `json:"to_line2,omitempty"`
	ToCity      string  `json:"to_city"`
	ToPostal    string  `json:"to_postal"`
	ToCountry   string  `json:"to_country"`
}

// Shipment is the carrier's handle for a created parcel
type Shipment struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
	LabelURL       string `json:"label_url"`
}

// Client is the carrier collaborator. Implementations must be safe for
// concurrent use.
type Client interface {
	GetTrackingInfo(ctx context.Context, trackingNumber string) (*TrackingInfo, error)
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*Shipment, error)
}

// HTTPClient talks to the carrier's REST API
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a carrier client from config
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.External.Carrier.BaseURL,
		apiKey:  cfg.External.Carrier.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.External.Carrier.Timeout,
		},
	}
}

// GetTrackingInfo fetches the current tracking state for a shipment
func (c *HTTPClient) GetTrackingInfo(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	url := fmt.Sprintf("%s/tracking/%s", c.baseURL, trackingNumber)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var info TrackingInfo
		if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
			return nil, fmt.Errorf("failed to decode tracking response: %w", err)
		}
		return &info, nil
	case http.StatusNotFound:
		return nil, ErrShipmentNotFound
	default:
		return nil, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}
}

// CreateShipment registers a parcel with the carrier and returns its
// tracking handle and label
func (c *HTTPClient) CreateShipment(ctx context.Context, shipReq *ShipmentRequest) (*Shipment, error) {
	payload, err := json.Marshal(shipReq)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/shipments", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}

	var shipment Shipment
	if err := json.NewDecoder(resp.Body).Decode(&shipment); err != nil {
		return nil, fmt.Errorf("failed to decode shipment response: %w", err)
	}
	return &shipment, nil
}
