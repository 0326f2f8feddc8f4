// internal/domain/shipping/service.go
package shipping

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mnlamart/shop-sub002/internal/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrMethodNotFound is returned when a method does not exist or does not
// cover the destination country
var ErrMethodNotFound = errors.New("shipping method not found")

// Service handles shipping zone resolution and rate computation
type Service struct {
	db     *gorm.DB
	config *config.Config
}

// NewService creates a new shipping service
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{
		db:     db,
		config: cfg,
	}
}

// MethodsFor returns all active methods whose zone covers the given country,
// ordered by zone position, zone name, then method position
func (s *Service) MethodsFor(countryCode string) ([]Method, error) {
	var zones []Zone
	err := s.db.Preload("Methods", "is_active = ?", true).
		Where("is_active = ?", true).
		Find(&zones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load shipping zones: %w", err)
	}

	return ResolveMethods(zones, countryCode), nil
}

// GetMethod returns an active method by id together with its zone,
// verifying the zone covers the destination country
func (s *Service) GetMethod(methodID uint, countryCode string) (*Method, error) {
	var method Method
	err := s.db.Where("id = ? AND is_active = ?", methodID, true).First(&method).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("failed to load shipping method: %w", err)
	}

	var zone Zone
	err = s.db.Where("id = ? AND is_active = ?", method.ZoneID, true).First(&zone).Error
	if err != nil {
		return nil, fmt.Errorf("shipping zone not found for method %d", methodID)
	}

	if !zone.Matches(countryCode) {
		return nil, fmt.Errorf("method %q does not ship to %s: %w", method.Name, countryCode, ErrMethodNotFound)
	}

	return &method, nil
}

// ResolveMethods filters and orders the methods of the given zones for a
// destination country. Lower zone position wins; ties break alphabetically
// by zone name; methods keep their own position order within a zone.
func ResolveMethods(zones []Zone, countryCode string) []Method {
	matching := make([]Zone, 0, len(zones))
	for _, z := range zones {
		if z.IsActive && z.Matches(countryCode) {
			matching = append(matching, z)
		}
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if matching[i].Position != matching[j].Position {
			return matching[i].Position < matching[j].Position
		}
		return matching[i].Name < matching[j].Name
	})

	var methods []Method
	for _, z := range matching {
		zoneMethods := make([]Method, 0, len(z.Methods))
		for _, m := range z.Methods {
			if m.IsActive {
				zoneMethods = append(zoneMethods, m)
			}
		}
		sort.SliceStable(zoneMethods, func(i, j int) bool {
			return zoneMethods[i].Position < zoneMethods[j].Position
		})
		methods = append(methods, zoneMethods...)
	}

	return methods
}

// Cost computes the shipping cost in cents for a method given the order
// subtotal (cents) and the total cart weight (grams)
func Cost(m *Method, subtotal int64, weightGrams float64) int64 {
	switch m.RateType {
	case RateFlat:
		return m.Amount

	case RateFreeOver:
		if subtotal >= m.FreeOverAmount {
			return 0
		}
		return m.Amount

	case RateTiered:
		value := subtotal
		if m.TierBasis == TierBasisWeight {
			value = int64(weightGrams)
		}
		for _, tier := range m.RateTiers() {
			if value >= tier.Min && value <= tier.Max {
				return tier.Rate
			}
		}
		// No matching band is a configuration gap, not an error; it ships
		// free but is logged so the gap shows up in operations
		logrus.WithFields(logrus.Fields{
			"method_id": m.ID,
			"value":     value,
			"basis":     m.TierBasis,
		}).Warn("tiered shipping method has no matching band, charging zero")
		return 0
	}

	return m.Amount
}

// WeightedItem is one cart line's contribution to the total shipment weight
type WeightedItem struct {
	Grams    float64
	Quantity int
}

// TotalWeight sums line weights across the cart
func TotalWeight(items []WeightedItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Grams * float64(item.Quantity)
	}
	return total
}

// EstimateLabel renders the method's delivery estimate for display
func (m *Method) EstimateLabel() string {
	switch {
	case m.EstimatedDaysMin == 0 && m.EstimatedDaysMax == 0:
		return ""
	case m.EstimatedDaysMin == m.EstimatedDaysMax || m.EstimatedDaysMin == 0:
		return fmt.Sprintf("%d days", m.EstimatedDaysMax)
	default:
		return fmt.Sprintf("%d-%d days", m.EstimatedDaysMin, m.EstimatedDaysMax)
	}
}

// Admin operations

// ListZones returns all zones with their methods for the admin screens
func (s *Service) ListZones() ([]Zone, error) {
	var zones []Zone
	err := s.db.Preload("Methods").
		Order("position ASC, name ASC").
		Find(&zones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shipping zones: %w", err)
	}
	return zones, nil
}

// SaveZone creates or updates a zone
func (s *Service) SaveZone(zone *Zone) error {
	if zone.Name == "" {
		return fmt.Errorf("zone name is required")
	}
	if err := s.db.Save(zone).Error; err != nil {
		return fmt.Errorf("failed to save shipping zone: %w", err)
	}
	return nil
}

// SaveMethod creates or updates a method after validating its rate parameters
func (s *Service) SaveMethod(method *Method) error {
	if method.Name == "" {
		return fmt.Errorf("method name is required")
	}
	switch method.RateType {
	case RateFlat, RateFreeOver:
	case RateTiered:
		if len(method.RateTiers()) == 0 {
			return fmt.Errorf("tiered method requires at least one valid band")
		}
	default:
		return fmt.Errorf("unknown rate type %q", method.RateType)
	}

	var count int64
	if err := s.db.Model(&Zone{}).Where("id = ?", method.ZoneID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to verify zone: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("shipping zone %d not found", method.ZoneID)
	}

	if err := s.db.Save(method).Error; err != nil {
		return fmt.Errorf("failed to save shipping method: %w", err)
	}
	return nil
}

// DeleteMethod removes a method
func (s *Service) DeleteMethod(methodID uint) error {
	return s.db.Delete(&Method{}, methodID).Error
}
