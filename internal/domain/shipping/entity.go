// internal/domain/shipping/entity.go
package shipping

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"
)

// RateType identifies the pricing strategy attached to a shipping method
type RateType string

const (
	RateFlat     RateType = "flat"      // fixed amount
	RateFreeOver RateType = "free_over" // free above a subtotal threshold, flat below
	RateTiered   RateType = "tiered"    // banded by subtotal or weight
)

// TierBasis selects what a tiered method's bands are matched against
type TierBasis string

const (
	TierBasisPrice  TierBasis = "price"  // bands compared against order subtotal in cents
	TierBasisWeight TierBasis = "weight" // bands compared against total weight in grams
)

// Zone represents a named set of destination countries
type Zone struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null;size:255" json:"name"`
	Countries string         `gorm:"size:1000" json:"countries"` // Comma-separated ISO codes, empty = all countries
	IsActive  bool           `gorm:"default:true" json:"is_active"`
	Position  int            `gorm:"default:0" json:"position"` // Lower wins on ambiguous matches
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Methods []Method `gorm:"foreignKey:ZoneID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"methods,omitempty"`
}

// Method represents a shipping method belonging to exactly one zone
type Method struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	ZoneID           uint           `gorm:"not null;index" json:"zone_id"`
	Name             string         `gorm:"not null;size:255" json:"name"`
	RateType         RateType       `gorm:"not null;size:20;default:'flat'" json:"rate_type"`
	Amount           int64          `gorm:"default:0" json:"amount"`           // Flat rate in cents, also the fallback for free_over
	FreeOverAmount   int64          `gorm:"default:0" json:"free_over_amount"` // Subtotal threshold in cents
	TierBasis        TierBasis      `gorm:"size:10;default:'price'" json:"tier_basis"`
	Tiers            string         `gorm:"type:text" json:"tiers"` // JSON array of {min,max,rate} bands
	EstimatedDaysMin int            `gorm:"default:0" json:"estimated_days_min"`
	EstimatedDaysMax int            `gorm:"default:0" json:"estimated_days_max"`
	IsActive         bool           `gorm:"default:true" json:"is_active"`
	Position         int            `gorm:"default:0" json:"position"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

// RateTier is one band of a tiered method
type RateTier struct {
	Min  int64 `json:"min"`
	Max  int64 `json:"max"`
	Rate int64 `json:"rate"`
}

// TableName overrides
func (Zone) TableName() string   { return "shipping_zones" }
func (Method) TableName() string { return "shipping_methods" }

// CountryList returns the zone's country codes, upper-cased and trimmed
func (z *Zone) CountryList() []string {
	if strings.TrimSpace(z.Countries) == "" {
		return nil
	}
	parts := strings.Split(z.Countries, ",")
	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if code := strings.ToUpper(strings.TrimSpace(p)); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// Matches reports whether the zone covers the given country code.
// An empty country set means the zone covers all countries.
func (z *Zone) Matches(countryCode string) bool {
	codes := z.CountryList()
	if len(codes) == 0 {
		return true
	}
	countryCode = strings.ToUpper(strings.TrimSpace(countryCode))
	for _, code := range codes {
		if code == countryCode {
			return true
		}
	}
	return false
}

// RateTiers parses the method's band list. Malformed JSON yields no bands,
// which the cost function treats as a configuration gap.
func (m *Method) RateTiers() []RateTier {
	if strings.TrimSpace(m.Tiers) == "" {
		return nil
	}
	var tiers []RateTier
	if err := json.Unmarshal([]byte(m.Tiers), &tiers); err != nil {
		return nil
	}
	return tiers
}
