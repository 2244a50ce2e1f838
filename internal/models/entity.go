package models

import (
	"time"
)

// Entity type tags stored alongside each document.
const (
	EntityTypeState    = "state"
	EntityTypeCounty   = "county"
	EntityTypeProperty = "property"
)

// TaxLienStatusActive is the single tax status value that drives the
// lien-count statistics. Any other value means no active lien.
const TaxLienStatusActive = "Active"

// Statistics is the aggregate block carried by every State and County.
// Totals are maintained incrementally by the hierarchy service and
// authoritatively by the recalculators; AveragePropertyValue is recomputed
// on every write so it is never stale relative to the stored totals.
type Statistics struct {
	TotalProperties          int       `json:"totalProperties"`
	TotalTaxLiens            int       `json:"totalTaxLiens"`
	TotalValue               float64   `json:"totalValue"`
	AveragePropertyValue     float64   `json:"averagePropertyValue"`
	TotalPropertiesWithLiens int       `json:"totalPropertiesWithLiens"`
	LastUpdated              time.Time `json:"lastUpdated"`
}

// RecomputeAverage derives AveragePropertyValue from the stored totals.
// Zero properties yields a zero average, never a division by zero.
func (s *Statistics) RecomputeAverage() {
	if s.TotalProperties > 0 {
		s.AveragePropertyValue = s.TotalValue / float64(s.TotalProperties)
	} else {
		s.AveragePropertyValue = 0
	}
}

// State is a top-level entity owning counties.
// All nullable fields use pointers to distinguish zero values from NULL.
type State struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Abbreviation  *string    `json:"abbreviation,omitempty"`
	Geometry      Geometry   `json:"geometry,omitempty"`
	TotalCounties int        `json:"totalCounties"`
	Statistics    Statistics `json:"statistics"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// County is owned by exactly one State and owns properties.
type County struct {
	ID         string     `json:"id"`
	StateID    string     `json:"stateId"`
	Name       string     `json:"name"`
	FIPSCode   *string    `json:"fipsCode,omitempty"`
	Geometry   Geometry   `json:"geometry,omitempty"`
	Statistics Statistics `json:"statistics"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// TaxStatus carries the lien and valuation fields of a property.
// TaxLienStatus == "Active" is the sole predicate for lien statistics.
type TaxStatus struct {
	TaxLienStatus string     `json:"taxLienStatus"`
	AssessedValue float64    `json:"assessedValue"`
	MarketValue   float64    `json:"marketValue"`
	LienAmount    *float64   `json:"lienAmount,omitempty"`
	SaleDate      *time.Time `json:"saleDate,omitempty"`
}

// HasActiveLien reports whether the property contributes to lien counts.
func (t TaxStatus) HasActiveLien() bool {
	return t.TaxLienStatus == TaxLienStatusActive
}

// Property is a leaf entity owned by exactly one County. CountyID can only
// change through the hierarchy service's move operation, never a plain
// update, so the containment statistics stay consistent.
type Property struct {
	ID           string    `json:"id"`
	CountyID     string    `json:"countyId"`
	StateID      string    `json:"stateId"`
	ParcelNumber *string   `json:"parcelNumber,omitempty"`
	Address      *string   `json:"address,omitempty"`
	OwnerName    *string   `json:"ownerName,omitempty"`
	Geometry     Geometry  `json:"geometry,omitempty"`
	TaxStatus    TaxStatus `json:"taxStatus"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
