package models

import (
	"time"
)

// DefaultStatus is assigned to properties created without a status.
const DefaultStatus = "unknown"

// Attributes holds every mergeable property attribute.
// All nullable fields use pointers to distinguish "never observed" from a zero value.
type Attributes struct {
	County  *string `json:"county,omitempty"`
	ZipCode *string `json:"zip_code,omitempty"`

	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
	FormattedAddress *string  `json:"formatted_address,omitempty"`
	StreetViewURL    *string  `json:"street_view_url,omitempty"`
	ThumbnailURL     *string  `json:"thumbnail_url,omitempty"`

	PropertyType  *string  `json:"property_type,omitempty"`
	BuildingType  *string  `json:"building_type,omitempty"`
	YearBuilt     *int     `json:"year_built,omitempty"`
	SquareFootage *int     `json:"square_footage,omitempty"`
	LotSizeSqft   *int     `json:"lot_size_sqft,omitempty"`
	NumBedrooms   *int     `json:"num_bedrooms,omitempty"`
	NumBathrooms  *float64 `json:"num_bathrooms,omitempty"`
	NumStories    *int     `json:"num_stories,omitempty"`

	OwnerName     *string    `json:"owner_name,omitempty"`
	OwnerContact  *string    `json:"owner_contact,omitempty"`
	LastSaleDate  *time.Time `json:"last_sale_date,omitempty"`
	LastSalePrice *float64   `json:"last_sale_price,omitempty"`
	AssessedValue *float64   `json:"current_assessed_value,omitempty"`

	Status          *string    `json:"status,omitempty"`
	AbandonmentDate *time.Time `json:"abandonment_date,omitempty"`
	YearsAbandoned  *float64   `json:"years_abandoned,omitempty"`

	TaxDelinquent        *bool    `json:"tax_delinquent,omitempty"`
	TaxDelinquencyYears  *int     `json:"tax_delinquency_years,omitempty"`
	TaxDelinquencyAmount *float64 `json:"tax_delinquency_amount,omitempty"`
	TaxID                *string  `json:"tax_id,omitempty"`

	ForeclosureStatus *string    `json:"foreclosure_status,omitempty"`
	ForeclosureDate   *time.Time `json:"foreclosure_date,omitempty"`
	ForeclosureAmount *float64   `json:"foreclosure_amount,omitempty"`
	AuctionDate       *time.Time `json:"auction_date,omitempty"`
	AuctionURL        *string    `json:"auction_url,omitempty"`

	StructuralCondition *string    `json:"structural_condition,omitempty"`
	Hazards             StringList `json:"hazards,omitempty"`
	HasSecurity         *bool      `json:"has_security,omitempty"`
	SecurityType        *string    `json:"security_type,omitempty"`

	DemolitionScheduled    *bool      `json:"demolition_scheduled,omitempty"`
	DemolitionDate         *time.Time `json:"demolition_date,omitempty"`
	DemolitionPermitNumber *string    `json:"demolition_permit_number,omitempty"`

	HasViolations  *bool `json:"has_violations,omitempty"`
	ViolationCount *int  `json:"violation_count,omitempty"`
	Condemned      *bool `json:"condemned,omitempty"`

	LastVerified     *time.Time `json:"last_verified,omitempty"`
	ExplorationScore *int       `json:"exploration_score,omitempty"`
}

// Property is the canonical, deduplicated record of one physical property.
// (Address, City, State) is unique across the store; City is "" when unknown.
type Property struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`

	Attributes

	AbandonmentScore int        `json:"abandonment_score"`
	DataSources      StringList `json:"data_sources"`
	DiscoveredAt     time.Time  `json:"discovered_at"`
	LastUpdated      time.Time  `json:"last_updated"`
}

// Record is one sanitized observation of a property. Every field is
// optional; nil means the source did not supply it. A non-nil
// AbandonmentScore is an externally supplied score and is trusted as-is.
type Record struct {
	Address *string `json:"address,omitempty"`
	City    *string `json:"city,omitempty"`
	State   *string `json:"state,omitempty"`

	Attributes

	AbandonmentScore *int `json:"abandonment_score,omitempty"`
}

// PropertySummary is the flat reporting projection shared by the list
// endpoints, map features and the CSV export.
type PropertySummary struct {
	ID                  int64    `json:"id"`
	Address             string   `json:"address"`
	City                string   `json:"city"`
	County              *string  `json:"county"`
	State               string   `json:"state"`
	ZipCode             *string  `json:"zip_code"`
	Latitude            *float64 `json:"latitude"`
	Longitude           *float64 `json:"longitude"`
	PropertyType        *string  `json:"property_type"`
	BuildingType        *string  `json:"building_type"`
	YearBuilt           *int     `json:"year_built"`
	Status              string   `json:"status"`
	AbandonmentScore    int      `json:"abandonment_score"`
	ExplorationScore    int      `json:"exploration_score"`
	TaxDelinquent       bool     `json:"tax_delinquent"`
	ForeclosureStatus   *string  `json:"foreclosure_status"`
	DemolitionScheduled bool     `json:"demolition_scheduled"`
	DemolitionDate      *string  `json:"demolition_date"`
}

// Summary projects the property onto the reporting fields.
func (p *Property) Summary() PropertySummary {
	s := PropertySummary{
		ID:                p.ID,
		Address:           p.Address,
		City:              p.City,
		County:            p.County,
		State:             p.State,
		ZipCode:           p.ZipCode,
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
		PropertyType:      p.PropertyType,
		BuildingType:      p.BuildingType,
		YearBuilt:         p.YearBuilt,
		Status:            DefaultStatus,
		AbandonmentScore:  p.AbandonmentScore,
		ForeclosureStatus: p.ForeclosureStatus,
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.ExplorationScore != nil {
		s.ExplorationScore = *p.ExplorationScore
	}
	if p.TaxDelinquent != nil {
		s.TaxDelinquent = *p.TaxDelinquent
	}
	if p.DemolitionScheduled != nil {
		s.DemolitionScheduled = *p.DemolitionScheduled
	}
	if p.DemolitionDate != nil {
		d := p.DemolitionDate.Format(DateLayout)
		s.DemolitionDate = &d
	}
	return s
}

// Summaries projects a slice of properties.
func Summaries(props []Property) []PropertySummary {
	out := make([]PropertySummary, len(props))
	for i := range props {
		out[i] = props[i].Summary()
	}
	return out
}

// DateLayout is the ISO-8601 calendar date layout used in projections.
const DateLayout = "2006-01-02"

// Statistics aggregates the canonical store.
type Statistics struct {
	Total         int64 `json:"total"`
	Abandoned     int64 `json:"abandoned"`
	Foreclosed    int64 `json:"foreclosed"`
	TaxDelinquent int64 `json:"tax_delinquent"`
	HighScore     int64 `json:"high_score"`
}

// HighScoreThreshold is the minimum abandonment score counted as high.
const HighScoreThreshold = 7
