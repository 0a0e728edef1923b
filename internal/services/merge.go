package services

import (
	"slices"
	"strconv"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/identity"
	"github.com/stwalsh4118/urbex/api/internal/models"
)

// merger applies a record to a property and collects one FieldChange per
// attribute whose value actually changed.
type merger struct {
	propertyID int64
	source     string
	now        time.Time
	changes    []models.FieldChange
}

func (m *merger) record(field string, oldValue, newValue *string) {
	m.changes = append(m.changes, models.FieldChange{
		PropertyID: m.propertyID,
		FieldName:  field,
		OldValue:   oldValue,
		NewValue:   newValue,
		ChangedAt:  m.now,
		Source:     m.source,
	})
}

// mergeValue overwrites *dst with *src when the record supplied a value.
// A nil src never clears an observed value.
func mergeValue[T comparable](m *merger, field string, dst **T, src *T) {
	if src == nil {
		return
	}
	if *dst != nil && **dst == *src {
		return
	}
	old := formatPtr(*dst)
	v := *src
	*dst = &v
	m.record(field, old, formatPtr(*dst))
}

func mergeDate(m *merger, field string, dst **time.Time, src *time.Time) {
	if src == nil {
		return
	}
	if *dst != nil && (*dst).Equal(*src) {
		return
	}
	old := formatPtr(*dst)
	v := *src
	*dst = &v
	m.record(field, old, formatPtr(*dst))
}

func mergeList(m *merger, field string, dst *models.StringList, src models.StringList) {
	if len(src) == 0 || slices.Equal(*dst, src) {
		return
	}
	old, _ := (*dst).Value()
	*dst = slices.Clone(src)
	newValue, _ := (*dst).Value()
	m.record(field, stringValue(old), stringValue(newValue))
}

func stringValue(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func formatPtr[T any](p *T) *string {
	if p == nil {
		return nil
	}
	s := formatValue(*p)
	return &s
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.Format(models.DateLayout)
	}
	return ""
}

// mergeAttributes applies every supplied attribute of src onto dst. Field
// names match the store's column names.
func mergeAttributes(m *merger, dst *models.Attributes, src *models.Attributes) {
	mergeValue(m, "county", &dst.County, src.County)
	mergeValue(m, "zip_code", &dst.ZipCode, src.ZipCode)
	mergeValue(m, "latitude", &dst.Latitude, src.Latitude)
	mergeValue(m, "longitude", &dst.Longitude, src.Longitude)
	mergeValue(m, "formatted_address", &dst.FormattedAddress, src.FormattedAddress)
	mergeValue(m, "street_view_url", &dst.StreetViewURL, src.StreetViewURL)
	mergeValue(m, "thumbnail_url", &dst.ThumbnailURL, src.ThumbnailURL)

	mergeValue(m, "property_type", &dst.PropertyType, src.PropertyType)
	mergeValue(m, "building_type", &dst.BuildingType, src.BuildingType)
	mergeValue(m, "year_built", &dst.YearBuilt, src.YearBuilt)
	mergeValue(m, "square_footage", &dst.SquareFootage, src.SquareFootage)
	mergeValue(m, "lot_size_sqft", &dst.LotSizeSqft, src.LotSizeSqft)
	mergeValue(m, "num_bedrooms", &dst.NumBedrooms, src.NumBedrooms)
	mergeValue(m, "num_bathrooms", &dst.NumBathrooms, src.NumBathrooms)
	mergeValue(m, "num_stories", &dst.NumStories, src.NumStories)

	mergeValue(m, "owner_name", &dst.OwnerName, src.OwnerName)
	mergeValue(m, "owner_contact", &dst.OwnerContact, src.OwnerContact)
	mergeDate(m, "last_sale_date", &dst.LastSaleDate, src.LastSaleDate)
	mergeValue(m, "last_sale_price", &dst.LastSalePrice, src.LastSalePrice)
	mergeValue(m, "current_assessed_value", &dst.AssessedValue, src.AssessedValue)

	mergeValue(m, "status", &dst.Status, src.Status)
	mergeDate(m, "abandonment_date", &dst.AbandonmentDate, src.AbandonmentDate)
	mergeValue(m, "years_abandoned", &dst.YearsAbandoned, src.YearsAbandoned)

	mergeValue(m, "tax_delinquent", &dst.TaxDelinquent, src.TaxDelinquent)
	mergeValue(m, "tax_delinquency_years", &dst.TaxDelinquencyYears, src.TaxDelinquencyYears)
	mergeValue(m, "tax_delinquency_amount", &dst.TaxDelinquencyAmount, src.TaxDelinquencyAmount)
	mergeValue(m, "tax_id", &dst.TaxID, src.TaxID)

	mergeValue(m, "foreclosure_status", &dst.ForeclosureStatus, src.ForeclosureStatus)
	mergeDate(m, "foreclosure_date", &dst.ForeclosureDate, src.ForeclosureDate)
	mergeValue(m, "foreclosure_amount", &dst.ForeclosureAmount, src.ForeclosureAmount)
	mergeDate(m, "auction_date", &dst.AuctionDate, src.AuctionDate)
	mergeValue(m, "auction_url", &dst.AuctionURL, src.AuctionURL)

	mergeValue(m, "structural_condition", &dst.StructuralCondition, src.StructuralCondition)
	mergeList(m, "hazards", &dst.Hazards, src.Hazards)
	mergeValue(m, "has_security", &dst.HasSecurity, src.HasSecurity)
	mergeValue(m, "security_type", &dst.SecurityType, src.SecurityType)

	mergeValue(m, "demolition_scheduled", &dst.DemolitionScheduled, src.DemolitionScheduled)
	mergeDate(m, "demolition_date", &dst.DemolitionDate, src.DemolitionDate)
	mergeValue(m, "demolition_permit_number", &dst.DemolitionPermitNumber, src.DemolitionPermitNumber)

	mergeValue(m, "has_violations", &dst.HasViolations, src.HasViolations)
	mergeValue(m, "violation_count", &dst.ViolationCount, src.ViolationCount)
	mergeValue(m, "condemned", &dst.Condemned, src.Condemned)

	mergeDate(m, "last_verified", &dst.LastVerified, src.LastVerified)
	mergeValue(m, "exploration_score", &dst.ExplorationScore, src.ExplorationScore)
}

// newProperty builds the canonical entity for a record seen for the first
// time.
func newProperty(key identity.Key, rec models.Record, source string, now time.Time) *models.Property {
	p := &models.Property{
		Address:      key.Address,
		City:         key.City,
		State:        key.State,
		DataSources:  models.StringList{source},
		DiscoveredAt: now,
		LastUpdated:  now,
	}
	// Merge into an empty entity so the new property owns its values.
	mergeAttributes(&merger{now: now}, &p.Attributes, &rec.Attributes)
	if p.Status == nil {
		status := models.DefaultStatus
		p.Status = &status
	}
	return p
}

// applyRecord merges rec into an existing property and returns the changes.
func applyRecord(p *models.Property, rec models.Record, source string, now time.Time) []models.FieldChange {
	m := &merger{propertyID: p.ID, source: source, now: now}
	mergeAttributes(m, &p.Attributes, &rec.Attributes)
	p.DataSources.Append(source)
	if now.After(p.LastUpdated) {
		p.LastUpdated = now
	}
	return m.changes
}
