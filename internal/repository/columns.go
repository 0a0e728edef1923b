package repository

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

type column struct {
	name string
	ptr  any
}

// propertyColumns pairs every properties column with the field it maps to.
// The order here is the SELECT and INSERT column order.
func propertyColumns(p *models.Property) []column {
	return []column{
		{"id", &p.ID},
		{"address", &p.Address},
		{"city", &p.City},
		{"state", &p.State},
		{"county", &p.County},
		{"zip_code", &p.ZipCode},
		{"latitude", &p.Latitude},
		{"longitude", &p.Longitude},
		{"formatted_address", &p.FormattedAddress},
		{"street_view_url", &p.StreetViewURL},
		{"thumbnail_url", &p.ThumbnailURL},
		{"property_type", &p.PropertyType},
		{"building_type", &p.BuildingType},
		{"year_built", &p.YearBuilt},
		{"square_footage", &p.SquareFootage},
		{"lot_size_sqft", &p.LotSizeSqft},
		{"num_bedrooms", &p.NumBedrooms},
		{"num_bathrooms", &p.NumBathrooms},
		{"num_stories", &p.NumStories},
		{"owner_name", &p.OwnerName},
		{"owner_contact", &p.OwnerContact},
		{"last_sale_date", &p.LastSaleDate},
		{"last_sale_price", &p.LastSalePrice},
		{"current_assessed_value", &p.AssessedValue},
		{"status", &p.Status},
		{"abandonment_date", &p.AbandonmentDate},
		{"years_abandoned", &p.YearsAbandoned},
		{"tax_delinquent", &p.TaxDelinquent},
		{"tax_delinquency_years", &p.TaxDelinquencyYears},
		{"tax_delinquency_amount", &p.TaxDelinquencyAmount},
		{"tax_id", &p.TaxID},
		{"foreclosure_status", &p.ForeclosureStatus},
		{"foreclosure_date", &p.ForeclosureDate},
		{"foreclosure_amount", &p.ForeclosureAmount},
		{"auction_date", &p.AuctionDate},
		{"auction_url", &p.AuctionURL},
		{"structural_condition", &p.StructuralCondition},
		{"hazards", &p.Hazards},
		{"has_security", &p.HasSecurity},
		{"security_type", &p.SecurityType},
		{"demolition_scheduled", &p.DemolitionScheduled},
		{"demolition_date", &p.DemolitionDate},
		{"demolition_permit_number", &p.DemolitionPermitNumber},
		{"has_violations", &p.HasViolations},
		{"violation_count", &p.ViolationCount},
		{"condemned", &p.Condemned},
		{"last_verified", &p.LastVerified},
		{"exploration_score", &p.ExplorationScore},
		{"abandonment_score", &p.AbandonmentScore},
		{"data_sources", &p.DataSources},
		{"discovered_at", &p.DiscoveredAt},
		{"last_updated", &p.LastUpdated},
	}
}

// immutableColumns are never rewritten by Update.
var immutableColumns = map[string]bool{
	"id":            true,
	"address":       true,
	"city":          true,
	"state":         true,
	"discovered_at": true,
}

var propertySelect = "SELECT " + strings.Join(columnNames(propertyColumns(&models.Property{})), ", ") + " FROM properties"

func columnNames(cols []column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
	}
	return names
}

func scanTargets(cols []column) []any {
	targets := make([]any, len(cols))
	for i, c := range cols {
		targets[i] = c.ptr
	}
	return targets
}

// value dereferences a column pointer into a driver argument.
func (c column) value() any {
	return reflect.ValueOf(c.ptr).Elem().Interface()
}

func insertStatement(p *models.Property) (string, []any) {
	cols := propertyColumns(p)[1:]
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c.value()
	}
	query := fmt.Sprintf("INSERT INTO properties (%s) VALUES (%s) RETURNING id",
		strings.Join(columnNames(cols), ", "), strings.Join(placeholders, ", "))
	return query, args
}

func updateStatement(p *models.Property) (string, []any) {
	var (
		sets []string
		args []any
	)
	for _, c := range propertyColumns(p) {
		if immutableColumns[c.name] {
			continue
		}
		args = append(args, c.value())
		sets = append(sets, fmt.Sprintf("%s = $%d", c.name, len(args)))
	}
	args = append(args, p.ID)
	query := fmt.Sprintf("UPDATE properties SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	return query, args
}
