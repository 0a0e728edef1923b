// Package export writes the reporting projection of canonical properties.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

// Columns is the CSV header, in output order.
var Columns = []string{
	"id",
	"address",
	"city",
	"county",
	"state",
	"zip_code",
	"latitude",
	"longitude",
	"property_type",
	"building_type",
	"year_built",
	"status",
	"abandonment_score",
	"exploration_score",
	"tax_delinquent",
	"foreclosure_status",
	"demolition_scheduled",
	"demolition_date",
}

// WriteCSV writes a header row followed by one row per summary. Absent
// values are written as empty cells.
func WriteCSV(w io.Writer, rows []models.PropertySummary) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, s := range rows {
		if err := cw.Write(record(s)); err != nil {
			return fmt.Errorf("failed to write csv row for property %d: %w", s.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func record(s models.PropertySummary) []string {
	return []string{
		strconv.FormatInt(s.ID, 10),
		s.Address,
		s.City,
		str(s.County),
		s.State,
		str(s.ZipCode),
		float(s.Latitude),
		float(s.Longitude),
		str(s.PropertyType),
		str(s.BuildingType),
		integer(s.YearBuilt),
		s.Status,
		strconv.Itoa(s.AbandonmentScore),
		strconv.Itoa(s.ExplorationScore),
		strconv.FormatBool(s.TaxDelinquent),
		str(s.ForeclosureStatus),
		strconv.FormatBool(s.DemolitionScheduled),
		str(s.DemolitionDate),
	}
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func float(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func integer(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
