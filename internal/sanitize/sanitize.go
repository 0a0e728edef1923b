// Package sanitize turns a raw source record into a models.Record holding
// only the fields that passed validation.
package sanitize

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/models"
	"github.com/stwalsh4118/urbex/api/internal/normalize"
)

// Record-level failures. A record failing Validate never reaches the store.
var (
	ErrMissingAddress = errors.New("record has no address")
	ErrMissingState   = errors.New("record has no state")
)

// Warning describes a field that failed validation. Address and state are
// kept despite a warning; every other warned field is dropped.
type Warning struct {
	Field  string
	Value  any
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%v)", w.Field, w.Reason, w.Value)
}

// Result is the outcome of sanitizing one raw record.
type Result struct {
	Record   models.Record
	Warnings []Warning
}

func (r *Result) warn(field string, value any, reason string) {
	r.Warnings = append(r.Warnings, Warning{Field: field, Value: value, Reason: reason})
}

type fieldFunc func(v any, res *Result, now time.Time)

// fields is applied in order so warnings are deterministic.
var fields = []struct {
	name  string
	apply fieldFunc
}{
	{"address", func(v any, res *Result, _ time.Time) {
		s, ok := normalize.Address(v)
		if s == "" {
			res.warn("address", v, "empty address")
			return
		}
		if !ok {
			res.warn("address", s, "invalid address")
		}
		res.Record.Address = &s
	}},
	{"state", func(v any, res *Result, _ time.Time) {
		s, ok := normalize.State(v)
		if s == "" {
			return
		}
		if !ok {
			res.warn("state", s, "invalid state")
		}
		res.Record.State = &s
	}},
	{"city", text(func(r *models.Record) **string { return &r.City })},
	{"county", text(func(r *models.Record) **string { return &r.County })},
	{"owner_name", text(func(r *models.Record) **string { return &r.OwnerName })},
	{"property_type", text(func(r *models.Record) **string { return &r.PropertyType })},
	{"building_type", text(func(r *models.Record) **string { return &r.BuildingType })},
	{"zip_code", func(v any, res *Result, _ time.Time) {
		if !truthy(v) {
			return
		}
		s, ok := normalize.ZIP(v)
		if !ok {
			res.warn("zip_code", v, "invalid ZIP code")
			return
		}
		res.Record.ZipCode = &s
	}},
	{"owner_contact", func(v any, res *Result, _ time.Time) {
		if p, ok := normalize.Phone(v); ok {
			res.Record.OwnerContact = &p
			return
		}
		if s := normalize.Text(v); s != "" {
			res.Record.OwnerContact = &s
		}
	}},
	{"last_sale_price", price(func(r *models.Record) **float64 { return &r.LastSalePrice })},
	{"current_assessed_value", price(func(r *models.Record) **float64 { return &r.AssessedValue })},
	{"foreclosure_amount", price(func(r *models.Record) **float64 { return &r.ForeclosureAmount })},
	{"tax_delinquency_amount", price(func(r *models.Record) **float64 { return &r.TaxDelinquencyAmount })},
	{"year_built", func(v any, res *Result, now time.Time) {
		if y, ok := normalize.Year(v, now); ok {
			res.Record.YearBuilt = &y
		}
	}},
	{"square_footage", sqft(func(r *models.Record) **int { return &r.SquareFootage })},
	{"lot_size_sqft", sqft(func(r *models.Record) **int { return &r.LotSizeSqft })},
	{"last_sale_date", date("last_sale_date", func(r *models.Record) **time.Time { return &r.LastSaleDate })},
	{"abandonment_date", date("abandonment_date", func(r *models.Record) **time.Time { return &r.AbandonmentDate })},
	{"foreclosure_date", date("foreclosure_date", func(r *models.Record) **time.Time { return &r.ForeclosureDate })},
	{"auction_date", date("auction_date", func(r *models.Record) **time.Time { return &r.AuctionDate })},
	{"demolition_date", date("demolition_date", func(r *models.Record) **time.Time { return &r.DemolitionDate })},
	{"last_verified", date("last_verified", func(r *models.Record) **time.Time { return &r.LastVerified })},
	{"tax_delinquent", flag(func(r *models.Record) **bool { return &r.TaxDelinquent })},
	{"has_security", flag(func(r *models.Record) **bool { return &r.HasSecurity })},
	{"demolition_scheduled", flag(func(r *models.Record) **bool { return &r.DemolitionScheduled })},
	{"has_violations", flag(func(r *models.Record) **bool { return &r.HasViolations })},
	{"condemned", flag(func(r *models.Record) **bool { return &r.Condemned })},
	{"tax_delinquency_years", integer(func(r *models.Record) **int { return &r.TaxDelinquencyYears })},
	{"violation_count", integer(func(r *models.Record) **int { return &r.ViolationCount })},
	{"num_bedrooms", integer(func(r *models.Record) **int { return &r.NumBedrooms })},
	{"num_stories", integer(func(r *models.Record) **int { return &r.NumStories })},
	{"exploration_score", integer(func(r *models.Record) **int { return &r.ExplorationScore })},
	{"num_bathrooms", float(func(r *models.Record) **float64 { return &r.NumBathrooms })},
	{"years_abandoned", float(func(r *models.Record) **float64 { return &r.YearsAbandoned })},
	{"status", passthrough(func(r *models.Record) **string { return &r.Status })},
	{"foreclosure_status", passthrough(func(r *models.Record) **string { return &r.ForeclosureStatus })},
	{"structural_condition", passthrough(func(r *models.Record) **string { return &r.StructuralCondition })},
	{"security_type", passthrough(func(r *models.Record) **string { return &r.SecurityType })},
	{"demolition_permit_number", passthrough(func(r *models.Record) **string { return &r.DemolitionPermitNumber })},
	{"tax_id", passthrough(func(r *models.Record) **string { return &r.TaxID })},
	{"formatted_address", passthrough(func(r *models.Record) **string { return &r.FormattedAddress })},
	{"thumbnail_url", passthrough(func(r *models.Record) **string { return &r.ThumbnailURL })},
	{"street_view_url", passthrough(func(r *models.Record) **string { return &r.StreetViewURL })},
	{"auction_url", passthrough(func(r *models.Record) **string { return &r.AuctionURL })},
	{"hazards", func(v any, res *Result, _ time.Time) {
		if h := hazards(v); len(h) > 0 {
			res.Record.Hazards = h
		}
	}},
	{"abandonment_score", func(v any, res *Result, _ time.Time) {
		if s, ok := normalize.Score(v); ok {
			res.Record.AbandonmentScore = &s
		}
	}},
}

// Sanitize validates raw against the current time.
func Sanitize(raw map[string]any) Result {
	return SanitizeAt(raw, time.Now())
}

// SanitizeAt validates every recognized field of raw. Unknown keys are
// ignored, as are nil values. now bounds year_built.
func SanitizeAt(raw map[string]any, now time.Time) Result {
	var res Result

	for _, f := range fields {
		v, ok := raw[f.name]
		if !ok || v == nil {
			continue
		}
		f.apply(v, &res, now)
	}

	lat, hasLat := raw["latitude"]
	lng, hasLng := raw["longitude"]
	if hasLat && hasLng {
		if la, lo, ok := normalize.Coordinates(lat, lng); ok {
			res.Record.Latitude = &la
			res.Record.Longitude = &lo
		}
	}

	return res
}

// Validate reports whether rec carries the identity fields the store needs.
func Validate(rec models.Record) error {
	if rec.Address == nil || *rec.Address == "" {
		return ErrMissingAddress
	}
	if rec.State == nil || *rec.State == "" {
		return ErrMissingState
	}
	return nil
}

func text(field func(*models.Record) **string) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if s := normalize.Text(v); s != "" {
			*field(&res.Record) = &s
		}
	}
}

func passthrough(field func(*models.Record) **string) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if !truthy(v) {
			return
		}
		s, ok := normalize.String(v)
		if !ok {
			return
		}
		s = strings.TrimSpace(s)
		*field(&res.Record) = &s
	}
}

func price(field func(*models.Record) **float64) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if p, ok := normalize.Price(v); ok {
			*field(&res.Record) = &p
		}
	}
}

func sqft(field func(*models.Record) **int) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if n, ok := normalize.SquareFootage(v); ok {
			*field(&res.Record) = &n
		}
	}
}

func date(name string, field func(*models.Record) **time.Time) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if !truthy(v) {
			return
		}
		d, ok := normalize.Date(v)
		if !ok {
			res.warn(name, v, "unparsed date")
			return
		}
		*field(&res.Record) = &d
	}
}

func flag(field func(*models.Record) **bool) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if b, ok := normalize.Bool(v); ok {
			*field(&res.Record) = &b
		}
	}
}

func integer(field func(*models.Record) **int) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if n, ok := normalize.Int(v); ok {
			*field(&res.Record) = &n
		}
	}
}

func float(field func(*models.Record) **float64) fieldFunc {
	return func(v any, res *Result, _ time.Time) {
		if f, ok := normalize.Float(v); ok {
			*field(&res.Record) = &f
		}
	}
}

// truthy drops the empty and false-equivalent values sources use for
// "not supplied".
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	if f, ok := normalize.Float(v); ok {
		return f != 0
	}
	return true
}

func hazards(v any) models.StringList {
	var out models.StringList
	add := func(item any) {
		if s := normalize.Text(item); s != "" {
			out = append(out, s)
		}
	}
	switch h := v.(type) {
	case string:
		add(h)
	case []string:
		for _, item := range h {
			add(item)
		}
	case []any:
		for _, item := range h {
			add(item)
		}
	}
	return out
}
