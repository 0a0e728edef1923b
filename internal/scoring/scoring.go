// Package scoring computes the abandonment score of a property record.
package scoring

import (
	"strings"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/models"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 10
)

// StaleSaleYears is how long ago a last sale must be to count as stale.
const StaleSaleYears = 5

// LowValueThreshold is the assessed value below which a property scores.
const LowValueThreshold = 50_000.0

// Rule is one additive scoring indicator.
type Rule struct {
	Name   string
	Points int
	Match  func(rec models.Record, now time.Time) bool
}

// Rules are evaluated in order. The two tax rules are mutually exclusive.
var Rules = []Rule{
	{
		Name:   "tax_delinquent_multi_year",
		Points: 5,
		Match: func(rec models.Record, _ time.Time) bool {
			return taxYears(rec) >= 2
		},
	},
	{
		Name:   "tax_delinquent",
		Points: 3,
		Match: func(rec models.Record, _ time.Time) bool {
			return taxYears(rec) == 1
		},
	},
	{
		Name:   "foreclosure",
		Points: 4,
		Match: func(rec models.Record, _ time.Time) bool {
			return rec.ForeclosureStatus != nil && strings.TrimSpace(*rec.ForeclosureStatus) != ""
		},
	},
	{
		Name:   "violations",
		Points: 2,
		Match: func(rec models.Record, _ time.Time) bool {
			return isTrue(rec.HasViolations)
		},
	},
	{
		Name:   "condemned",
		Points: 5,
		Match: func(rec models.Record, _ time.Time) bool {
			return isTrue(rec.Condemned)
		},
	},
	{
		Name:   "stale_sale",
		Points: 1,
		Match: func(rec models.Record, now time.Time) bool {
			if rec.LastSaleDate == nil {
				return false
			}
			days := int(now.Sub(*rec.LastSaleDate).Hours() / 24)
			return days/365 >= StaleSaleYears
		},
	},
	{
		Name:   "low_assessed_value",
		Points: 1,
		Match: func(rec models.Record, _ time.Time) bool {
			return rec.AssessedValue != nil && *rec.AssessedValue < LowValueThreshold
		},
	},
}

// Score sums the matching rules and caps the result at MaxScore.
func Score(rec models.Record, now time.Time) int {
	total := 0
	for _, r := range Rules {
		if r.Match(rec, now) {
			total += r.Points
		}
	}
	return Clamp(total)
}

// Matched returns the names of the rules rec satisfies.
func Matched(rec models.Record, now time.Time) []string {
	var names []string
	for _, r := range Rules {
		if r.Match(rec, now) {
			names = append(names, r.Name)
		}
	}
	return names
}

// Relevant reports whether rec supplies any field a rule reads. A record
// that supplies none leaves a stored score as it is.
func Relevant(rec models.Record) bool {
	return rec.TaxDelinquencyYears != nil ||
		rec.ForeclosureStatus != nil ||
		rec.HasViolations != nil ||
		rec.Condemned != nil ||
		rec.LastSaleDate != nil ||
		rec.AssessedValue != nil
}

// Clamp bounds a score to [MinScore, MaxScore].
func Clamp(score int) int {
	return min(max(score, MinScore), MaxScore)
}

// ToRecord lifts a stored property into a record so the merged entity can be
// rescored with the same rules.
func ToRecord(p *models.Property) models.Record {
	return models.Record{
		Address:    &p.Address,
		City:       &p.City,
		State:      &p.State,
		Attributes: p.Attributes,
	}
}

func taxYears(rec models.Record) int {
	if rec.TaxDelinquencyYears == nil {
		return 0
	}
	return *rec.TaxDelinquencyYears
}

func isTrue(b *bool) bool {
	return b != nil && *b
}
