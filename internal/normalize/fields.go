// Package normalize validates and canonicalizes individual property fields.
// Every function is pure; rejection is signalled by a false second return
// and never by an error, so a bad field can be dropped without failing the
// record it came from.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Field bounds.
const (
	MinAddressLength = 5
	MinYear          = 1700
	MinSquareFootage = 10
	MaxSquareFootage = 1_000_000
	MaxPrice         = 100_000_000
)

var zipPattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)

// dateLayouts are tried in order; the first successful parse wins.
var dateLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"1-2-2006",
	"2006/1/2",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// Address cleans a street address and reports whether it looks valid: at
// least five characters containing both a digit and a letter. The cleaned
// value is returned even when invalid.
func Address(v any) (string, bool) {
	s := Text(v)
	if utf8.RuneCountInString(s) < MinAddressLength {
		return s, false
	}
	hasDigit := strings.IndexFunc(s, unicode.IsDigit) >= 0
	hasLetter := strings.IndexFunc(s, unicode.IsLetter) >= 0
	return s, hasDigit && hasLetter
}

// State uppercases a state code, mapping full state names to codes, and
// reports whether the result is a USPS state code. The uppercased input is
// returned even when invalid.
func State(v any) (string, bool) {
	raw, ok := String(v)
	if !ok {
		return "", false
	}
	s := strings.ToUpper(strings.TrimSpace(raw))
	if IsStateCode(s) {
		return s, true
	}
	if code, ok := StateName(raw); ok {
		return code, true
	}
	return s, false
}

// ZIP stringifies v and accepts 5-digit or ZIP+4 codes.
func ZIP(v any) (string, bool) {
	s, ok := String(v)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, zipPattern.MatchString(s)
}

// Coordinates validates a latitude/longitude pair. Both must parse and be in
// range or neither is accepted.
func Coordinates(lat, lng any) (float64, float64, bool) {
	la, ok := Float(lat)
	if !ok {
		return 0, 0, false
	}
	lo, ok := Float(lng)
	if !ok {
		return 0, 0, false
	}
	if la < -90 || la > 90 || lo < -180 || lo > 180 {
		return 0, 0, false
	}
	return la, lo, true
}

// Price strips currency symbols and thousands separators and accepts values
// in [0, 100,000,000].
func Price(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		v = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	}
	f, ok := Float(v)
	if !ok || f < 0 || f > MaxPrice {
		return 0, false
	}
	return f, true
}

// Year accepts integer years in [1700, now.Year()].
func Year(v any, now time.Time) (int, bool) {
	y, ok := Int(v)
	if !ok || y < MinYear || y > now.Year() {
		return 0, false
	}
	return y, true
}

// SquareFootage accepts areas in [10, 1,000,000], truncating fractions.
func SquareFootage(v any) (int, bool) {
	f, ok := Float(v)
	if !ok {
		return 0, false
	}
	n := int(f)
	if n < MinSquareFootage || n > MaxSquareFootage {
		return 0, false
	}
	return n, true
}

// Date parses v against the known layouts and returns the calendar date at
// UTC midnight.
func Date(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return truncateDay(t), true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return truncateDay(t), true
		}
	}
	return time.Time{}, false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Phone formats 10-digit numbers as (XXX) XXX-XXXX and 11-digit numbers
// with a leading 1 as +1 (XXX) XXX-XXXX.
func Phone(v any) (string, bool) {
	s, ok := String(v)
	if !ok {
		return "", false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]), true
	case len(digits) == 11 && digits[0] == '1':
		return fmt.Sprintf("+1 (%s) %s-%s", digits[1:4], digits[4:7], digits[7:]), true
	}
	return "", false
}

// Score clamps an externally supplied score into [0, 10].
func Score(v any) (int, bool) {
	n, ok := Int(v)
	if !ok {
		return 0, false
	}
	return min(max(n, 0), 10), true
}
