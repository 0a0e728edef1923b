// Package geocode resolves street addresses to coordinates through an
// external provider, with a bounded in-process cache in front of it.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/stwalsh4118/urbex/api/internal/config"
	"github.com/stwalsh4118/urbex/api/internal/metrics"
	"github.com/stwalsh4118/urbex/api/internal/normalize"
)

var (
	// ErrNotFound is returned when the provider has no match for the query.
	ErrNotFound = errors.New("no geocoding result")
	// ErrDisabled is returned by New when no provider is configured.
	ErrDisabled = errors.New("geocoding is disabled")
)

// StreetViewBaseURL is the Street View static image endpoint.
const StreetViewBaseURL = "https://maps.googleapis.com/maps/api/streetview"

// DefaultStreetViewSize is the image size used for enrichment.
const DefaultStreetViewSize = "600x400"

// Result is a resolved location.
type Result struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address"`
}

// Provider is a geocoding backend.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// Geocode resolves address, returning ErrNotFound when there is no match.
	Geocode(ctx context.Context, address string) (*Result, error)
	// ReverseGeocode returns the formatted address nearest to lat/lng.
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// New builds the configured provider wrapped in a Cache. It returns
// ErrDisabled when the provider is "none".
func New(cfg config.GeocoderConfig, m *metrics.Metrics) (*Cache, error) {
	var (
		p   Provider
		err error
	)

	switch cfg.Provider {
	case config.GeocoderGoogle:
		p, err = NewGoogle(cfg.APIKey)
	case config.GeocoderNominatim:
		p = NewNominatim()
	case config.GeocoderNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown geocoder provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewCache(p, cfg.CacheSize, m), nil
}

// FullAddress joins the non-empty address components into a single query
// string.
func FullAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}

// StreetViewURL returns the Street View image URL for a location. The key
// parameter is omitted when apiKey is empty.
func StreetViewURL(lat, lng float64, size, apiKey string) string {
	if size == "" {
		size = DefaultStreetViewSize
	}
	q := url.Values{}
	q.Set("size", size)
	q.Set("location", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	if apiKey != "" {
		q.Set("key", apiKey)
	}
	return StreetViewBaseURL + "?" + q.Encode()
}

// Components is a street address split into its parts. Missing parts are
// empty.
type Components struct {
	Address string
	City    string
	State   string
	ZipCode string
}

var (
	zipInText   = regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`)
	stateInText = regexp.MustCompile(`\b[A-Z]{2}\b`)
)

// ParseAddress splits a one-line US address such as
// "123 Main St, Springfield, IL 62701" into components. The last ZIP code
// and the last USPS state code found are taken; the remaining text is split
// on commas into street and city.
func ParseAddress(s string) Components {
	var c Components

	if locs := zipInText.FindAllStringIndex(s, -1); len(locs) > 0 {
		loc := locs[len(locs)-1]
		c.ZipCode = s[loc[0]:loc[1]]
		s = s[:loc[0]] + s[loc[1]:]
	}

	locs := stateInText.FindAllStringIndex(s, -1)
	for i := len(locs) - 1; i >= 0; i-- {
		loc := locs[i]
		if normalize.IsStateCode(s[loc[0]:loc[1]]) {
			c.State = s[loc[0]:loc[1]]
			s = s[:loc[0]] + s[loc[1]:]
			break
		}
	}

	parts := make([]string, 0, 3)
	for _, p := range strings.Split(s, ",") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		c.Address = parts[0]
	}
	if len(parts) > 1 {
		c.City = parts[1]
	}
	return c
}
