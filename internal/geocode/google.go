package geocode

import (
	"context"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"
)

// Google geocodes through the Google Maps Geocoding API.
type Google struct {
	client *maps.Client
}

// NewGoogle creates a Google provider. Extra options are passed to the maps
// client, e.g. maps.WithBaseURL in tests.
func NewGoogle(apiKey string, opts ...maps.ClientOption) (*Google, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create google maps client: %w", err)
	}
	return &Google{client: client}, nil
}

// Name implements Provider.
func (g *Google) Name() string { return "google" }

// Geocode implements Provider using the first result returned.
func (g *Google) Geocode(ctx context.Context, address string) (*Result, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil && !zeroResults(err) {
		return nil, fmt.Errorf("google geocode: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	loc := results[0].Geometry.Location
	return &Result{
		Latitude:         loc.Lat,
		Longitude:        loc.Lng,
		FormattedAddress: results[0].FormattedAddress,
	}, nil
}

// ReverseGeocode implements Provider.
func (g *Google) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: lat, Lng: lng},
	})
	if err != nil && !zeroResults(err) {
		return "", fmt.Errorf("google reverse geocode: %w", err)
	}
	if len(results) == 0 {
		return "", ErrNotFound
	}
	return results[0].FormattedAddress, nil
}

// zeroResults reports whether err is the API's ZERO_RESULTS status, which
// the client surfaces as an error.
func zeroResults(err error) bool {
	return strings.Contains(err.Error(), "ZERO_RESULTS")
}
