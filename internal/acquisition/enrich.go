package acquisition

import (
	"context"
	"errors"
	"fmt"

	"github.com/stwalsh4118/urbex/api/internal/geocode"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/models"
)

// DefaultEnrichLimit bounds how many properties one enrichment run geocodes.
const DefaultEnrichLimit = 100

// GeocodeSourceName is the provenance recorded for enrichment records.
const GeocodeSourceName = "Geocoder"

// MissingCoordinatesLister lists canonical properties lacking coordinates.
type MissingCoordinatesLister interface {
	MissingCoordinates(ctx context.Context, limit int) ([]models.Property, error)
}

// GeocodeSource re-observes stored properties that lack coordinates,
// emitting their identity fields together with the geocoded location.
// Feeding its records through the pipeline merges the location into the
// canonical property without touching any other attribute.
type GeocodeSource struct {
	store         MissingCoordinatesLister
	geocoder      geocode.Provider
	limit         int
	streetViewKey string
	log           *logger.Logger
}

// GeocodeOption customizes a GeocodeSource.
type GeocodeOption func(*GeocodeSource)

// WithEnrichLimit sets the maximum number of properties per run.
func WithEnrichLimit(n int) GeocodeOption {
	return func(s *GeocodeSource) { s.limit = n }
}

// WithStreetView adds a Street View image URL signed with apiKey to each
// enriched record.
func WithStreetView(apiKey string) GeocodeOption {
	return func(s *GeocodeSource) { s.streetViewKey = apiKey }
}

// WithEnrichLogger sets the logger for per-property lookup failures.
func WithEnrichLogger(log *logger.Logger) GeocodeOption {
	return func(s *GeocodeSource) {
		if log != nil {
			s.log = log
		}
	}
}

// NewGeocodeSource creates a GeocodeSource.
func NewGeocodeSource(store MissingCoordinatesLister, g geocode.Provider, opts ...GeocodeOption) *GeocodeSource {
	s := &GeocodeSource{
		store:    store,
		geocoder: g,
		limit:    DefaultEnrichLimit,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("enrich")
	return s
}

// Name implements Source.
func (s *GeocodeSource) Name() string { return GeocodeSourceName }

// Fetch implements Source. Properties the provider cannot place are
// skipped. Fetch fails only when the store cannot be read, the context ends,
// or every lookup failed with a provider error.
func (s *GeocodeSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	props, err := s.store.MissingCoordinates(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("%s: list properties: %w", GeocodeSourceName, err)
	}

	records := make([]RawRecord, 0, len(props))
	var failures int
	var lastErr error

	for i := range props {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p := &props[i]
		zip := ""
		if p.ZipCode != nil {
			zip = *p.ZipCode
		}
		query := geocode.FullAddress(p.Address, p.City, p.State, zip)

		res, err := s.geocoder.Geocode(ctx, query)
		if errors.Is(err, geocode.ErrNotFound) {
			s.log.Debug("No geocoding result", map[string]interface{}{"property_id": p.ID, "query": query})
			continue
		}
		if err != nil {
			failures++
			lastErr = err
			s.log.Warn("Geocoding failed", map[string]interface{}{
				"property_id": p.ID,
				"query":       query,
				"error":       err.Error(),
			})
			continue
		}

		fields := map[string]any{
			"address":           p.Address,
			"city":              p.City,
			"state":             p.State,
			"latitude":          res.Latitude,
			"longitude":         res.Longitude,
			"formatted_address": res.FormattedAddress,
		}
		if s.streetViewKey != "" {
			fields["street_view_url"] = geocode.StreetViewURL(res.Latitude, res.Longitude, geocode.DefaultStreetViewSize, s.streetViewKey)
		}

		records = append(records, RawRecord{
			Fields:    fields,
			SourceURL: s.geocoder.Name(),
			Payload:   map[string]any{"query": query, "result": res},
		})
	}

	if failures > 0 && failures == len(props) {
		return nil, fmt.Errorf("%s: %w: every lookup failed: %v", GeocodeSourceName, ErrFetchFailed, lastErr)
	}
	return records, nil
}
