package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Nominatim defaults. The public instance allows one request per second
// and requires an identifying User-Agent.
const (
	NominatimBaseURL   = "https://nominatim.openstreetmap.org"
	NominatimUserAgent = "urbex_property_scraper"
	nominatimTimeout   = 10 * time.Second
)

// Nominatim geocodes through an OpenStreetMap Nominatim server.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NominatimOption customizes a Nominatim provider.
type NominatimOption func(*Nominatim)

// WithNominatimURL points the provider at another Nominatim server.
func WithNominatimURL(baseURL string) NominatimOption {
	return func(n *Nominatim) { n.baseURL = baseURL }
}

// WithNominatimLimit replaces the request rate limit.
func WithNominatimLimit(l *rate.Limiter) NominatimOption {
	return func(n *Nominatim) { n.limiter = l }
}

// NewNominatim creates a Nominatim provider for the public server.
func NewNominatim(opts ...NominatimOption) *Nominatim {
	n := &Nominatim{
		baseURL:   NominatimBaseURL,
		userAgent: NominatimUserAgent,
		client:    &http.Client{Timeout: nominatimTimeout},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Name implements Provider.
func (n *Nominatim) Name() string { return "nominatim" }

// Geocode implements Provider.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*Result, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")

	var places []nominatimPlace
	if err := n.get(ctx, "/search", q, &places); err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return nil, ErrNotFound
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad latitude %q: %w", places[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("nominatim: bad longitude %q: %w", places[0].Lon, err)
	}

	return &Result{Latitude: lat, Longitude: lng, FormattedAddress: places[0].DisplayName}, nil
}

// ReverseGeocode implements Provider.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
	q.Set("format", "jsonv2")

	var place nominatimPlace
	if err := n.get(ctx, "/reverse", q, &place); err != nil {
		return "", err
	}
	if place.Error != "" || place.DisplayName == "" {
		return "", ErrNotFound
	}
	return place.DisplayName, nil
}

func (n *Nominatim) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("nominatim: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nominatim: unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("nominatim: decode response: %w", err)
	}
	return nil
}
