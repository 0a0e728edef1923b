// Package acquisition fetches raw property records from external sources.
// Sources only acquire; validation and persistence happen downstream in the
// pipeline.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/config"
	"github.com/stwalsh4118/urbex/api/internal/geocode"
	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/metrics"
)

// ErrFetchFailed is returned when a source gives up after exhausting its
// retries.
var ErrFetchFailed = errors.New("fetch failed")

// RawRecord is one record as a source produced it.
type RawRecord struct {
	// Fields holds the record's attributes keyed by canonical field name.
	Fields map[string]any
	// SourceURL locates the record at the source, when known.
	SourceURL string
	// Payload is the unmodified record, kept for provenance.
	Payload any
}

// Source is anything that can produce raw records for the pipeline.
type Source interface {
	// Name is recorded as the provenance of every record the source emits.
	Name() string
	// Fetch returns every record currently available. On failure it
	// returns the error together with any records acquired before it, so
	// pages already fetched are not lost.
	Fetch(ctx context.Context) ([]RawRecord, error)
}

// Policy is the retry, rate and timeout policy of network sources.
type Policy struct {
	MaxRetries    int
	RetryDelay    time.Duration
	RatePerMinute int
	Timeout       time.Duration
}

// DefaultPolicy mirrors the configuration defaults.
var DefaultPolicy = Policy{
	MaxRetries:    3,
	RetryDelay:    5 * time.Second,
	RatePerMinute: 10,
	Timeout:       30 * time.Second,
}

// PolicyFromConfig converts the acquisition configuration into a Policy.
func PolicyFromConfig(cfg config.AcquisitionConfig) Policy {
	return Policy{
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		RatePerMinute: cfg.RatePerMinute,
		Timeout:       cfg.Timeout,
	}
}

// FromConfig builds the configured file and HTTP sources.
func FromConfig(cfgs []config.SourceConfig, policy Policy, log *logger.Logger, m *metrics.Metrics) ([]Source, error) {
	sources := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case config.SourceTypeFile:
			sources = append(sources, NewFileSource(c.Name, c.Path, c.State))
		case config.SourceTypeHTTP:
			sources = append(sources, NewHTTPSource(c.Name, c.URL, policy,
				WithState(c.State),
				WithLogger(log),
				WithMetrics(m),
			))
		default:
			return nil, fmt.Errorf("source %s: unknown type %q", c.Name, c.Type)
		}
	}
	return sources, nil
}

// prepare fills identity fields a source left implicit: a one-line
// "full_address" is split into its components, and defaultState is used
// when the record names no state. Fields already present are never
// overwritten.
func prepare(fields map[string]any, defaultState string) map[string]any {
	if full, ok := fields["full_address"].(string); ok && isBlank(fields["address"]) {
		c := geocode.ParseAddress(full)
		setIfBlank(fields, "address", c.Address)
		setIfBlank(fields, "city", c.City)
		setIfBlank(fields, "state", c.State)
		setIfBlank(fields, "zip_code", c.ZipCode)
	}
	setIfBlank(fields, "state", defaultState)
	return fields
}

func setIfBlank(fields map[string]any, key, value string) {
	if value != "" && isBlank(fields[key]) {
		fields[key] = value
	}
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// copyFields returns a shallow copy so Payload keeps the record as received.
func copyFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func newRecord(raw map[string]any, location, defaultState string) RawRecord {
	rec := RawRecord{
		Fields:    prepare(copyFields(raw), defaultState),
		SourceURL: location,
		Payload:   raw,
	}
	if u, ok := raw["source_url"].(string); ok && u != "" {
		rec.SourceURL = u
	}
	return rec
}
