package acquisition

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stwalsh4118/urbex/api/internal/logger"
	"github.com/stwalsh4118/urbex/api/internal/metrics"
	"golang.org/x/time/rate"
)

// Paging defaults for HTTP listing endpoints.
const (
	DefaultPageSize = 100
	DefaultMaxPages = 50
	userAgent       = "urbex-acquisition/1.0"
	maxBodyBytes    = 32 << 20
)

// HTTPSource pages through a JSON listing endpoint. Each page is requested
// as GET url?state=..&page=N&pageSize=M and must return either an array of
// objects or an object with a "properties" array. Paging stops at the
// first short or empty page.
//
// Every request waits on the source's rate limiter and is retried up to
// Policy.MaxRetries times, sleeping RetryDelay*attempt between attempts.
type HTTPSource struct {
	name     string
	url      string
	state    string
	policy   Policy
	pageSize int
	maxPages int

	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
	metrics *metrics.Metrics
}

// HTTPOption customizes an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithState filters the listing by state and defaults records to it.
func WithState(state string) HTTPOption {
	return func(s *HTTPSource) { s.state = state }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *logger.Logger) HTTPOption {
	return func(s *HTTPSource) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics counts retries on m.
func WithMetrics(m *metrics.Metrics) HTTPOption {
	return func(s *HTTPSource) { s.metrics = m }
}

// WithHTTPClient replaces the HTTP client. Its timeout is left as given.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithPaging overrides the page size and the maximum number of pages read.
func WithPaging(pageSize, maxPages int) HTTPOption {
	return func(s *HTTPSource) {
		s.pageSize = pageSize
		s.maxPages = maxPages
	}
}

// NewHTTPSource creates an HTTPSource for the listing at rawURL.
func NewHTTPSource(name, rawURL string, policy Policy, opts ...HTTPOption) *HTTPSource {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if policy.RatePerMinute < 1 {
		policy.RatePerMinute = DefaultPolicy.RatePerMinute
	}

	s := &HTTPSource{
		name:     name,
		url:      rawURL,
		policy:   policy,
		pageSize: DefaultPageSize,
		maxPages: DefaultMaxPages,
		client:   &http.Client{Timeout: policy.Timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(policy.RatePerMinute)), 1),
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithComponent("acquisition").With(map[string]interface{}{"source": name})
	return s
}

// Name implements Source.
func (s *HTTPSource) Name() string { return s.name }

// Fetch implements Source.
func (s *HTTPSource) Fetch(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord

	for page := 1; page <= s.maxPages; page++ {
		pageURL, err := s.pageURL(page)
		if err != nil {
			return nil, err
		}

		rows, err := s.fetchPage(ctx, pageURL)
		if err != nil {
			if len(records) > 0 {
				s.log.Warn("Keeping records from earlier pages", map[string]interface{}{
					"page":    page,
					"records": len(records),
				})
			}
			return records, err
		}

		for _, row := range rows {
			records = append(records, newRecord(row, pageURL, s.state))
		}

		if len(rows) < s.pageSize {
			break
		}
	}

	return records, nil
}

func (s *HTTPSource) pageURL(page int) (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("%s: invalid url: %w", s.name, err)
	}
	q := u.Query()
	if s.state != "" {
		q.Set("state", s.state)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(s.pageSize))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, pageURL string) ([]map[string]any, error) {
	var lastErr error

	for attempt := 1; attempt <= s.policy.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		rows, err := s.get(ctx, pageURL)
		if err == nil {
			return rows, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		s.log.Warn("Request failed", map[string]interface{}{
			"url":          pageURL,
			"attempt":      attempt,
			"max_attempts": s.policy.MaxRetries,
			"error":        err.Error(),
		})

		if attempt < s.policy.MaxRetries {
			s.metrics.RecordRetry(s.name)
			if err := sleep(ctx, s.policy.RetryDelay*time.Duration(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("%s: %w after %d attempts: %v", s.name, ErrFetchFailed, s.policy.MaxRetries, lastErr)
}

func (s *HTTPSource) get(ctx context.Context, pageURL string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	rows, err := decodeJSON(bytes.TrimSpace(body))
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return rows, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
