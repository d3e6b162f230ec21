// Package geocode resolves free-text place names to district names using
// the OpenStreetMap Nominatim search API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/agrismart/internal/cache"
	"github.com/kiranshivaraju/agrismart/internal/config"
	"github.com/kiranshivaraju/agrismart/internal/metrics"
	"golang.org/x/time/rate"
)

// Sentinel errors for geocoding failures.
var (
	ErrUnreachable = errors.New("geocoder unreachable")
	ErrTimeout     = errors.New("geocoder timeout")
	ErrNoMatch     = errors.New("location could not be geocoded to a district")
)

// districtKeys are the Nominatim address fields that may carry the district,
// in order of preference.
var districtKeys = []string{"state_district", "district", "county", "region"}

// Geocoder resolves a location to a district name.
type Geocoder interface {
	District(ctx context.Context, location string) (string, error)
}

// NominatimClient implements Geocoder. Requests are throttled to the
// configured rate and results are cached.
type NominatimClient struct {
	baseURL      string
	userAgent    string
	countryCodes string
	regionSuffix string
	cacheTTL     time.Duration
	client       *http.Client
	limiter      *rate.Limiter
	cache        cache.Cache
	metrics      *metrics.Metrics
}

// NewNominatimClient creates a geocoder. c may be nil to disable caching.
func NewNominatimClient(cfg config.GeocodeConfig, c cache.Cache, m *metrics.Metrics) *NominatimClient {
	return &NominatimClient{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		regionSuffix: cfg.RegionSuffix,
		cacheTTL:     cfg.CacheTTL,
		client:       &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		cache:        c,
		metrics:      m,
	}
}

// District geocodes location and returns the district-level name from the
// best match's address, e.g. "Chengalpattu District".
func (c *NominatimClient) District(ctx context.Context, location string) (string, error) {
	q := strings.TrimSpace(location)
	if q == "" {
		return "", fmt.Errorf("%w: empty location", ErrNoMatch)
	}
	q = c.qualify(q)

	key := cache.GeocodeKey(q)
	if district, ok := c.cached(ctx, key); ok {
		return district, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: waiting for rate limiter: %v", ErrTimeout, err)
	}

	places, err := c.search(ctx, q)
	if err != nil {
		return "", err
	}
	if len(places) == 0 {
		return "", fmt.Errorf("%w: no results for %q", ErrNoMatch, location)
	}

	district := pickDistrict(places[0].Address)
	if district == "" {
		return "", fmt.Errorf("%w: no district in address for %q", ErrNoMatch, location)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, []byte(district), c.cacheTTL); err != nil {
			slog.Debug("geocode cache set failed", "key", key, "error", err)
		}
	}
	return district, nil
}

// qualify pins a bare place name to the configured region unless the query
// already names the country.
func (c *NominatimClient) qualify(q string) string {
	if c.regionSuffix == "" {
		return q
	}
	parts := strings.Split(c.regionSuffix, ",")
	country := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
	if country != "" && strings.Contains(strings.ToLower(q), country) {
		return q
	}
	return q + ", " + c.regionSuffix
}

func (c *NominatimClient) cached(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	val, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("geocode cache get failed", "key", key, "error", err)
		return "", false
	}
	c.metrics.RecordGeocodeCache(found)
	if !found {
		return "", false
	}
	return string(val), true
}

func (c *NominatimClient) search(ctx context.Context, q string) ([]nominatimPlace, error) {
	params := url.Values{
		"q":              {q},
		"format":         {"jsonv2"},
		"addressdetails": {"1"},
		"limit":          {"1"},
	}
	if c.countryCodes != "" {
		params.Set("countrycodes", c.countryCodes)
	}
	u := fmt.Sprintf("%s/search?%s", c.baseURL, params.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, fmt.Errorf("%w: decoding search response: %v", ErrUnreachable, err)
	}
	return places, nil
}

func pickDistrict(address map[string]string) string {
	for _, k := range districtKeys {
		if v := strings.TrimSpace(address[k]); v != "" {
			return v
		}
	}
	return ""
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- Nominatim response types ---

type nominatimPlace struct {
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

// Compile-time check that NominatimClient implements Geocoder.
var _ Geocoder = (*NominatimClient)(nil)
