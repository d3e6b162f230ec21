package cache

import (
	"fmt"
	"strings"
)

// GeocodeKey caches one geocoder lookup. The query is normalised so that
// case and surrounding whitespace do not split the cache.
func GeocodeKey(query string) string {
	return fmt.Sprintf("geocode:%s", strings.ToLower(strings.TrimSpace(query)))
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
