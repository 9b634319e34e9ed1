package cache

import (
	"strings"
	"time"
)

// PriceCache remembers the last good oracle price per asset. Lookups fall
// back to the cached value while it is fresh, then to a static price.
type PriceCache struct {
	ttl      time.Duration
	prices   *TTLCache[float64]
	fallback map[string]float64
}

func NewPriceCache(ttl time.Duration, fallback map[string]float64) *PriceCache {
	fb := make(map[string]float64, len(fallback))
	for k, v := range fallback {
		fb[strings.ToUpper(k)] = v
	}
	return &PriceCache{ttl: ttl, prices: NewTTLCache[float64](), fallback: fb}
}

// WithClock replaces time.Now, for tests.
func (p *PriceCache) WithClock(now func() time.Time) *PriceCache {
	p.prices.WithClock(now)
	return p
}

// Remember stores a freshly read price.
func (p *PriceCache) Remember(asset string, usd float64) {
	if usd <= 0 {
		return
	}
	p.prices.Set(strings.ToUpper(asset), usd, p.ttl)
}

// Lookup returns the best known price and whether it came from a live read
// within the TTL.
func (p *PriceCache) Lookup(asset string) (usd float64, fresh bool) {
	key := strings.ToUpper(asset)
	if v, ok := p.prices.Get(key); ok {
		return v, true
	}
	return p.fallback[key], false
}
