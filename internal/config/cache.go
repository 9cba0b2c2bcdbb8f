package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching is disabled.
// Methods names the HTTP methods to cache (e.g. GET, HEAD) and is folded
// into MethodSet on load.  KeyStrategy determines which parts of the request
// contribute to the cache key.
type CacheConfig struct {
	Enabled      bool          `default:"true"`
	Methods      []string      `default:"GET"`
	TTL          time.Duration `default:"30s"`
	KeyStrategy  string        `split_words:"true" default:"route_query"`
	Prefix       string        `default:"cache"`
	MaxBodyBytes int           `split_words:"true" default:"1048576"`

	MethodSet map[string]bool `ignored:"true"`
}

func (c *CacheConfig) normalize() {
	c.MethodSet = parseMethods(c.Methods)
	if c.TTL <= 0 {
		c.TTL = time.Second
	}
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
