package directory

import "sync"

type cacheKey struct {
	host   string
	port   int
	policy Policy
}

// TransportCache remembers the negotiated transport per (host, port, policy)
// for the life of the process. The first stored value wins; later stores for
// the same key return the existing entry.
type TransportCache struct {
	entries sync.Map // cacheKey -> TransportConfig
}

// NewTransportCache returns an empty cache.
func NewTransportCache() *TransportCache {
	return &TransportCache{}
}

// Get returns the cached transport, if any.
func (c *TransportCache) Get(host string, port int, policy Policy) (TransportConfig, bool) {
	v, ok := c.entries.Load(cacheKey{host: host, port: port, policy: policy})
	if !ok {
		return TransportConfig{}, false
	}
	return v.(TransportConfig), true
}

// Store records cfg unless an entry already exists, and returns the entry in effect.
func (c *TransportCache) Store(host string, port int, policy Policy, cfg TransportConfig) TransportConfig {
	v, _ := c.entries.LoadOrStore(cacheKey{host: host, port: port, policy: policy}, cfg)
	return v.(TransportConfig)
}

// Len returns the number of cached transports.
func (c *TransportCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
