package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// JWKSPath is where an authority publishes its proof keys.
const JWKSPath = "/.well-known/jwks.json"

// DefaultKeySetTTL is how long a fetched key set is reused.
const DefaultKeySetTTL = time.Hour

// KeySetFetcher retrieves the proof keys published by an authority.
type KeySetFetcher interface {
	Fetch(ctx context.Context, baseURL string) (*jose.JSONWebKeySet, error)
}

type keySetEntry struct {
	jwks      *jose.JSONWebKeySet
	expiresAt time.Time
}

// KeySetCache fetches authority key sets over HTTP and keeps them for a TTL.
type KeySetCache struct {
	client *http.Client
	ttl    time.Duration
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]keySetEntry
}

// KeySetOption configures a KeySetCache.
type KeySetOption func(*KeySetCache)

// WithHTTPClient sets the client used to fetch key sets.
func WithHTTPClient(client *http.Client) KeySetOption {
	return func(c *KeySetCache) { c.client = client }
}

// WithKeySetTTL sets how long a fetched key set is reused.
func WithKeySetTTL(ttl time.Duration) KeySetOption {
	return func(c *KeySetCache) { c.ttl = ttl }
}

// NewKeySetCache returns a cache with a 10s HTTP timeout and DefaultKeySetTTL.
func NewKeySetCache(opts ...KeySetOption) *KeySetCache {
	c := &KeySetCache{
		client: &http.Client{Timeout: 10 * time.Second},
		ttl:    DefaultKeySetTTL,
		now:    time.Now,
		cache:  make(map[string]keySetEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Flush drops every cached key set.
func (c *KeySetCache) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]keySetEntry)
}

// Fetch returns the key set published at baseURL + JWKSPath.
func (c *KeySetCache) Fetch(ctx context.Context, baseURL string) (*jose.JSONWebKeySet, error) {
	u := strings.TrimSuffix(baseURL, "/") + JWKSPath

	c.mu.RLock()
	entry, found := c.cache[u]
	c.mu.RUnlock()
	if found && c.now().Before(entry.expiresAt) {
		return entry.jwks, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch key set: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch key set: status %d", resp.StatusCode)
	}

	var jwks jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode key set: %w", err)
	}

	c.mu.Lock()
	c.cache[u] = keySetEntry{jwks: &jwks, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()

	return &jwks, nil
}
