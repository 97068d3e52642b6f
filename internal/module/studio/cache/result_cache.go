// Package cache provides the optional Redis-backed result cache for
// single-shot generations. Identical requests within the TTL resolve to the
// already-stored asset URL instead of another model call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResultCache maps a generation request fingerprint to a stored asset URL.
// A nil Redis client disables it; every method becomes a no-op miss.
type ResultCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Config contains cache configuration.
type Config struct {
	Prefix string
	TTL    time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() *Config {
	return &Config{
		Prefix: "gen:",
		TTL:    24 * time.Hour,
	}
}

// New creates a result cache.
func New(client redis.UniversalClient, config *Config) *ResultCache {
	if config == nil {
		config = DefaultConfig()
	}
	return &ResultCache{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// Get retrieves a cached result URL. An empty string means a miss.
func (c *ResultCache) Get(ctx context.Context, genType, prompt string, urls, references []string) (string, error) {
	if c == nil || c.client == nil {
		return "", nil
	}

	url, err := c.client.Get(ctx, c.makeKey(genType, prompt, urls, references)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", fmt.Errorf("get from cache: %w", err)
	}
	return url, nil
}

// Set stores a result URL under the request fingerprint.
func (c *ResultCache) Set(ctx context.Context, genType, prompt string, urls, references []string, resultURL string) error {
	if c == nil || c.client == nil {
		return nil
	}

	key := c.makeKey(genType, prompt, urls, references)
	if err := c.client.Set(ctx, key, resultURL, c.ttl).Err(); err != nil {
		return fmt.Errorf("set in cache: %w", err)
	}
	return nil
}

// makeKey hashes the full request into a fixed-length key.
func (c *ResultCache) makeKey(genType, prompt string, urls, references []string) string {
	var b strings.Builder
	b.WriteString(genType)
	b.WriteByte('|')
	b.WriteString(prompt)
	for _, u := range urls {
		b.WriteByte('|')
		b.WriteString(u)
	}
	b.WriteString("||")
	for _, r := range references {
		b.WriteByte('|')
		b.WriteString(r)
	}

	hash := sha256.Sum256([]byte(b.String()))
	return c.prefix + hex.EncodeToString(hash[:])
}
