package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// VectorCache maps a hash of normalized text to a previously computed
// embedding vector. It is injected into the Service rather than held as a
// package singleton so tests can reset it per run. The cache is unbounded;
// eviction is left to production hardening.
type VectorCache struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func NewVectorCache() *VectorCache {
	return &VectorCache{vectors: make(map[string][]float32)}
}

// Key returns the cache key for text: a sha256 of the whitespace-collapsed
// form, so trivially reformatted text hits the same entry.
func Key(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func (c *VectorCache) Get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vectors[key]
	return v, ok
}

func (c *VectorCache) Put(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors[key] = vector
}

// Len returns the number of cached vectors.
func (c *VectorCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.vectors)
}

// Reset clears the cache.
func (c *VectorCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vectors = make(map[string][]float32)
}
