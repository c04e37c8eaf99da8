// Package retrieval implements the query cache, multi-signal scoring,
// and MMR diversity re-ranking described in spec.md §4.7, grounded on
// developer-mesh's bounded LRUManager pattern for the cache layer.
package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/selfmemory/memoryd/internal/memory"
)

const maxCachedResultBytes = 100 * 1024

// CacheEntry is one cached retrieval answer: an ordered result list plus
// insertion time, evaluated against TTL at lookup time.
type CacheEntry struct {
	Results   []memory.Episode
	InsertAt  time.Time
	TTL       time.Duration
	Domain    string
}

func (e *CacheEntry) expired(now time.Time) bool {
	return now.Sub(e.InsertAt) > e.TTL
}

// QueryCache is a bounded, TTL-aware, domain-scoped-invalidation cache
// of retrieval results. One mutex guards both the LRU and the domain
// index, so every Get, Put and InvalidateDomain is serialized; the cache
// is not lock-striped.
type QueryCache struct {
	mu         sync.Mutex
	lru        *lru.Cache[string, *CacheEntry]
	byDomain   map[string]map[string]struct{} // domain -> set of fingerprints
	defaultTTL time.Duration
}

func NewQueryCache(capacity int, defaultTTL time.Duration) (*QueryCache, error) {
	if capacity <= 0 {
		capacity = 10_000
	}
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second
	}
	c, err := lru.New[string, *CacheEntry](capacity)
	if err != nil {
		return nil, fmt.Errorf("failed to construct query cache: %w", err)
	}
	return &QueryCache{lru: c, byDomain: make(map[string]map[string]struct{}), defaultTTL: defaultTTL}, nil
}

// Fingerprint hashes normalized query text, context filters, and limit
// into the cache key, per §4.7 step 1.
func Fingerprint(queryText string, domain string, taskType memory.TaskType, limit int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", normalizeQuery(queryText), domain, taskType, limit)
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeQuery(s string) string {
	out := make([]rune, 0, len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' {
			if !prevSpace {
				out = append(out, ' ')
			}
			prevSpace = true
			continue
		}
		prevSpace = false
		if 'A' <= r && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return strings.TrimSpace(string(out))
}

func (c *QueryCache) Get(fp string) (*CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.lru.Get(fp)
	if !ok {
		return nil, false
	}
	if entry.expired(time.Now()) {
		c.lru.Remove(fp)
		c.removeFromDomainIndex(fp, entry.Domain)
		return nil, false
	}
	return entry, true
}

// Put inserts a result set, subject to the serialized-size cap from
// §4.7; oversized result sets are simply not cached.
func (c *QueryCache) Put(fp string, domain string, results []memory.Episode, approxSize int) {
	if approxSize > maxCachedResultBytes {
		return
	}
	entry := &CacheEntry{Results: results, InsertAt: time.Now(), TTL: c.defaultTTL, Domain: domain}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(fp, entry)
	if c.byDomain[domain] == nil {
		c.byDomain[domain] = make(map[string]struct{})
	}
	c.byDomain[domain][fp] = struct{}{}
}

func (c *QueryCache) removeFromDomainIndex(fp, domain string) {
	if set, ok := c.byDomain[domain]; ok {
		delete(set, fp)
		if len(set) == 0 {
			delete(c.byDomain, domain)
		}
	}
}

// InvalidateDomain drops every cached entry whose context.domain matches,
// called whenever a new episode is admitted under that domain (§4.7).
func (c *QueryCache) InvalidateDomain(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fps, ok := c.byDomain[domain]
	if !ok {
		return
	}
	for fp := range fps {
		c.lru.Remove(fp)
	}
	delete(c.byDomain, domain)
}

// Len reports the number of live entries, used by health diagnostics.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// SortedDomains is a small test/debug helper listing domains currently
// tracked for invalidation.
func (c *QueryCache) SortedDomains() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.byDomain))
	for d := range c.byDomain {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
