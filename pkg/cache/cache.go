// Package cache is an exact-match decision cache keyed by a fingerprint of
// the request text.
package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"

	"github.com/pario-ai/tollgate/pkg/models"
)

// Store is an in-memory decision cache. Entries never expire.
// It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]models.CacheEntry
	stats   models.CacheStats
}

// New creates an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]models.CacheEntry)}
}

// Fingerprint computes a SHA-256 digest of the trimmed text. Case is preserved.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return fmt.Sprintf("%x", sum)
}

// Fingerprint computes the cache key for text.
func (s *Store) Fingerprint(text string) string {
	return Fingerprint(text)
}

// Lookup returns the entry stored under key. A hit adds the entry's tokens
// and cost to the savings counters; a miss counts as a miss.
func (s *Store) Lookup(key string) (models.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		s.stats.Misses++
		return models.CacheEntry{}, false
	}
	s.stats.Hits++
	s.stats.TokensSaved += int64(entry.EstimatedTokens)
	s.stats.CostSaved += entry.EstimatedCost
	return entry, true
}

// Insert stores entry under key, replacing any previous entry.
func (s *Store) Insert(key string, entry models.CacheEntry) {
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() models.CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stats
	st.Entries = int64(len(s.entries))
	return st
}

// Clear drops every entry and zeroes the counters.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]models.CacheEntry)
	s.stats = models.CacheStats{}
	s.mu.Unlock()
}
