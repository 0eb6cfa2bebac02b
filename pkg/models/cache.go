package models

import "time"

// CacheEntry is the outcome of a routed decision, stored under the
// fingerprint of the request text.
type CacheEntry struct {
	Classification  Classification `json:"classification"`
	Tier            Tier           `json:"tier"`
	Model           string         `json:"model"`
	EstimatedTokens int            `json:"estimated_tokens"`
	EstimatedCost   float64        `json:"estimated_cost"`
	CreatedAt       time.Time      `json:"created_at"`
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Entries     int64   `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	TokensSaved int64   `json:"tokens_saved"`
	CostSaved   float64 `json:"cost_saved"`
}

// HitRate returns hits as a percentage of all lookups.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}
