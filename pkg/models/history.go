package models

import "time"

// HistoryQueryOpts specifies filters for querying the decision journal.
type HistoryQueryOpts struct {
	ID             string
	Classification Classification
	Status         Status
	Tier           Tier
	Since          time.Time
	Limit          int
}

// HistoryEntry is one journaled decision.
type HistoryEntry struct {
	ID              string         `json:"id"`
	Prompt          string         `json:"prompt"`
	Status          Status         `json:"status"`
	Classification  Classification `json:"classification"`
	CacheOutcome    CacheOutcome   `json:"cache_outcome"`
	BudgetOutcome   BudgetOutcome  `json:"budget_outcome"`
	Tier            Tier           `json:"tier,omitempty"`
	Model           string         `json:"model,omitempty"`
	EstimatedTokens int            `json:"estimated_tokens"`
	EstimatedCost   float64        `json:"estimated_cost"`
	RejectReason    RejectReason   `json:"reject_reason,omitempty"`
	Reason          string         `json:"reason"`
	BudgetRemaining float64        `json:"budget_remaining"`
	CreatedAt       time.Time      `json:"created_at"`
}

// HistorySummary aggregates journaled decisions for one classification and tier.
type HistorySummary struct {
	Classification Classification `json:"classification"`
	Tier           Tier           `json:"tier"`
	Count          int            `json:"count"`
	CacheHits      int            `json:"cache_hits"`
	Rejected       int            `json:"rejected"`
	TotalTokens    int64          `json:"total_tokens"`
	TotalCost      float64        `json:"total_cost"`
}
