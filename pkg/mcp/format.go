package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/tollgate/pkg/models"
)

// formatEstimates formats per-tier estimates as a text table.
func formatEstimates(ests []models.TokenEstimate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %10s %10s %10s %12s\n", "Tier", "Prompt", "Response", "Total", "Cost")
	b.WriteString(strings.Repeat("-", 54) + "\n")
	for _, e := range ests {
		fmt.Fprintf(&b, "%-8s %10d %10d %10d %12s\n",
			e.Tier, e.PromptTokens, e.ResponseTokens, e.EstimatedTokens, fmt.Sprintf("$%.6f", e.EstimatedCost))
	}
	return b.String()
}

// formatHistory formats journaled decisions as a text table.
func formatHistory(entries []models.HistoryEntry) string {
	if len(entries) == 0 {
		return "No decisions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-22s %-14s %-6s %-7s %8s %12s  %s\n",
		"Time", "Status", "Class", "Cache", "Tier", "Tokens", "Cost", "Prompt")
	b.WriteString(strings.Repeat("-", 120) + "\n")
	for _, e := range entries {
		tier := string(e.Tier)
		if tier == "" {
			tier = "-"
		}
		fmt.Fprintf(&b, "%-20s %-22s %-14s %-6s %-7s %8d %12s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Status, e.Classification, e.CacheOutcome, tier,
			e.EstimatedTokens, fmt.Sprintf("$%.6f", e.EstimatedCost),
			models.Truncate(oneLine(e.Prompt), 40))
	}
	return b.String()
}

// formatHistorySummary formats aggregated decisions as a text table.
func formatHistorySummary(rows []models.HistorySummary) string {
	if len(rows) == 0 {
		return "No decisions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-7s %8s %8s %8s %12s %12s\n",
		"Class", "Tier", "Count", "Hits", "Rejected", "Tokens", "Cost")
	b.WriteString(strings.Repeat("-", 76) + "\n")
	for _, r := range rows {
		tier := string(r.Tier)
		if tier == "" {
			tier = "-"
		}
		fmt.Fprintf(&b, "%-14s %-7s %8d %8d %8d %12s %12s\n",
			r.Classification, tier, r.Count, r.CacheHits, r.Rejected,
			humanize.Comma(r.TotalTokens), fmt.Sprintf("$%.6f", r.TotalCost))
	}
	return b.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
