package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tollgate/pkg/models"
)

func routedRecord() models.DecisionRecord {
	return models.DecisionRecord{
		ID:              "id-1",
		Sequence:        3,
		Request:         models.Request{Text: "What is the capital of France?", ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		Classification:  models.ClassSimple,
		CacheOutcome:    models.CacheMiss,
		BudgetOutcome:   models.BudgetApproved,
		Estimate:        &models.TokenEstimate{Tier: models.TierCheap, EstimatedTokens: 1200, EstimatedCost: 0.0006},
		Tier:            models.TierCheap,
		Model:           "gpt-3.5-turbo",
		Reason:          "default choice: SIMPLE query routed to the cheap tier",
		BudgetRemaining: 0.9994,
	}
}

func TestDecisionLine(t *testing.T) {
	line := DecisionLine(routedRecord(), Options{})

	for _, want := range []string{
		"#3", "PROCESSED", "SIMPLE", "cache=miss", "tier=cheap(gpt-3.5-turbo)",
		"tokens=1,200", "cost=$0.000600", "remaining=$0.9994", `reason="default choice`,
	} {
		assert.Contains(t, line, want)
	}
	assert.NotContains(t, line, "reject=")
}

func TestDecisionLineRejected(t *testing.T) {
	rec := models.DecisionRecord{
		Sequence:        1,
		Classification:  models.ClassEmpty,
		CacheOutcome:    models.CacheNotChecked,
		BudgetOutcome:   models.BudgetSkipped,
		RejectReason:    models.RejectEmptyInput,
		Reason:          "EMPTY input rejected",
		BudgetRemaining: 10,
	}

	line := DecisionLine(rec, Options{})

	assert.Contains(t, line, "REJECTED")
	assert.Contains(t, line, "reject=EMPTY_INPUT")
	assert.NotContains(t, line, "tier=")
	assert.NotContains(t, line, "tokens=")
}

func TestDecisionVerbose(t *testing.T) {
	rec := routedRecord()
	rec.Classification = models.ClassExtremelyLong
	rec.Warning = "extremely long prompt (1200 tokens)"

	var buf bytes.Buffer
	require.NoError(t, Decision(&buf, rec, Options{Verbose: true}))

	out := buf.String()
	assert.Contains(t, out, "REQUEST #3 - PROCESSED_WITH_WARNING")
	assert.Contains(t, out, "Timestamp:       2026-01-02T03:04:05Z")
	assert.Contains(t, out, "Model:           gpt-3.5-turbo (cheap tier)")
	assert.Contains(t, out, "Warning:         extremely long prompt (1200 tokens)")
	assert.NotContains(t, out, "\x1b[", "color must be off")
}

func TestJSONUsesNulls(t *testing.T) {
	rec := models.DecisionRecord{
		ID:              "id-2",
		Request:         models.Request{Text: strings.Repeat("z", 150)},
		Classification:  models.ClassGarbage,
		CacheOutcome:    models.CacheNotChecked,
		BudgetOutcome:   models.BudgetSkipped,
		RejectReason:    models.RejectGarbageInput,
		Reason:          "GARBAGE input rejected",
		BudgetRemaining: 5,
	}

	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, rec))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Nil(t, got["modelTier"])
	assert.Nil(t, got["estimatedTokens"])
	assert.Nil(t, got["estimatedCost"])
	assert.Equal(t, "GARBAGE_INPUT", got["rejectReason"])
	assert.Equal(t, "REJECTED", got["status"])
	assert.Equal(t, 5.0, got["budgetRemaining"])
	assert.Len(t, got["prompt"], PromptLimit+3)
}

func TestJSONRouted(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, routedRecord()))

	var got models.DecisionLog
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.NotNil(t, got.ModelTier)
	assert.Equal(t, models.TierCheap, *got.ModelTier)
	require.NotNil(t, got.EstimatedTokens)
	assert.Equal(t, 1200, *got.EstimatedTokens)
	assert.Nil(t, got.RejectReason)
}

func TestStats(t *testing.T) {
	s := models.EngineStats{
		TotalRequests: 12345,
		Budget: models.BudgetState{
			DailyLimit: 10, Remaining: 7.5, Spent: 2.5, PercentageUsed: 25,
			Period: models.BudgetDaily, PeriodStart: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		},
		Cache: models.CacheStats{Entries: 2, Hits: 1, Misses: 3, TokensSaved: 2500, CostSaved: 0.00125},
	}

	var buf bytes.Buffer
	require.NoError(t, Stats(&buf, s, Options{}))

	out := buf.String()
	for _, want := range []string{
		"Total requests:  12,345",
		"Budget (daily, since 2026-10-17)",
		"Used:          25.0%",
		"Hit rate:      25.0%",
		"Tokens saved:  2,500",
		"Cost saved:    $0.001250",
	} {
		assert.Contains(t, out, want)
	}
}

func TestStatsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, StatsJSON(&buf, models.EngineStats{TotalRequests: 2}))

	var got models.EngineStats
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, int64(2), got.TotalRequests)
}
