package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/engine"
	"github.com/pario-ai/tollgate/pkg/models"
)

func routed(tier models.Tier, tokens int, cost float64, remaining float64) models.DecisionRecord {
	return models.DecisionRecord{
		Classification:  models.ClassSimple,
		CacheOutcome:    models.CacheMiss,
		BudgetOutcome:   models.BudgetApproved,
		Tier:            tier,
		Estimate:        &models.TokenEstimate{Tier: tier, EstimatedTokens: tokens, EstimatedCost: cost},
		BudgetRemaining: remaining,
	}
}

func TestObserveRouted(t *testing.T) {
	c := New("tollgate")

	c.Observe(routed(models.TierCheap, 10, 0.25, 0.75))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("PROCESSED", "SIMPLE", "cheap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.costCharged))
	assert.Equal(t, 0.75, testutil.ToFloat64(c.budgetRemaining))
}

func TestObserveCacheHit(t *testing.T) {
	c := New("tollgate")
	rec := routed(models.TierCheap, 10, 0.5, 1)
	rec.CacheOutcome = models.CacheHit
	rec.BudgetOutcome = models.BudgetSkipped

	c.Observe(rec)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 0.5, testutil.ToFloat64(c.costSaved))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.costCharged))
}

func TestObserveRejections(t *testing.T) {
	c := New("tollgate")

	c.Observe(models.DecisionRecord{
		Classification: models.ClassEmpty,
		CacheOutcome:   models.CacheNotChecked,
		BudgetOutcome:  models.BudgetSkipped,
		RejectReason:   models.RejectEmptyInput,
	})
	c.Observe(models.DecisionRecord{
		Classification: models.ClassComplex,
		CacheOutcome:   models.CacheMiss,
		BudgetOutcome:  models.BudgetRejected,
		RejectReason:   models.RejectBudgetExceeded,
		Estimate:       &models.TokenEstimate{EstimatedCost: 9},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("EMPTY_INPUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("BUDGET_EXCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.decisions.WithLabelValues("REJECTED", "EMPTY", "none")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.costCharged))
}

func TestBudgetRemainingFollowsWatchedBudget(t *testing.T) {
	c := New("tollgate")
	c.Observe(routed(models.TierCheap, 10, 0.25, 0.75))
	require.Equal(t, 0.75, testutil.ToFloat64(c.budgetRemaining))

	remaining := 0.75
	c.WatchBudget(func() float64 { return remaining })

	// A rollover restores the budget without any new decision.
	remaining = 10
	assert.Equal(t, 10.0, testutil.ToFloat64(c.budgetRemaining))
}

func TestBudgetRemainingAfterEngineReset(t *testing.T) {
	c := New("tollgate")
	eng, err := engine.FromConfig(config.Default(), engine.WithRecorder(c))
	require.NoError(t, err)
	c.WatchBudget(func() float64 { return eng.Stats().Budget.Remaining })

	eng.Decide("What is the capital of France?")
	require.Less(t, testutil.ToFloat64(c.budgetRemaining), 10.0)

	// Rollover calls Reset with no decision in between.
	require.NoError(t, eng.Reset(10))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.budgetRemaining))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New("tollgate")
	c.Observe(routed(models.TierStrong, 100, 0.3, 9.7))

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rr.Code)
	body := rr.Body.String()
	for _, want := range []string{
		"tollgate_decisions_total",
		"tollgate_cost_charged_total 0.3",
		"tollgate_budget_remaining 9.7",
		`tollgate_estimated_tokens_bucket{tier="strong"`,
	} {
		assert.True(t, strings.Contains(body, want), "missing %q", want)
	}
}
