package engine

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/tollgate/pkg/budget"
	"github.com/pario-ai/tollgate/pkg/cache"
	"github.com/pario-ai/tollgate/pkg/classify"
	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/models"
	"github.com/pario-ai/tollgate/pkg/router"
	"github.com/pario-ai/tollgate/pkg/tokens"
)

const capitalQuestion = "What is the capital of France?"

type spyEstimator struct {
	inner Estimator
	calls atomic.Int64
}

func (s *spyEstimator) Estimate(text string, tier models.Tier) models.TokenEstimate {
	s.calls.Add(1)
	return s.inner.Estimate(text, tier)
}

type spyRouter struct {
	inner Router
	calls atomic.Int64
}

func (s *spyRouter) Route(c models.Classification, cheap, strong models.TokenEstimate) (router.Route, error) {
	s.calls.Add(1)
	return s.inner.Route(c, cheap, strong)
}

type spyCache struct {
	Cache
	calls atomic.Int64
}

func (s *spyCache) Fingerprint(text string) string {
	s.calls.Add(1)
	return s.Cache.Fingerprint(text)
}

func (s *spyCache) Lookup(key string) (models.CacheEntry, bool) {
	s.calls.Add(1)
	return s.Cache.Lookup(key)
}

func (s *spyCache) Insert(key string, entry models.CacheEntry) {
	s.calls.Add(1)
	s.Cache.Insert(key, entry)
}

type spyBudget struct {
	Budget
	charges atomic.Int64
}

func (s *spyBudget) TryCharge(amount float64) models.ChargeResult {
	s.charges.Add(1)
	return s.Budget.TryCharge(amount)
}

type captureRecorder struct {
	mu      sync.Mutex
	records []models.DecisionRecord
}

func (c *captureRecorder) Observe(rec models.DecisionRecord) {
	c.mu.Lock()
	c.records = append(c.records, rec)
	c.mu.Unlock()
}

type harness struct {
	engine    *Engine
	estimator *spyEstimator
	router    *spyRouter
	cache     *spyCache
	budget    *spyBudget
	recorder  *captureRecorder
}

func newHarness(t *testing.T, mutate func(*config.Config)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	tracker, err := budget.New(cfg.Budget.DailyLimit, cfg.Budget.Period)
	require.NoError(t, err)

	h := &harness{
		estimator: &spyEstimator{inner: tokens.New(cfg.Tokens, cfg.Tiers)},
		router:    &spyRouter{inner: router.New(cfg.Tiers, cfg.Router)},
		cache:     &spyCache{Cache: cache.New()},
		budget:    &spyBudget{Budget: tracker},
		recorder:  &captureRecorder{},
	}
	var seq atomic.Int64
	fixed := time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)
	h.engine = New(Components{
		Classifier: classify.New(cfg.Classifier),
		Estimator:  h.estimator,
		Cache:      h.cache,
		Budget:     h.budget,
		Router:     h.router,
	},
		WithRecorder(h.recorder),
		WithClock(func() time.Time { return fixed }),
		WithIDGenerator(func() string { return fmt.Sprintf("dec-%d", seq.Add(1)) }),
	)
	return h
}

func withBudget(limit float64) func(*config.Config) {
	return func(c *config.Config) { c.Budget.DailyLimit = limit }
}

func TestEmptyInputRejectedEarly(t *testing.T) {
	h := newHarness(t, withBudget(1.0))

	for _, in := range []string{"", "   "} {
		rec := h.engine.Decide(in)

		assert.Equal(t, models.ClassEmpty, rec.Classification)
		assert.Equal(t, models.CacheNotChecked, rec.CacheOutcome)
		assert.Equal(t, models.BudgetSkipped, rec.BudgetOutcome)
		assert.Equal(t, models.RejectEmptyInput, rec.RejectReason)
		assert.Empty(t, rec.Tier)
		assert.Nil(t, rec.Estimate)
		assert.Equal(t, 1.0, rec.BudgetRemaining)
		assert.Equal(t, models.StatusRejected, rec.Status())
		assert.Equal(t, []models.Stage{
			models.StageReceived, models.StageClassified, models.StageRejectedEarly, models.StageCompleted,
		}, rec.Trail)
	}
	assert.Equal(t, 1.0, h.engine.Stats().Budget.Remaining)
}

func TestGarbageInputRejectedEarly(t *testing.T) {
	h := newHarness(t, withBudget(1.0))

	rec := h.engine.Decide("asd##!!123$$")

	assert.Equal(t, models.ClassGarbage, rec.Classification)
	assert.Equal(t, models.RejectGarbageInput, rec.RejectReason)
	assert.Contains(t, rec.Reason, "low alpha ratio")
	assert.Equal(t, 1.0, h.engine.Stats().Budget.Remaining)
}

func TestRejectionShortCircuits(t *testing.T) {
	h := newHarness(t, nil)

	for _, in := range []string{"", " \t ", "$$$###@@@!!!", "asd##!!123$$", "hi", "a b c"} {
		h.engine.Decide(in)
	}

	assert.Zero(t, h.estimator.calls.Load(), "estimator must not be called")
	assert.Zero(t, h.router.calls.Load(), "router must not be called")
	assert.Zero(t, h.cache.calls.Load(), "cache must not be touched")
	assert.Zero(t, h.budget.charges.Load(), "budget must not be charged")
	assert.Equal(t, models.CacheStats{}, h.engine.Stats().Cache)
}

func TestSimpleQuestionRoutedCheap(t *testing.T) {
	h := newHarness(t, withBudget(1.0))

	rec := h.engine.Decide(capitalQuestion)

	assert.Equal(t, models.ClassSimple, rec.Classification)
	assert.Equal(t, models.CacheMiss, rec.CacheOutcome)
	assert.Equal(t, models.BudgetApproved, rec.BudgetOutcome)
	assert.Equal(t, models.TierCheap, rec.Tier)
	assert.Equal(t, "gpt-3.5-turbo", rec.Model)
	assert.Equal(t, models.RejectNone, rec.RejectReason)
	assert.Equal(t, models.StatusProcessed, rec.Status())
	assert.True(t, strings.HasPrefix(rec.Reason, "default choice"), rec.Reason)

	require.NotNil(t, rec.Estimate)
	assert.GreaterOrEqual(t, rec.Estimate.EstimatedTokens, 8)
	assert.LessOrEqual(t, rec.Estimate.EstimatedTokens, 12)
	assert.Greater(t, rec.Estimate.EstimatedCost, 0.0)
	assert.InDelta(t, 1.0-rec.Estimate.EstimatedCost, rec.BudgetRemaining, 1e-12)
	assert.Equal(t, rec.BudgetRemaining, h.engine.Stats().Budget.Remaining)

	assert.Equal(t, int64(1), h.engine.Stats().Cache.Entries)
	assert.Equal(t, []models.Stage{
		models.StageReceived, models.StageClassified, models.StageEstimated, models.StageRouted, models.StageCompleted,
	}, rec.Trail)
}

func TestRepeatIsFreeCacheHit(t *testing.T) {
	h := newHarness(t, withBudget(1.0))

	first := h.engine.Decide(capitalQuestion)
	afterFirst := h.engine.Stats().Budget.Remaining
	charges := h.budget.charges.Load()

	second := h.engine.Decide(capitalQuestion)

	assert.Equal(t, models.CacheHit, second.CacheOutcome)
	assert.Equal(t, models.StatusCacheHit, second.Status())
	assert.Equal(t, models.BudgetSkipped, second.BudgetOutcome)
	assert.Equal(t, first.Tier, second.Tier)
	require.NotNil(t, second.Estimate)
	assert.Equal(t, first.Estimate.EstimatedTokens, second.Estimate.EstimatedTokens)
	assert.Equal(t, afterFirst, h.engine.Stats().Budget.Remaining)
	assert.Equal(t, charges, h.budget.charges.Load(), "a cache hit must not charge")
	assert.Zero(t, second.RequestedCost)

	stats := h.engine.Stats().Cache
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(first.Estimate.EstimatedTokens), stats.TokensSaved)
	assert.Equal(t, first.Estimate.EstimatedCost, stats.CostSaved)
	assert.Equal(t, []models.Stage{
		models.StageReceived, models.StageClassified, models.StageCacheHit, models.StageCompleted,
	}, second.Trail)
}

func TestCacheKeyIgnoresSurroundingWhitespace(t *testing.T) {
	h := newHarness(t, nil)

	h.engine.Decide(capitalQuestion)
	rec := h.engine.Decide("  " + capitalQuestion + "\n")

	assert.Equal(t, models.CacheHit, rec.CacheOutcome)
}

func TestSavingsAfterRepeatedHits(t *testing.T) {
	h := newHarness(t, nil)

	first := h.engine.Decide(capitalQuestion)
	const n = 5
	for i := 0; i < n; i++ {
		h.engine.Decide(capitalQuestion)
	}

	stats := h.engine.Stats().Cache
	assert.Equal(t, int64(n), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(n*first.Estimate.EstimatedTokens), stats.TokensSaved)
	assert.InDelta(t, n*first.Estimate.EstimatedCost, stats.CostSaved, 1e-12)
}

func TestExtremelyLongRoutedStrong(t *testing.T) {
	h := newHarness(t, nil)

	text := strings.Repeat("the cat sat on the mat ", 250)[:5000]
	rec := h.engine.Decide(text)

	assert.Equal(t, models.ClassExtremelyLong, rec.Classification)
	assert.Equal(t, models.TierStrong, rec.Tier)
	assert.Equal(t, "gpt-4", rec.Model)
	assert.Equal(t, models.StatusProcessedWithWarning, rec.Status())
	assert.Contains(t, rec.Reason, "escalated because EXTREMELY_LONG")
	require.NotNil(t, rec.Estimate)
	assert.Equal(t, models.TierStrong, rec.Estimate.Tier)
	assert.Contains(t, rec.Warning, fmt.Sprintf("%d tokens", rec.Estimate.EstimatedTokens))
}

func TestComplexRoutedStrong(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.engine.Decide("Compare the economic policies of France and Germany after 1990")

	assert.Equal(t, models.ClassComplex, rec.Classification)
	assert.Equal(t, models.TierStrong, rec.Tier)
	assert.Contains(t, rec.Reason, "escalated because COMPLEX")
	assert.Empty(t, rec.Warning)
}

func TestBudgetExceeded(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Budget.DailyLimit = 0.0005
		c.Tiers.Cheap.CostPer1K = 0.1
		c.Tiers.Strong.CostPer1K = 0.2
	})

	rec := h.engine.Decide(capitalQuestion)

	require.NotNil(t, rec.Estimate)
	assert.InDelta(t, 0.001, rec.Estimate.EstimatedCost, 1e-12)
	assert.Equal(t, models.BudgetRejected, rec.BudgetOutcome)
	assert.Equal(t, models.RejectBudgetExceeded, rec.RejectReason)
	assert.Equal(t, models.StatusRejected, rec.Status())
	assert.Empty(t, rec.Tier)
	assert.InDelta(t, 0.0005, rec.Shortfall, 1e-12)
	assert.InDelta(t, 0.001, rec.RequestedCost, 1e-12)
	assert.Equal(t, 0.0005, rec.BudgetRemaining)
	assert.Contains(t, rec.Reason, "exceeds remaining budget")
	assert.Equal(t, 0.0005, h.engine.Stats().Budget.Remaining)
	assert.Zero(t, h.engine.Stats().Cache.Entries, "rejected decisions are not cached")
	assert.Equal(t, []models.Stage{
		models.StageReceived, models.StageClassified, models.StageEstimated, models.StageRejectedBudget, models.StageCompleted,
	}, rec.Trail)
}

type fixedCostEstimator struct{ cost float64 }

func (f fixedCostEstimator) Estimate(_ string, tier models.Tier) models.TokenEstimate {
	return models.TokenEstimate{Tier: tier, EstimatedTokens: 10, EstimatedCost: f.cost}
}

func TestNonFiniteCostRejectedByBudget(t *testing.T) {
	for _, cost := range []float64{math.NaN(), math.Inf(1)} {
		h := newHarness(t, withBudget(1.0))
		h.estimator.inner = fixedCostEstimator{cost: cost}

		rec := h.engine.Decide(capitalQuestion)

		assert.Equal(t, models.BudgetRejected, rec.BudgetOutcome, "cost %v", cost)
		assert.Equal(t, models.RejectBudgetExceeded, rec.RejectReason, "cost %v", cost)
		assert.Equal(t, 1.0, rec.BudgetRemaining, "cost %v", cost)
		assert.Equal(t, 1.0, h.engine.Stats().Budget.Remaining, "cost %v", cost)
		assert.Zero(t, h.engine.Stats().Cache.Entries, "cost %v", cost)
	}
}

func TestBudgetRejectionRetriesAfterReset(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Budget.DailyLimit = 0.0005
		c.Tiers.Cheap.CostPer1K = 0.1
		c.Tiers.Strong.CostPer1K = 0.2
	})

	rejected := h.engine.Decide(capitalQuestion)
	require.Equal(t, models.RejectBudgetExceeded, rejected.RejectReason)

	require.NoError(t, h.engine.Reset(1.0))
	rec := h.engine.Decide(capitalQuestion)

	assert.Equal(t, models.CacheMiss, rec.CacheOutcome)
	assert.Equal(t, models.BudgetApproved, rec.BudgetOutcome)
	assert.Equal(t, models.TierCheap, rec.Tier)
}

func TestForceStrongOverrideNamed(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Router.ForceStrong = true })

	rec := h.engine.Decide(capitalQuestion)

	assert.Equal(t, models.TierStrong, rec.Tier)
	assert.Equal(t, router.OverrideForceStrong, rec.Override)
	assert.Contains(t, rec.Reason, router.OverrideForceStrong)
	assert.Equal(t, models.TierStrong, rec.Estimate.Tier)
}

func TestEveryDecisionHasReason(t *testing.T) {
	h := newHarness(t, withBudget(0.001))
	inputs := []string{
		"", "$$$", capitalQuestion, capitalQuestion,
		"Explain why the sky is blue in detail",
		strings.Repeat("long words here ", 400),
	}

	for _, in := range inputs {
		rec := h.engine.Decide(in)
		assert.NotEmpty(t, rec.Reason, "input %q", models.Truncate(in, 20))
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, models.StageCompleted, rec.Trail[len(rec.Trail)-1])
	}
	assert.Len(t, h.recorder.records, len(inputs))
}

func TestSequenceAndStats(t *testing.T) {
	h := newHarness(t, nil)

	a := h.engine.Decide("")
	b := h.engine.Decide(capitalQuestion)

	assert.Equal(t, int64(1), a.Sequence)
	assert.Equal(t, int64(2), b.Sequence)
	assert.Equal(t, "dec-1", a.ID)
	assert.Equal(t, "dec-2", b.ID)
	assert.Equal(t, int64(2), h.engine.Stats().TotalRequests)
}

func TestResetBudgetAndClearCache(t *testing.T) {
	h := newHarness(t, withBudget(1.0))
	h.engine.Decide(capitalQuestion)
	h.engine.Decide(capitalQuestion)

	require.NoError(t, h.engine.ResetBudget())
	h.engine.ClearCache()

	stats := h.engine.Stats()
	assert.Equal(t, 1.0, stats.Budget.Remaining)
	assert.Equal(t, models.CacheStats{}, stats.Cache)
	assert.Equal(t, models.CacheMiss, h.engine.Decide(capitalQuestion).CacheOutcome)
}

func TestConcurrentDecisionsNeverOverspend(t *testing.T) {
	h := newHarness(t, withBudget(0.0001))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.engine.Decide(fmt.Sprintf("What is the population of city number %d?", i))
		}(i)
	}
	wg.Wait()

	stats := h.engine.Stats()
	assert.Equal(t, int64(64), stats.TotalRequests)
	assert.GreaterOrEqual(t, stats.Budget.Remaining, 0.0)
	assert.LessOrEqual(t, stats.Budget.Remaining, 0.0001)

	var charged float64
	for _, rec := range h.recorder.records {
		if rec.BudgetOutcome == models.BudgetApproved {
			charged += rec.RequestedCost
		}
	}
	assert.InDelta(t, 0.0001-stats.Budget.Remaining, charged, 1e-12)
}

func TestClassifyAndEstimateArePure(t *testing.T) {
	h := newHarness(t, nil)

	v := h.engine.Classify(capitalQuestion)
	ests := h.engine.Estimate(capitalQuestion)

	assert.Equal(t, models.ClassSimple, v.Label)
	require.Len(t, ests, 2)
	assert.Equal(t, models.TierCheap, ests[0].Tier)
	assert.Equal(t, models.TierStrong, ests[1].Tier)
	assert.Greater(t, ests[1].EstimatedCost, ests[0].EstimatedCost)
	assert.Equal(t, int64(0), h.engine.Stats().TotalRequests)
	assert.Zero(t, h.cache.calls.Load())
}

func TestFromConfig(t *testing.T) {
	e, err := FromConfig(config.Default())
	require.NoError(t, err)

	rec := e.Decide(capitalQuestion)
	assert.Equal(t, models.TierCheap, rec.Tier)
	assert.Len(t, rec.ID, 36)

	bad := config.Default()
	bad.Budget.DailyLimit = -1
	_, err = FromConfig(bad)
	assert.ErrorIs(t, err, budget.ErrInvalidLimit)
}
