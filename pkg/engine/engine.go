// Package engine composes classification, caching, estimation, budgeting and
// routing into one decision per request.
package engine

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/tollgate/pkg/budget"
	"github.com/pario-ai/tollgate/pkg/cache"
	"github.com/pario-ai/tollgate/pkg/classify"
	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/models"
	"github.com/pario-ai/tollgate/pkg/router"
	"github.com/pario-ai/tollgate/pkg/tokens"
)

// promptLogLimit is how many runes of a prompt appear in log lines.
const promptLogLimit = 100

// Classifier labels request text.
type Classifier interface {
	Explain(text string) classify.Verdict
}

// Estimator sizes and prices text for a tier.
type Estimator interface {
	Estimate(text string, tier models.Tier) models.TokenEstimate
}

// Cache stores routed decisions by fingerprint.
type Cache interface {
	Fingerprint(text string) string
	Lookup(key string) (models.CacheEntry, bool)
	Insert(key string, entry models.CacheEntry)
	Stats() models.CacheStats
	Clear()
}

// Budget holds the spending allowance.
type Budget interface {
	Remaining() float64
	TryCharge(amount float64) models.ChargeResult
	Reset(limit float64) error
	Limit() float64
	Snapshot() models.BudgetState
}

// Router picks a tier for a routable classification.
type Router interface {
	Route(c models.Classification, cheap, strong models.TokenEstimate) (router.Route, error)
}

// Recorder observes every completed decision.
type Recorder interface {
	Observe(rec models.DecisionRecord)
}

// Components are the collaborators an Engine orchestrates. The cache and
// budget hold process-lifetime state and may be shared between engines.
type Components struct {
	Classifier Classifier
	Estimator  Estimator
	Cache      Cache
	Budget     Budget
	Router     Router
}

// Engine produces DecisionRecords. It never invokes a model itself.
// It is safe for concurrent use.
type Engine struct {
	c        Components
	limit    float64
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time
	newID    func() string
	requests atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-decision debug lines.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l.With("component", "engine") }
}

// WithRecorder registers a decision observer such as a metrics collector.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides how decision IDs are generated.
func WithIDGenerator(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

// New creates an Engine over the given components. The budget's current
// limit becomes the limit restored by ResetBudget.
func New(c Components, opts ...Option) *Engine {
	e := &Engine{
		c:      c,
		limit:  c.Budget.Limit(),
		logger: slog.Default().With("component", "engine"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds an Engine with the standard components.
func FromConfig(cfg *config.Config, opts ...Option) (*Engine, error) {
	tracker, err := budget.New(cfg.Budget.DailyLimit, cfg.Budget.Period)
	if err != nil {
		return nil, fmt.Errorf("create budget: %w", err)
	}
	return New(Components{
		Classifier: classify.New(cfg.Classifier),
		Estimator:  tokens.New(cfg.Tokens, cfg.Tiers),
		Cache:      cache.New(),
		Budget:     tracker,
		Router:     router.New(cfg.Tiers, cfg.Router),
	}, opts...), nil
}

// Decide runs text through the pipeline and returns exactly one record.
// Rejections are reported in the record, never as errors.
func (e *Engine) Decide(text string) models.DecisionRecord {
	rec := models.DecisionRecord{
		ID:            e.newID(),
		Sequence:      e.requests.Add(1),
		Request:       models.Request{Text: text, ReceivedAt: e.now()},
		CacheOutcome:  models.CacheNotChecked,
		BudgetOutcome: models.BudgetSkipped,
		Trail:         []models.Stage{models.StageReceived},
	}

	verdict := e.c.Classifier.Explain(text)
	rec.Classification = verdict.Label
	rec.Trail = append(rec.Trail, models.StageClassified)

	if verdict.Label.Rejected() {
		e.rejectEarly(&rec, verdict)
		return e.finish(rec)
	}

	key := e.c.Cache.Fingerprint(text)
	if entry, ok := e.c.Cache.Lookup(key); ok {
		e.serveCached(&rec, entry)
		return e.finish(rec)
	}
	rec.CacheOutcome = models.CacheMiss

	cheap := e.c.Estimator.Estimate(text, models.TierCheap)
	strong := e.c.Estimator.Estimate(text, models.TierStrong)
	rec.Trail = append(rec.Trail, models.StageEstimated)

	route, err := e.c.Router.Route(verdict.Label, cheap, strong)
	if err != nil {
		rec.RejectReason = models.RejectUnroutable
		rec.Reason = err.Error()
		rec.BudgetRemaining = e.c.Budget.Remaining()
		rec.Trail = append(rec.Trail, models.StageRejectedEarly)
		return e.finish(rec)
	}

	est := cheap
	if route.Tier == models.TierStrong {
		est = strong
	}
	rec.Estimate = &est
	rec.RequestedCost = est.EstimatedCost

	charge := e.c.Budget.TryCharge(est.EstimatedCost)
	rec.BudgetRemaining = charge.Remaining
	if !charge.Approved {
		rec.BudgetOutcome = models.BudgetRejected
		rec.RejectReason = models.RejectBudgetExceeded
		rec.Shortfall = charge.Shortfall
		rec.Reason = fmt.Sprintf("estimated cost $%.6f on %s tier exceeds remaining budget $%.6f (short $%.6f)",
			est.EstimatedCost, route.Tier, charge.Remaining, charge.Shortfall)
		rec.Trail = append(rec.Trail, models.StageRejectedBudget)
		return e.finish(rec)
	}

	rec.BudgetOutcome = models.BudgetApproved
	rec.Tier = route.Tier
	rec.Model = route.Model
	rec.Override = route.Override
	rec.Reason = route.Reason
	if verdict.Label == models.ClassExtremelyLong {
		rec.Warning = fmt.Sprintf("extremely long prompt (%d tokens)", est.EstimatedTokens)
	}
	rec.Trail = append(rec.Trail, models.StageRouted)

	e.c.Cache.Insert(key, models.CacheEntry{
		Classification:  verdict.Label,
		Tier:            route.Tier,
		Model:           route.Model,
		EstimatedTokens: est.EstimatedTokens,
		EstimatedCost:   est.EstimatedCost,
		CreatedAt:       rec.Request.ReceivedAt,
	})
	return e.finish(rec)
}

// rejectEarly fills in an EMPTY or GARBAGE rejection. The budget is only read.
func (e *Engine) rejectEarly(rec *models.DecisionRecord, v classify.Verdict) {
	if v.Label == models.ClassEmpty {
		rec.RejectReason = models.RejectEmptyInput
		rec.Reason = "EMPTY input rejected"
	} else {
		rec.RejectReason = models.RejectGarbageInput
		rec.Reason = fmt.Sprintf("GARBAGE input rejected (%s)", v.Rule)
	}
	rec.BudgetRemaining = e.c.Budget.Remaining()
	rec.Trail = append(rec.Trail, models.StageRejectedEarly)
}

func (e *Engine) serveCached(rec *models.DecisionRecord, entry models.CacheEntry) {
	rec.CacheOutcome = models.CacheHit
	rec.Tier = entry.Tier
	rec.Model = entry.Model
	rec.Estimate = &models.TokenEstimate{
		Tier:            entry.Tier,
		EstimatedTokens: entry.EstimatedTokens,
		EstimatedCost:   entry.EstimatedCost,
	}
	rec.Reason = fmt.Sprintf("exact cache match, served at zero cost (saved $%.6f, originally routed to %s tier)",
		entry.EstimatedCost, entry.Tier)
	rec.BudgetRemaining = e.c.Budget.Remaining()
	rec.Trail = append(rec.Trail, models.StageCacheHit)
}

func (e *Engine) finish(rec models.DecisionRecord) models.DecisionRecord {
	rec.Trail = append(rec.Trail, models.StageCompleted)
	rec.CompletedAt = e.now()

	e.logger.Debug("decision",
		"id", rec.ID,
		"seq", rec.Sequence,
		"status", rec.Status(),
		"classification", rec.Classification,
		"cache", rec.CacheOutcome,
		"tier", rec.Tier,
		"cost", rec.RequestedCost,
		"remaining", rec.BudgetRemaining,
		"prompt", models.Truncate(rec.Request.Text, promptLogLimit),
	)
	if e.recorder != nil {
		e.recorder.Observe(rec)
	}
	return rec
}

// Classify labels text without touching any state.
func (e *Engine) Classify(text string) classify.Verdict {
	return e.c.Classifier.Explain(text)
}

// Estimate prices text on every tier without touching any state.
func (e *Engine) Estimate(text string) []models.TokenEstimate {
	out := make([]models.TokenEstimate, 0, len(models.Tiers))
	for _, tier := range models.Tiers {
		out = append(out, e.c.Estimator.Estimate(text, tier))
	}
	return out
}

// Stats returns a snapshot of the request count, budget and cache.
func (e *Engine) Stats() models.EngineStats {
	return models.EngineStats{
		TotalRequests: e.requests.Load(),
		Budget:        e.c.Budget.Snapshot(),
		Cache:         e.c.Cache.Stats(),
	}
}

// Reset restores the budget to limit. It lets a budget.Rollover drive the
// engine directly.
func (e *Engine) Reset(limit float64) error {
	return e.c.Budget.Reset(limit)
}

// ResetBudget restores the budget to the limit it had when the engine was
// created.
func (e *Engine) ResetBudget() error {
	return e.c.Budget.Reset(e.limit)
}

// ClearCache drops all cache entries and counters.
func (e *Engine) ClearCache() {
	e.c.Cache.Clear()
}
