// Package metrics exports decision counters to Prometheus.
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pario-ai/tollgate/pkg/models"
)

// Collector turns decision records into Prometheus metrics. It implements
// the engine's Recorder interface.
type Collector struct {
	registry *prometheus.Registry

	decisions       *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	estimatedTokens *prometheus.HistogramVec
	costCharged     prometheus.Counter
	costSaved       prometheus.Counter
	budgetRemaining prometheus.GaugeFunc

	lastRemaining atomic.Uint64
	budgetSource  atomic.Pointer[func() float64]
}

// New creates a Collector registered on its own registry.
func New(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total number of routing decisions by status, classification and tier",
			},
			[]string{"status", "classification", "tier"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Total number of cache lookups by result",
			},
			[]string{"result"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of rejected requests by reason",
			},
			[]string{"reason"},
		),
		estimatedTokens: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "estimated_tokens",
				Help:      "Estimated tokens of routed requests",
				Buckets:   prometheus.ExponentialBuckets(8, 2, 12), // 8 to 16k
			},
			[]string{"tier"},
		),
		costCharged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_charged_total",
			Help:      "Total estimated cost charged against the budget",
		}),
		costSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cost_saved_total",
			Help:      "Total estimated cost avoided by cache hits",
		}),
	}
	c.budgetRemaining = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "budget_remaining",
		Help:      "Budget currently remaining",
	}, c.remaining)

	c.registry.MustRegister(
		c.decisions,
		c.cacheLookups,
		c.rejections,
		c.estimatedTokens,
		c.costCharged,
		c.costSaved,
		c.budgetRemaining,
	)
	return c
}

// Observe records one decision.
func (c *Collector) Observe(rec models.DecisionRecord) {
	tier := string(rec.Tier)
	if tier == "" {
		tier = "none"
	}
	c.decisions.WithLabelValues(string(rec.Status()), string(rec.Classification), tier).Inc()
	c.lastRemaining.Store(math.Float64bits(rec.BudgetRemaining))

	switch rec.CacheOutcome {
	case models.CacheHit:
		c.cacheLookups.WithLabelValues("hit").Inc()
		if rec.Estimate != nil {
			c.costSaved.Add(rec.Estimate.EstimatedCost)
		}
	case models.CacheMiss:
		c.cacheLookups.WithLabelValues("miss").Inc()
	}

	if rec.RejectReason != models.RejectNone {
		c.rejections.WithLabelValues(string(rec.RejectReason)).Inc()
		return
	}
	if rec.BudgetOutcome == models.BudgetApproved && rec.Estimate != nil {
		c.costCharged.Add(rec.Estimate.EstimatedCost)
		c.estimatedTokens.WithLabelValues(tier).Observe(float64(rec.Estimate.EstimatedTokens))
	}
}

// WatchBudget makes budget_remaining read the live budget at scrape time, so
// resets that happen between decisions are visible.
func (c *Collector) WatchBudget(remaining func() float64) {
	c.budgetSource.Store(&remaining)
}

// remaining reports the watched budget, or the value carried by the most
// recent decision when no budget is watched.
func (c *Collector) remaining() float64 {
	if f := c.budgetSource.Load(); f != nil {
		return (*f)()
	}
	return math.Float64frombits(c.lastRemaining.Load())
}

// Registry returns the registry the collectors are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
