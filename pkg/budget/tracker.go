// Package budget tracks the spending allowance for the current period.
package budget

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pario-ai/tollgate/pkg/models"
)

// ErrInvalidLimit is returned when a limit is not a positive finite amount.
var ErrInvalidLimit = errors.New("budget limit must be positive")

// Tracker holds the remaining budget. Remaining always stays within
// [0, limit]. It is safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	limit       float64
	remaining   float64
	period      models.BudgetPeriod
	periodStart time.Time
	now         func() time.Time
}

// New creates a Tracker with the full limit available.
func New(limit float64, period models.BudgetPeriod) (*Tracker, error) {
	if !validLimit(limit) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLimit, limit)
	}
	t := &Tracker{
		limit:     limit,
		remaining: limit,
		period:    period,
		now:       time.Now,
	}
	t.periodStart = PeriodStart(period, t.now())
	return t, nil
}

// Remaining returns the amount still available.
func (t *Tracker) Remaining() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// TryCharge deducts amount if it fits in the remaining budget. The check and
// the deduction happen under one lock. A rejected charge changes nothing.
// Negative and non-finite amounts are always rejected.
func (t *Tracker) TryCharge(amount float64) models.ChargeResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 || amount > t.remaining {
		shortfall := amount - t.remaining
		if !(shortfall > 0) || math.IsInf(shortfall, 0) {
			shortfall = 0
		}
		return models.ChargeResult{
			Requested: amount,
			Remaining: t.remaining,
			Shortfall: shortfall,
		}
	}

	t.remaining -= amount
	if t.remaining < 0 {
		t.remaining = 0
	}
	return models.ChargeResult{
		Approved:  true,
		Requested: amount,
		Remaining: t.remaining,
	}
}

// Reset restores the budget to limit and starts a new period.
func (t *Tracker) Reset(limit float64) error {
	if !validLimit(limit) {
		return fmt.Errorf("%w: %v", ErrInvalidLimit, limit)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
	t.remaining = limit
	t.periodStart = PeriodStart(t.period, t.now())
	return nil
}

// Limit returns the current period's limit.
func (t *Tracker) Limit() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// Snapshot returns the current budget state.
func (t *Tracker) Snapshot() models.BudgetState {
	t.mu.Lock()
	defer t.mu.Unlock()

	spent := t.limit - t.remaining
	return models.BudgetState{
		DailyLimit:     t.limit,
		Remaining:      t.remaining,
		Spent:          spent,
		PercentageUsed: spent / t.limit * 100,
		Period:         t.period,
		PeriodStart:    t.periodStart,
	}
}

func validLimit(limit float64) bool {
	return limit > 0 && !math.IsInf(limit, 1)
}

// PeriodStart returns the UTC start of the period containing now.
func PeriodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
