package budget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pario-ai/tollgate/pkg/models"
)

// Resetter restores a budget to a limit.
type Resetter interface {
	Reset(limit float64) error
}

// ScheduleFor returns the cron expression that starts each period at UTC
// midnight.
func ScheduleFor(period models.BudgetPeriod) string {
	if period == models.BudgetMonthly {
		return "0 0 1 * *"
	}
	return "0 0 * * *"
}

// Rollover resets a budget at the start of every period.
type Rollover struct {
	target   Resetter
	limit    float64
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	// watchDone is closed when the goroutine watching the Start context exits.
	watchDone chan struct{}
}

// NewRollover creates a Rollover. An empty schedule is derived from period.
func NewRollover(target Resetter, limit float64, period models.BudgetPeriod, schedule string) *Rollover {
	if schedule == "" {
		schedule = ScheduleFor(period)
	}
	return &Rollover{
		target:   target,
		limit:    limit,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		logger:   slog.Default().With("component", "budget.rollover"),
	}
}

// WithLogger replaces the rollover's logger.
func (r *Rollover) WithLogger(l *slog.Logger) *Rollover {
	r.logger = l.With("component", "budget.rollover")
	return r
}

// Schedule returns the cron expression in use.
func (r *Rollover) Schedule() string {
	return r.schedule
}

// Start schedules the reset job. The scheduler stops when ctx is cancelled
// or Stop is called, whichever comes first.
func (r *Rollover) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid reset schedule %q: %w", r.schedule, err)
	}
	if _, err := r.cron.AddFunc(r.schedule, r.Run); err != nil {
		return fmt.Errorf("schedule budget reset: %w", err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("budget rollover started", "schedule", r.schedule, "limit", r.limit)

	stop := make(chan struct{})
	watchDone := make(chan struct{})
	r.stop, r.watchDone = stop, watchDone
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			r.Stop()
		case <-stop:
		}
	}()
	return nil
}

// Run resets the budget once.
func (r *Rollover) Run() {
	if err := r.target.Reset(r.limit); err != nil {
		r.logger.Error("budget reset failed", "error", err)
		return
	}
	r.logger.Info("budget reset", "limit", r.limit)
}

// Stop halts the scheduler and waits for a running reset to finish.
func (r *Rollover) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	close(r.stop)
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Info("budget rollover stopped")
}

// NextRun returns the next scheduled reset, or nil when not running.
func (r *Rollover) NextRun() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
