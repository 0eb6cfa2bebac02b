package models

import "time"

// BudgetPeriod defines the window after which the budget is restored.
type BudgetPeriod string

const (
	BudgetDaily   BudgetPeriod = "daily"
	BudgetMonthly BudgetPeriod = "monthly"
)

// BudgetState is a snapshot of the tracker.
type BudgetState struct {
	DailyLimit     float64      `json:"daily_limit"`
	Remaining      float64      `json:"remaining"`
	Spent          float64      `json:"spent"`
	PercentageUsed float64      `json:"percentage_used"`
	Period         BudgetPeriod `json:"period"`
	PeriodStart    time.Time    `json:"period_start"`
}

// ChargeResult is the outcome of a single check-and-deduct.
type ChargeResult struct {
	Approved  bool    `json:"approved"`
	Requested float64 `json:"requested"`
	Remaining float64 `json:"remaining"`
	// Shortfall is how much the request exceeded the remaining budget.
	// Zero when approved.
	Shortfall float64 `json:"shortfall"`
}
