package models

import "time"

// Request is one unit of work submitted to the engine.
type Request struct {
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// TokenEstimate is the heuristic size and price of a request on one tier.
type TokenEstimate struct {
	Tier            Tier    `json:"tier"`
	PromptTokens    int     `json:"prompt_tokens"`
	ResponseTokens  int     `json:"response_tokens"`
	EstimatedTokens int     `json:"estimated_tokens"`
	EstimatedCost   float64 `json:"estimated_cost"`
}

// CacheOutcome records whether the cache was consulted and what it returned.
type CacheOutcome string

const (
	CacheNotChecked CacheOutcome = "N/A"
	CacheHit        CacheOutcome = "HIT"
	CacheMiss       CacheOutcome = "MISS"
)

// BudgetOutcome records what the budget tracker said about a request.
type BudgetOutcome string

const (
	// BudgetSkipped means no charge was attempted: the request was rejected
	// early or served from cache.
	BudgetSkipped  BudgetOutcome = "SKIPPED"
	BudgetApproved BudgetOutcome = "APPROVED"
	BudgetRejected BudgetOutcome = "REJECTED"
)

// RejectReason explains why a request was not routed.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectEmptyInput     RejectReason = "EMPTY_INPUT"
	RejectGarbageInput   RejectReason = "GARBAGE_INPUT"
	RejectBudgetExceeded RejectReason = "BUDGET_EXCEEDED"
	// RejectUnroutable covers a classification the router refuses.
	RejectUnroutable RejectReason = "UNROUTABLE"
)

// Status summarizes a decision for display.
type Status string

const (
	StatusProcessed            Status = "PROCESSED"
	StatusProcessedWithWarning Status = "PROCESSED_WITH_WARNING"
	StatusCacheHit             Status = "CACHE_HIT"
	StatusRejected             Status = "REJECTED"
)

// Stage is a state a request passes through inside the engine.
type Stage string

const (
	StageReceived       Stage = "RECEIVED"
	StageClassified     Stage = "CLASSIFIED"
	StageRejectedEarly  Stage = "REJECTED_EARLY"
	StageCacheHit       Stage = "CACHE_HIT"
	StageEstimated      Stage = "ESTIMATED"
	StageRejectedBudget Stage = "REJECTED_BUDGET"
	StageRouted         Stage = "ROUTED"
	StageCompleted      Stage = "COMPLETED"
)

// DecisionRecord is the engine's only output for a request. It is never
// modified after Decide returns it.
type DecisionRecord struct {
	ID             string         `json:"id"`
	Sequence       int64          `json:"sequence"`
	Request        Request        `json:"request"`
	Classification Classification `json:"classification"`
	CacheOutcome   CacheOutcome   `json:"cache_outcome"`
	// Estimate is nil when the request never reached estimation.
	Estimate      *TokenEstimate `json:"estimate,omitempty"`
	BudgetOutcome BudgetOutcome  `json:"budget_outcome"`
	// Tier and Model are empty unless the request was routed or served from cache.
	Tier            Tier         `json:"tier,omitempty"`
	Model           string       `json:"model,omitempty"`
	Override        string       `json:"override,omitempty"`
	Reason          string       `json:"reason"`
	Warning         string       `json:"warning,omitempty"`
	RejectReason    RejectReason `json:"reject_reason,omitempty"`
	RequestedCost   float64      `json:"requested_cost,omitempty"`
	Shortfall       float64      `json:"shortfall,omitempty"`
	BudgetRemaining float64      `json:"budget_remaining"`
	Trail           []Stage      `json:"trail"`
	CompletedAt     time.Time    `json:"completed_at"`
}

// Status derives the display status of the record.
func (d DecisionRecord) Status() Status {
	switch {
	case d.RejectReason != RejectNone:
		return StatusRejected
	case d.CacheOutcome == CacheHit:
		return StatusCacheHit
	case d.Warning != "":
		return StatusProcessedWithWarning
	default:
		return StatusProcessed
	}
}

// DecisionLog is the machine-readable form of a DecisionRecord. Absent
// values are encoded as JSON null.
type DecisionLog struct {
	ID              string         `json:"id"`
	Sequence        int64          `json:"sequence"`
	Timestamp       time.Time      `json:"timestamp"`
	Prompt          string         `json:"prompt"`
	Status          Status         `json:"status"`
	Classification  Classification `json:"classification"`
	CacheOutcome    CacheOutcome   `json:"cacheOutcome"`
	ModelTier       *Tier          `json:"modelTier"`
	Model           *string        `json:"model"`
	EstimatedTokens *int           `json:"estimatedTokens"`
	EstimatedCost   *float64       `json:"estimatedCost"`
	RejectReason    *RejectReason  `json:"rejectReason"`
	Shortfall       *float64       `json:"shortfall"`
	Reason          string         `json:"reason"`
	Warning         *string        `json:"warning"`
	BudgetRemaining float64        `json:"budgetRemaining"`
}

// Log converts the record into its machine-readable form, truncating the
// prompt to maxPrompt runes when maxPrompt is positive.
func (d DecisionRecord) Log(maxPrompt int) DecisionLog {
	l := DecisionLog{
		ID:              d.ID,
		Sequence:        d.Sequence,
		Timestamp:       d.Request.ReceivedAt,
		Prompt:          Truncate(d.Request.Text, maxPrompt),
		Status:          d.Status(),
		Classification:  d.Classification,
		CacheOutcome:    d.CacheOutcome,
		Reason:          d.Reason,
		BudgetRemaining: d.BudgetRemaining,
	}
	if d.Tier != "" {
		tier, model := d.Tier, d.Model
		l.ModelTier = &tier
		l.Model = &model
	}
	if d.Estimate != nil {
		tokens, cost := d.Estimate.EstimatedTokens, d.Estimate.EstimatedCost
		l.EstimatedTokens = &tokens
		l.EstimatedCost = &cost
	}
	if d.RejectReason != RejectNone {
		reason := d.RejectReason
		l.RejectReason = &reason
	}
	if d.Shortfall > 0 {
		shortfall := d.Shortfall
		l.Shortfall = &shortfall
	}
	if d.Warning != "" {
		warning := d.Warning
		l.Warning = &warning
	}
	return l
}

// EngineStats is the end-of-session summary.
type EngineStats struct {
	TotalRequests int64       `json:"total_requests"`
	Budget        BudgetState `json:"budget"`
	Cache         CacheStats  `json:"cache"`
}

// Truncate shortens s to at most n runes, appending "..." when cut.
// A non-positive n disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
