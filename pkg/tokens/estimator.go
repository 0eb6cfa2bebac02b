// Package tokens estimates token counts and costs without a real tokenizer.
package tokens

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/models"
)

// Estimator turns text into a TokenEstimate for a tier. It is a pure
// function of its configuration and input.
type Estimator struct {
	charsPerToken float64
	tiers         config.TiersConfig
}

// New creates an Estimator.
func New(tokens config.TokensConfig, tiers config.TiersConfig) *Estimator {
	cpt := tokens.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	return &Estimator{charsPerToken: cpt, tiers: tiers}
}

// PromptTokens estimates the prompt size: trimmed rune count divided by
// chars-per-token, rounded up. Empty text is zero tokens.
func (e *Estimator) PromptTokens(text string) int {
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}
	return int(math.Ceil(float64(n) / e.charsPerToken))
}

// Estimate returns prompt tokens plus the tier's response overhead, priced at
// the tier's per-1K rate.
func (e *Estimator) Estimate(text string, tier models.Tier) models.TokenEstimate {
	tc := e.tiers.Get(tier)
	prompt := e.PromptTokens(text)
	total := prompt + tc.ResponseOverhead
	return models.TokenEstimate{
		Tier:            tier,
		PromptTokens:    prompt,
		ResponseTokens:  tc.ResponseOverhead,
		EstimatedTokens: total,
		EstimatedCost:   Cost(total, tc.CostPer1K),
	}
}

// Cost prices tokens at a per-1K rate.
func Cost(tokens int, costPer1K float64) float64 {
	return float64(tokens) / 1000 * costPer1K
}
