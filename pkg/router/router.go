// Package router picks a model tier for a classified request.
package router

import (
	"errors"
	"fmt"

	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/models"
)

// ErrNotRoutable is returned for classifications that must be rejected
// before routing.
var ErrNotRoutable = errors.New("classification is not routable")

// Override policy names reported in Route.Override.
const (
	OverrideForceStrong  = "force_strong"
	OverrideTokenCeiling = "escalate_above_tokens"
)

// Route is a routing decision. Every route carries a reason.
type Route struct {
	Tier      models.Tier
	Model     string
	Reason    string
	Escalated bool
	Override  string
}

// Router maps classifications to tiers.
type Router struct {
	tiers  config.TiersConfig
	policy config.RouterConfig
}

// New creates a Router from the tier and policy configuration.
func New(tiers config.TiersConfig, policy config.RouterConfig) *Router {
	return &Router{tiers: tiers, policy: policy}
}

// Route selects a tier. Complex and extremely long requests always go to the
// strong tier; simple requests go to the cheap tier unless an override policy
// escalates them.
func (r *Router) Route(c models.Classification, cheap, strong models.TokenEstimate) (Route, error) {
	switch c {
	case models.ClassComplex:
		return r.strong(fmt.Sprintf("escalated because %s query requires the strong tier", c), ""), nil
	case models.ClassExtremelyLong:
		return r.strong(fmt.Sprintf("escalated because %s prompt (%d tokens) requires the strong tier",
			c, strong.EstimatedTokens), ""), nil
	case models.ClassSimple:
	default:
		return Route{}, fmt.Errorf("%w: %s", ErrNotRoutable, c)
	}

	if r.policy.ForceStrong {
		return r.strong(fmt.Sprintf("escalated because policy override %s is set (%s query would default to the cheap tier)",
			OverrideForceStrong, c), OverrideForceStrong), nil
	}
	if limit := r.policy.EscalateAboveTokens; limit > 0 && cheap.EstimatedTokens > limit {
		return r.strong(fmt.Sprintf("escalated because policy override %s: cheap estimate of %d tokens exceeds %d",
			OverrideTokenCeiling, cheap.EstimatedTokens, limit), OverrideTokenCeiling), nil
	}

	return Route{
		Tier:   models.TierCheap,
		Model:  r.tiers.Cheap.Model,
		Reason: fmt.Sprintf("default choice: %s query routed to the cheap tier", c),
	}, nil
}

// Model returns the configured model name for a tier.
func (r *Router) Model(tier models.Tier) string {
	return r.tiers.Get(tier).Model
}

func (r *Router) strong(reason, override string) Route {
	return Route{
		Tier:      models.TierStrong,
		Model:     r.tiers.Strong.Model,
		Reason:    reason,
		Escalated: true,
		Override:  override,
	}
}
