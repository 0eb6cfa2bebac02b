package models

// Classification is the label the classifier assigns to request text.
type Classification string

const (
	ClassEmpty         Classification = "EMPTY"
	ClassGarbage       Classification = "GARBAGE"
	ClassSimple        Classification = "SIMPLE"
	ClassComplex       Classification = "COMPLEX"
	ClassExtremelyLong Classification = "EXTREMELY_LONG"
)

// Rejected reports whether the label short-circuits the pipeline before any
// cache, budget or routing work.
func (c Classification) Rejected() bool {
	return c == ClassEmpty || c == ClassGarbage
}

// Tier is a model class. Strong is priced above Cheap.
type Tier string

const (
	TierCheap  Tier = "cheap"
	TierStrong Tier = "strong"
)

// Tiers lists every tier in ascending price order.
var Tiers = []Tier{TierCheap, TierStrong}
