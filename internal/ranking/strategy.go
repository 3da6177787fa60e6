// Package ranking computes question rank scores and the quota-aware top-N
// selection that balances popularity against viewpoint diversity.
package ranking

import (
	"github.com/opencivics/hustings/internal/vote"
)

// ScoreStrategy turns a question's live votes into a rank score. The
// default is a flat weighted net-vote sum; time-decay or Wilson-interval
// variants can be substituted here without touching quota selection.
type ScoreStrategy interface {
	Name() string
	Score(votes []*vote.Vote) float64
}

// WeightedNet is the default strategy: the sum of value*weight over live
// votes. No recency decay and no smoothing, so the score is trivially
// auditable against the stored vote set.
type WeightedNet struct{}

// Name identifies the strategy in logs and calibration files.
func (WeightedNet) Name() string { return "weighted_net" }

// Score sums value*weight over the votes.
func (WeightedNet) Score(votes []*vote.Vote) float64 {
	var sum float64
	for _, v := range votes {
		sum += float64(v.Value) * v.Weight
	}
	return sum
}
