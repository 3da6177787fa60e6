package vote

import "context"

// WeightFunc computes the fraud-adjusted weight of a user's vote on a
// question, in [0, 1]. The contract for all downstream score math is that
// weight is a multiplier, never a hard filter: a low-confidence vote still
// counts, just proportionally less.
type WeightFunc func(ctx context.Context, userID, questionID string, deviceRiskScore float64) float64

// ConstantWeight is the default weighting: every vote counts fully. A risk
// model can replace it without touching the ledger or the ranking math.
func ConstantWeight(ctx context.Context, userID, questionID string, deviceRiskScore float64) float64 {
	return 1.0
}
