package fraud

import (
	"context"
	"log/slog"
	"time"
)

// ScorerConfig configures the vote weight scorer.
type ScorerConfig struct {
	// RiskAttenuation is how much a maximal device risk score reduces the
	// weight. 0.5 means a risk score of 1.0 halves the vote.
	RiskAttenuation float64
	// BurstWindow is the sliding window for burst detection.
	BurstWindow time.Duration
	// BurstThreshold is how many votes inside the window trigger the penalty.
	BurstThreshold int
	// BurstPenalty multiplies the weight when a burst is detected.
	BurstPenalty float64
	// MinWeight is the floor: no vote drops below this. Keeping it above
	// zero preserves the multiplier-not-filter contract.
	MinWeight float64
	// Logger for scoring decisions. Defaults to slog.Default().
	Logger *slog.Logger
	// Metrics for recording scoring outcomes. May be nil.
	Metrics *Metrics
}

// Default scorer parameters.
const (
	DefaultRiskAttenuation = 0.5
	DefaultBurstWindow     = time.Minute
	DefaultBurstThreshold  = 10
	DefaultBurstPenalty    = 0.5
	DefaultMinWeight       = 0.1
)

// Scorer computes fraud-adjusted vote weights from device risk and recent
// voting activity. It satisfies the vote ledger's weight hook.
type Scorer struct {
	config   ScorerConfig
	activity *ActivityTracker
}

// NewScorer creates a vote weight scorer. Zero-value config fields fall
// back to the package defaults.
func NewScorer(config ScorerConfig) *Scorer {
	if config.RiskAttenuation <= 0 {
		config.RiskAttenuation = DefaultRiskAttenuation
	}
	if config.BurstWindow <= 0 {
		config.BurstWindow = DefaultBurstWindow
	}
	if config.BurstThreshold <= 0 {
		config.BurstThreshold = DefaultBurstThreshold
	}
	if config.BurstPenalty <= 0 {
		config.BurstPenalty = DefaultBurstPenalty
	}
	if config.MinWeight <= 0 {
		config.MinWeight = DefaultMinWeight
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Scorer{
		config:   config,
		activity: NewActivityTracker(),
	}
}

// Weight computes the weight of a user's vote in [MinWeight, 1.0]. The
// device risk score attenuates the weight linearly, and burst voting
// applies a further penalty. When scoring is disabled the weight is 1.0.
func (s *Scorer) Weight(ctx context.Context, userID, questionID string, deviceRiskScore float64) float64 {
	now := time.Now()
	s.activity.RecordVote(userID, now, s.config.BurstWindow)

	if !IsScoringEnabled() {
		return 1.0
	}

	risk := deviceRiskScore
	if risk < 0 {
		risk = 0
	}
	if risk > 1 {
		risk = 1
	}

	weight := 1.0 - s.config.RiskAttenuation*risk

	burst := s.activity.CountSince(userID, now.Add(-s.config.BurstWindow)) >= s.config.BurstThreshold
	if burst {
		weight *= s.config.BurstPenalty
		if s.config.Metrics != nil {
			s.config.Metrics.IncBurstPenalty()
		}
		s.config.Logger.Warn("burst voting detected",
			"user_id", userID,
			"question_id", questionID,
			"window", s.config.BurstWindow)
	}

	if weight < s.config.MinWeight {
		weight = s.config.MinWeight
	}
	if s.config.Metrics != nil {
		s.config.Metrics.ObserveWeight(weight)
	}
	return weight
}
