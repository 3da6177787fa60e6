package fraud

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestScorer_DisabledReturnsFullWeight(t *testing.T) {
	defer SetScoringEnabled(false)
	SetScoringEnabled(false)

	s := NewScorer(ScorerConfig{})
	if got := s.Weight(context.Background(), "user-1", "q-1", 1.0); got != 1.0 {
		t.Errorf("Weight() with scoring disabled = %v, want 1.0", got)
	}
}

func TestScorer_RiskAttenuation(t *testing.T) {
	defer SetScoringEnabled(false)
	SetScoringEnabled(true)

	s := NewScorer(ScorerConfig{RiskAttenuation: 0.5})

	tests := []struct {
		name string
		risk float64
		want float64
	}{
		{name: "no risk", risk: 0.0, want: 1.0},
		{name: "half risk", risk: 0.5, want: 0.75},
		{name: "full risk", risk: 1.0, want: 0.5},
		{name: "negative risk clamped", risk: -1.0, want: 1.0},
		{name: "over one clamped", risk: 2.0, want: 0.5},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Distinct users so burst detection never kicks in.
			userID := "user-" + string(rune('a'+i))
			got := s.Weight(context.Background(), userID, "q-1", tt.risk)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Weight(risk=%v) = %v, want %v", tt.risk, got, tt.want)
			}
		})
	}
}

func TestScorer_BurstPenalty(t *testing.T) {
	defer SetScoringEnabled(false)
	SetScoringEnabled(true)

	s := NewScorer(ScorerConfig{
		RiskAttenuation: 0.5,
		BurstWindow:     time.Minute,
		BurstThreshold:  3,
		BurstPenalty:    0.5,
		MinWeight:       0.1,
	})

	ctx := context.Background()
	w1 := s.Weight(ctx, "rapid", "q-1", 0)
	w2 := s.Weight(ctx, "rapid", "q-2", 0)
	if w1 != 1.0 || w2 != 1.0 {
		t.Fatalf("weights before threshold = %v, %v, want 1.0", w1, w2)
	}

	// Third vote inside the window crosses the threshold.
	w3 := s.Weight(ctx, "rapid", "q-3", 0)
	if w3 != 0.5 {
		t.Errorf("burst weight = %v, want 0.5", w3)
	}
}

func TestScorer_MinWeightFloor(t *testing.T) {
	defer SetScoringEnabled(false)
	SetScoringEnabled(true)

	s := NewScorer(ScorerConfig{
		RiskAttenuation: 1.0,
		BurstWindow:     time.Minute,
		BurstThreshold:  1,
		BurstPenalty:    0.01,
		MinWeight:       0.1,
	})

	// Full risk plus burst penalty would go below the floor.
	got := s.Weight(context.Background(), "user-1", "q-1", 1.0)
	if got != 0.1 {
		t.Errorf("Weight() = %v, want floor 0.1", got)
	}
}

func TestScorer_Defaults(t *testing.T) {
	s := NewScorer(ScorerConfig{})
	if s.config.RiskAttenuation != DefaultRiskAttenuation {
		t.Errorf("RiskAttenuation = %v, want %v", s.config.RiskAttenuation, DefaultRiskAttenuation)
	}
	if s.config.BurstWindow != DefaultBurstWindow {
		t.Errorf("BurstWindow = %v, want %v", s.config.BurstWindow, DefaultBurstWindow)
	}
	if s.config.BurstThreshold != DefaultBurstThreshold {
		t.Errorf("BurstThreshold = %v, want %v", s.config.BurstThreshold, DefaultBurstThreshold)
	}
	if s.config.BurstPenalty != DefaultBurstPenalty {
		t.Errorf("BurstPenalty = %v, want %v", s.config.BurstPenalty, DefaultBurstPenalty)
	}
	if s.config.MinWeight != DefaultMinWeight {
		t.Errorf("MinWeight = %v, want %v", s.config.MinWeight, DefaultMinWeight)
	}
}

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	collectors := m.Collectors()
	if len(collectors) != 2 {
		t.Fatalf("Collectors() returned %d collectors, want 2", len(collectors))
	}
}
