package fraud

import "sync"

// scoringFlag holds the cached feature flag state for fraud-weighted votes.
var scoringFlag struct {
	mu      sync.RWMutex
	enabled *bool
}

// SetScoringEnabled sets the fraud scoring feature flag state.
// This should be called once during application initialization.
// Thread-safe via mutex.
func SetScoringEnabled(enabled bool) {
	scoringFlag.mu.Lock()
	defer scoringFlag.mu.Unlock()
	scoringFlag.enabled = &enabled
}

// IsScoringEnabled returns whether fraud-weighted voting is enabled.
// Returns false if not initialized (safe default: every vote counts fully).
// Thread-safe via mutex.
func IsScoringEnabled() bool {
	scoringFlag.mu.RLock()
	defer scoringFlag.mu.RUnlock()
	if scoringFlag.enabled == nil {
		return false
	}
	return *scoringFlag.enabled
}
