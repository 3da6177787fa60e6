package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Selection holds the knobs for top-list assembly.
type Selection struct {
	TopCount      int `json:"top_count"`      // Size of the top list (default: 100)
	ClusterCap    int `json:"cluster_cap"`    // Max questions per tag group in the main fill (default: 5)
	MinoritySlots int `json:"minority_slots"` // Seats reserved for minority concerns (default: 10)
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version   string    `json:"version"`   // Config version for future compatibility
	Strategy  string    `json:"strategy"`  // Score strategy name (informational)
	Selection Selection `json:"selection"` // Top-list selection knobs
}

// DefaultSelection returns the default selection configuration.
//
// The defaults size the list for a typical contest: 100 questions total,
// at most 5 per tag group outside the reserved seats, and 10 seats held
// for concerns whose tags are absent from the popular portion.
func DefaultSelection() Selection {
	return Selection{
		TopCount:      100,
		ClusterCap:    5,
		MinoritySlots: 10,
	}
}

// LoadCalibration loads selection knobs from a JSON calibration file.
// Partial configurations are merged with defaults for graceful degradation;
// on any read or parse error the defaults are returned alongside the error.
func LoadCalibration(filePath string) (Selection, error) {
	if filePath == "" {
		return DefaultSelection(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultSelection(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultSelection(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultSelection()
	merged := MergeCalibration(defaults, config.Selection)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration merges override knobs into the base configuration.
// Only positive values from the override are applied, which allows partial
// overrides in the calibration file. MinoritySlots is clamped to TopCount
// so the reserved portion can never exceed the list itself.
func MergeCalibration(base Selection, override Selection) Selection {
	result := base

	if override.TopCount > 0 {
		result.TopCount = override.TopCount
	}
	if override.ClusterCap > 0 {
		result.ClusterCap = override.ClusterCap
	}
	if override.MinoritySlots > 0 {
		result.MinoritySlots = override.MinoritySlots
	}

	if result.MinoritySlots > result.TopCount {
		result.MinoritySlots = result.TopCount
	}

	return result
}

// logCalibrationOverrides logs which knobs were overridden from defaults.
func logCalibrationOverrides(defaults, loaded Selection) {
	var overrides []string

	if loaded.TopCount != defaults.TopCount {
		overrides = append(overrides, fmt.Sprintf("selection.top_count: %d -> %d",
			defaults.TopCount, loaded.TopCount))
	}
	if loaded.ClusterCap != defaults.ClusterCap {
		overrides = append(overrides, fmt.Sprintf("selection.cluster_cap: %d -> %d",
			defaults.ClusterCap, loaded.ClusterCap))
	}
	if loaded.MinoritySlots != defaults.MinoritySlots {
		overrides = append(overrides, fmt.Sprintf("selection.minority_slots: %d -> %d",
			defaults.MinoritySlots, loaded.MinoritySlots))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
