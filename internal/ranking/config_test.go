package ranking

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCalibration_Empty(t *testing.T) {
	sel, err := LoadCalibration("")
	if err != nil {
		t.Fatalf("LoadCalibration(\"\") error = %v", err)
	}
	if sel != DefaultSelection() {
		t.Errorf("LoadCalibration(\"\") = %+v, want defaults", sel)
	}
}

func TestLoadCalibration_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	content := `{"version":"1","strategy":"weighted_net","selection":{"top_count":50,"minority_slots":5}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sel, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("LoadCalibration() error = %v", err)
	}
	if sel.TopCount != 50 || sel.MinoritySlots != 5 {
		t.Errorf("overrides not applied: %+v", sel)
	}
	if sel.ClusterCap != DefaultSelection().ClusterCap {
		t.Errorf("unset knob should keep its default, got %d", sel.ClusterCap)
	}
}

func TestLoadCalibration_MissingFileFallsBack(t *testing.T) {
	sel, err := LoadCalibration(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Error("LoadCalibration() of missing file should report the error")
	}
	if sel != DefaultSelection() {
		t.Errorf("fallback = %+v, want defaults", sel)
	}
}

func TestLoadCalibration_MalformedFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sel, err := LoadCalibration(path)
	if err == nil {
		t.Error("LoadCalibration() of malformed file should report the error")
	}
	if sel != DefaultSelection() {
		t.Errorf("fallback = %+v, want defaults", sel)
	}
}

func TestMergeCalibration_ClampsMinoritySlots(t *testing.T) {
	got := MergeCalibration(DefaultSelection(), Selection{TopCount: 10, MinoritySlots: 50})
	if got.MinoritySlots != got.TopCount {
		t.Errorf("minority slots = %d, want clamped to top count %d", got.MinoritySlots, got.TopCount)
	}
}

func TestMergeCalibration_IgnoresNonPositive(t *testing.T) {
	got := MergeCalibration(DefaultSelection(), Selection{TopCount: -1, ClusterCap: 0})
	if got != DefaultSelection() {
		t.Errorf("non-positive overrides should be ignored, got %+v", got)
	}
}
