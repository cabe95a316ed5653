package detector

import "testing"

func TestChooseWorkgroup(t *testing.T) {
	limits := Limits{MaxComputeWorkgroupSizeX: 128, MaxComputeInvocationsPerWorkgroup: 256}

	if got := ChooseWorkgroup(limits, ""); got != 128 {
		t.Errorf("Expected 128, got %d", got)
	}
	if got := ChooseWorkgroup(limits, "32"); got != 32 {
		t.Errorf("Expected override 32, got %d", got)
	}
	if got := ChooseWorkgroup(limits, "512"); got != 128 {
		t.Errorf("Oversized override should be ignored, got %d", got)
	}
	if got := ChooseWorkgroup(limits, "abc"); got != 128 {
		t.Errorf("Non-numeric override should be ignored, got %d", got)
	}
	if got := ChooseWorkgroup(Limits{}, ""); got != 1 {
		t.Errorf("Expected fallback 1 for empty limits, got %d", got)
	}
}
