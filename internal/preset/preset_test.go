package preset

import "testing"

func TestDefaultTableHasSixPresets(t *testing.T) {
	table := DefaultTable()
	want := []string{"default", "preset1", "preset2", "preset3", "preset4", "preset5"}
	if len(table) != len(want) {
		t.Fatalf("expected %d presets, got %d", len(want), len(table))
	}
	for _, id := range want {
		s, ok := table[id]
		if !ok {
			t.Fatalf("missing preset %q", id)
		}
		if s.ID != id {
			t.Errorf("preset %q: ID field is %q", id, s.ID)
		}
		if !s.PrimaryASR {
			t.Errorf("preset %q: PrimaryASR should always be true", id)
		}
	}
}

func TestDefaultPresetRunsNothingExtra(t *testing.T) {
	s := DefaultTable()["default"]
	if s.RunsSecondaryPatch() || s.RunsLLMProof() || s.RunsLLMTrans() {
		t.Errorf("default preset should run no enhancement stages, got %+v", s)
	}
}

func TestPreset5RunsEverything(t *testing.T) {
	s := DefaultTable()["preset5"]
	if !s.RunsSecondaryPatch() {
		t.Error("preset5 should run secondary patch")
	}
	if !s.RunsLLMProof() {
		t.Error("preset5 should run llm proof")
	}
	if !s.RunsLLMTrans() {
		t.Error("preset5 should run llm translation")
	}
}

func TestRunsSecondaryPatchModes(t *testing.T) {
	cases := []struct {
		mode SecondaryMode
		want bool
	}{
		{SecondaryOff, false},
		{SecondaryLowConfOnly, true},
		{SecondaryOn, true},
	}
	for _, c := range cases {
		s := Settings{SecondaryPatch: c.mode}
		if got := s.RunsSecondaryPatch(); got != c.want {
			t.Errorf("RunsSecondaryPatch() for mode %q = %v, want %v", c.mode, got, c.want)
		}
	}
}

func TestPhaseWeightsMatchPresetTotals(t *testing.T) {
	want := map[string]float64{
		"default": 80, "preset1": 85, "preset2": 90,
		"preset3": 95, "preset4": 95, "preset5": 92,
	}
	for id, s := range DefaultTable() {
		w := s.Weights
		sum := w.Extract + w.BGMDetect + w.Demucs + w.VAD + w.PrimaryASR +
			w.SecondaryPatch + w.LLMProof + w.LLMTrans + w.SRT
		if sum != want[id] {
			t.Errorf("preset %q: phase weights sum to %v, want %v", id, sum, want[id])
		}
	}
}
