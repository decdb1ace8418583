package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/capgen-ai/capgen/internal/preset"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	tn := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	want := DefaultTuning()
	if tn.ASRPoolSize != want.ASRPoolSize || tn.OllamaModel != want.OllamaModel {
		t.Errorf("Load() for missing file = %+v, want defaults %+v", tn, want)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capgen.yaml")
	content := "asr_pool_size: 10\nollama_model: custom-model\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	tn := Load(path)
	if tn.ASRPoolSize != 10 {
		t.Errorf("ASRPoolSize = %d, want 10", tn.ASRPoolSize)
	}
	if tn.OllamaModel != "custom-model" {
		t.Errorf("OllamaModel = %q, want custom-model", tn.OllamaModel)
	}
	if tn.LLMMaxTokens != DefaultTuning().LLMMaxTokens {
		t.Errorf("unspecified field LLMMaxTokens changed: %d", tn.LLMMaxTokens)
	}
}

func TestLoadMalformedFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("not: valid: yaml: at: all:"), 0o644); err != nil {
		t.Fatal(err)
	}
	tn := Load(path)
	if tn.ASRPoolSize != DefaultTuning().ASRPoolSize {
		t.Errorf("malformed config should fall back to defaults, got %+v", tn)
	}
}

func TestPresetTableLayersOverridesOntoDefaults(t *testing.T) {
	tn := DefaultTuning()
	tn.Presets = map[string]preset.Settings{
		"preset1": {ID: "preset1", PrimaryASR: true, SecondaryPatch: preset.SecondaryOff},
	}
	table := tn.PresetTable()
	if _, ok := table["default"]; !ok {
		t.Error("PresetTable() should still contain the built-in default preset")
	}
	if table["preset1"].SecondaryPatch != preset.SecondaryOff {
		t.Errorf("override of preset1 was not applied, got %+v", table["preset1"])
	}
}

func TestValidateAcceptsEmptyOverrides(t *testing.T) {
	tn := DefaultTuning()
	tn.Presets = nil
	if err := tn.Validate(); err != nil {
		t.Errorf("empty overrides should validate, got %v", err)
	}
}

func TestValidateRejectsUnknownPresetID(t *testing.T) {
	tn := DefaultTuning()
	tn.Presets = map[string]preset.Settings{"not-a-real-preset": {}}
	if err := tn.Validate(); err == nil {
		t.Error("expected Validate() to reject an unknown preset id")
	}
}
