// Package config loads the tuning knobs and optional preset overrides
// capgen needs beyond its CLI flags: model server URLs, connection pool
// sizes, VAD thresholds, and LLM provider URLs and models. A YAML sidecar file is
// read once at startup; any read or parse failure falls back to defaults
// rather than failing startup.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/capgen-ai/capgen/internal/preset"
)

// Tuning holds the engine and pipeline knobs a deployment might need to
// override.
type Tuning struct {
	ASRPoolSize          int     `yaml:"asr_pool_size"`
	LLMPoolSize          int     `yaml:"llm_pool_size"`
	LLMMaxTokens         int     `yaml:"llm_max_tokens"`
	VADSpeechThresholdDB float64 `yaml:"vad_speech_threshold_db"`
	PatchThreshold       float64 `yaml:"patch_threshold"`
	OpenAIURL            string  `yaml:"openai_url"`
	OpenAIModel          string  `yaml:"openai_model"`
	AnthropicURL         string  `yaml:"anthropic_url"`
	AnthropicModel       string  `yaml:"anthropic_model"`
	OllamaModel          string  `yaml:"ollama_model"`

	// Presets overrides DefaultTable entries by id; an id absent here keeps
	// its DefaultTable definition.
	Presets map[string]preset.Settings `yaml:"presets"`
}

// DefaultTuning returns values good enough to run without a config file.
func DefaultTuning() Tuning {
	return Tuning{
		ASRPoolSize:          50,
		LLMPoolSize:          50,
		LLMMaxTokens:         2048,
		VADSpeechThresholdDB: -30,
		PatchThreshold:       0.5,
		OpenAIURL:            "https://api.openai.com",
		OpenAIModel:          "gpt-4.1-nano",
		AnthropicURL:         "https://api.anthropic.com",
		AnthropicModel:       "claude-sonnet-4-5",
		OllamaModel:          "llama3.2:3b",
	}
}

// Load reads a YAML tuning file at path if present, otherwise returns
// DefaultTuning unchanged. A malformed file logs a warning and falls back
// to defaults rather than failing startup.
func Load(path string) Tuning {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no config file, using defaults", "path", path)
		return t
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		slog.Warn("bad config file, using defaults", "path", path, "error", err)
		return DefaultTuning()
	}
	slog.Info("loaded config", "path", path)
	return t
}

// PresetTable merges Tuning's overrides on top of preset.DefaultTable: an
// override replaces its id's entry wholesale, every other id keeps its
// default.
func (t Tuning) PresetTable() map[string]preset.Settings {
	table := preset.DefaultTable()
	for id, override := range t.Presets {
		table[id] = override
	}
	return table
}

// Validate reports the first preset id override that doesn't correspond to
// one of the named default presets — a config typo is a startup error,
// not a silently-ignored override.
func (t Tuning) Validate() error {
	defaults := preset.DefaultTable()
	for id := range t.Presets {
		if _, ok := defaults[id]; !ok {
			return fmt.Errorf("config: unknown preset id %q", id)
		}
	}
	return nil
}
