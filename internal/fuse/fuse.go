// Package fuse decides, after each transcription attempt, whether to
// accept the result or re-separate and retry on a chunk suspected of
// carrying background music or noise.
package fuse

import (
	"github.com/capgen-ai/capgen/internal/chunkgraph"
	"github.com/capgen-ai/capgen/internal/domain"
)

// Verdict is the Fuse Controller's decision for one transcribe attempt.
type Verdict string

const (
	Accept            Verdict = "ACCEPT"
	UpgradeSeparation Verdict = "UPGRADE_SEPARATION"
)

// Decision is decide()'s full return value; NextLevel is only meaningful
// when Verdict is UpgradeSeparation.
type Decision struct {
	Verdict   Verdict
	NextLevel domain.SeparatorTier
}

// Config holds decide()'s tunables.
type Config struct {
	ConfidenceThreshold float64
}

func DefaultConfig() Config {
	return Config{ConfidenceThreshold: 0.5}
}

// bgmNoiseTags is the ambient-audio event tag set that makes a low
// confidence score worth addressing by re-separating instead of deferring
// to post-processing.
var bgmNoiseTags = map[string]bool{
	"BGM":   true,
	"noise": true,
}

// Decide applies four ordered rules: accept on high confidence, accept if
// the event tag isn't BGM/noise, accept if the chunk has no upgrade tier
// left, otherwise upgrade separation and retry.
func Decide(cfg Config, state *chunkgraph.State, confidence float64, eventTag string) Decision {
	if confidence >= cfg.ConfidenceThreshold {
		return Decision{Verdict: Accept}
	}
	if !bgmNoiseTags[eventTag] {
		return Decision{Verdict: Accept}
	}
	if !state.CanUpgrade() {
		return Decision{Verdict: Accept}
	}
	return Decision{Verdict: UpgradeSeparation, NextLevel: domain.NextTier(state.SeparationLevel)}
}
