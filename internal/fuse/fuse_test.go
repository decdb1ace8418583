package fuse

import (
	"testing"

	"github.com/capgen-ai/capgen/internal/chunkgraph"
	"github.com/capgen-ai/capgen/internal/domain"
)

func newState(level domain.SeparatorTier, retries int) *chunkgraph.State {
	g := chunkgraph.New([]domain.VADSegment{{StartSec: 0, EndSec: 1}}, make([]float32, 16000), 16000)
	s := g.At(0)
	if level != domain.SeparatorNone {
		s.SetPreSeparated(level, nil)
	}
	for i := 0; i < retries; i++ {
		s.Upgrade(domain.NextTier(s.SeparationLevel), nil)
	}
	return s
}

func TestDecideAcceptsHighConfidence(t *testing.T) {
	state := newState(domain.SeparatorNone, 0)
	d := Decide(DefaultConfig(), state, 0.9, "BGM")
	if d.Verdict != Accept {
		t.Errorf("Verdict = %v, want Accept", d.Verdict)
	}
}

func TestDecideAcceptsLowConfidenceWithoutBGMOrNoiseTag(t *testing.T) {
	state := newState(domain.SeparatorNone, 0)
	d := Decide(DefaultConfig(), state, 0.1, "speech")
	if d.Verdict != Accept {
		t.Errorf("Verdict = %v, want Accept for a non-BGM/noise tag", d.Verdict)
	}
}

func TestDecideUpgradesOnLowConfidenceBGM(t *testing.T) {
	state := newState(domain.SeparatorNone, 0)
	d := Decide(DefaultConfig(), state, 0.1, "BGM")
	if d.Verdict != UpgradeSeparation {
		t.Fatalf("Verdict = %v, want UpgradeSeparation", d.Verdict)
	}
	if d.NextLevel != domain.SeparatorLight {
		t.Errorf("NextLevel = %v, want light", d.NextLevel)
	}
}

func TestDecideAcceptsWhenRetryBudgetExhausted(t *testing.T) {
	state := newState(domain.SeparatorNone, 1)
	d := Decide(DefaultConfig(), state, 0.1, "noise")
	if d.Verdict != Accept {
		t.Errorf("Verdict = %v, want Accept once the chunk's retry budget is spent", d.Verdict)
	}
}

func TestDecideAcceptsAtHeavyTier(t *testing.T) {
	state := newState(domain.SeparatorHeavy, 0)
	d := Decide(DefaultConfig(), state, 0.1, "BGM")
	if d.Verdict != Accept {
		t.Errorf("Verdict = %v, want Accept once a chunk is already at the heavy tier", d.Verdict)
	}
}
