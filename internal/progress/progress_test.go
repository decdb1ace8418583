package progress

import (
	"testing"

	"github.com/capgen-ai/capgen/internal/domain"
)

func evenWeights() PhaseWeights {
	return PhaseWeights{
		Extract: 10, BGMDetect: 10, Demucs: 10, VAD: 10, PrimaryASR: 40,
		SecondaryPatch: 0, LLMProof: 0, LLMTrans: 0, SRT: 20,
	}
}

func TestCompletePhaseAccumulatesWeight(t *testing.T) {
	tr := NewTracker("job-1", evenWeights(), domain.NopEmitter{})

	tr.CompletePhase(domain.PhaseExtract)
	if got := tr.Percent(); got != 10 {
		t.Errorf("Percent() after completing extract = %v, want 10", got)
	}

	tr.CompletePhase(domain.PhaseBGMDetect)
	if got := tr.Percent(); got != 20 {
		t.Errorf("Percent() after completing bgm_detect = %v, want 20", got)
	}
}

func TestStartPhaseWithItemsContributesPartialWeight(t *testing.T) {
	tr := NewTracker("job-1", evenWeights(), domain.NopEmitter{})
	tr.StartPhase(domain.PhasePrimaryASR, 4)
	tr.UpdateItems(domain.PhasePrimaryASR, 2, "")

	// primary_asr has weight 40, half its items done contributes 20.
	if got := tr.Percent(); got != 20 {
		t.Errorf("Percent() with 2/4 items on a weight-40 phase = %v, want 20", got)
	}
}

func TestPercentIsMonotonic(t *testing.T) {
	tr := NewTracker("job-1", evenWeights(), domain.NopEmitter{})
	tr.StartPhase(domain.PhasePrimaryASR, 4)
	tr.UpdateItems(domain.PhasePrimaryASR, 4, "")
	high := tr.Percent()

	// A stale, out-of-order update reporting fewer completed items must not
	// move the reported percent backwards.
	tr.UpdateItems(domain.PhasePrimaryASR, 1, "")
	if got := tr.Percent(); got < high {
		t.Errorf("Percent() moved backwards from %v to %v on a stale update", high, got)
	}
}

func TestStartingAlreadyCompletedPhaseIsNoOp(t *testing.T) {
	tr := NewTracker("job-1", evenWeights(), domain.NopEmitter{})
	tr.CompletePhase(domain.PhaseExtract)
	before := tr.Percent()

	tr.StartPhase(domain.PhaseExtract, 10)
	tr.UpdateItems(domain.PhaseExtract, 1, "re-entry")
	if got := tr.Percent(); got != before {
		t.Errorf("re-starting a completed phase changed Percent() from %v to %v", before, got)
	}
}

func TestFullCompletionReachesHundred(t *testing.T) {
	tr := NewTracker("job-1", evenWeights(), domain.NopEmitter{})
	for _, phase := range []string{
		domain.PhaseExtract, domain.PhaseBGMDetect, domain.PhaseDemucs, domain.PhaseVAD,
		domain.PhasePrimaryASR, domain.PhaseSecondaryPatch, domain.PhaseLLMProof,
		domain.PhaseLLMTrans, domain.PhaseSRT,
	} {
		tr.CompletePhase(phase)
	}
	if got := tr.Percent(); got != 100 {
		t.Errorf("Percent() after completing every phase = %v, want 100", got)
	}
}
