// Package preset defines the fixed per-job preset table: which
// enhancement stages a preset turns on, and the progress weights that go
// with it. internal/config loads an optional YAML override file on top of
// DefaultTable; absent that file, DefaultTable is authoritative.
package preset

import "github.com/capgen-ai/capgen/internal/progress"

// SecondaryMode controls whether/which sentences get a SecondaryASR
// text-only patch pass.
type SecondaryMode string

const (
	SecondaryOff         SecondaryMode = "off"
	SecondaryLowConfOnly SecondaryMode = "low_conf_only"
	SecondaryOn          SecondaryMode = "on"
)

// ProofMode controls the LLM proofreading pass's coverage.
type ProofMode string

const (
	ProofOff    ProofMode = "off"
	ProofSparse ProofMode = "sparse"
	ProofFull   ProofMode = "full"
)

// TransMode controls the LLM translation pass's coverage.
type TransMode string

const (
	TransOff     TransMode = "off"
	TransPartial TransMode = "partial"
	TransFull    TransMode = "full"
)

// Settings is one preset's full configuration: which stages run, and the
// progress weights that describe how much of the job each stage accounts
// for.
type Settings struct {
	ID             string
	PrimaryASR     bool
	SecondaryPatch SecondaryMode
	LLMProof       ProofMode
	LLMTrans       TransMode
	Weights        progress.PhaseWeights
}

// RunsSecondaryPatch reports whether this preset's SecondaryPatch mode
// should run SecondaryASR at all. The caller still gates each individual
// sentence against the patch confidence threshold regardless of mode;
// "on" and "low_conf_only" differ only insofar as a future preset could
// allow patching everything, which no current preset does.
func (s Settings) RunsSecondaryPatch() bool {
	return s.SecondaryPatch == SecondaryOn || s.SecondaryPatch == SecondaryLowConfOnly
}

func (s Settings) RunsLLMProof() bool {
	return s.LLMProof != ProofOff
}

func (s Settings) RunsLLMTrans() bool {
	return s.LLMTrans != TransOff
}

// DefaultTable is the built-in preset table.
func DefaultTable() map[string]Settings {
	return map[string]Settings{
		"default": {
			ID: "default", PrimaryASR: true,
			SecondaryPatch: SecondaryOff, LLMProof: ProofOff, LLMTrans: TransOff,
			Weights: progress.PhaseWeights{
				Extract: 5, BGMDetect: 2, Demucs: 8, VAD: 5,
				PrimaryASR: 50, SecondaryPatch: 0, LLMProof: 0, LLMTrans: 0, SRT: 10,
			},
		},
		"preset1": {
			ID: "preset1", PrimaryASR: true,
			SecondaryPatch: SecondaryLowConfOnly, LLMProof: ProofOff, LLMTrans: TransOff,
			Weights: progress.PhaseWeights{
				Extract: 5, BGMDetect: 2, Demucs: 8, VAD: 5,
				PrimaryASR: 35, SecondaryPatch: 20, LLMProof: 0, LLMTrans: 0, SRT: 10,
			},
		},
		"preset2": {
			ID: "preset2", PrimaryASR: true,
			SecondaryPatch: SecondaryOn, LLMProof: ProofSparse, LLMTrans: TransOff,
			Weights: progress.PhaseWeights{
				Extract: 5, BGMDetect: 2, Demucs: 8, VAD: 5,
				PrimaryASR: 30, SecondaryPatch: 15, LLMProof: 15, LLMTrans: 0, SRT: 10,
			},
		},
		"preset3": {
			ID: "preset3", PrimaryASR: true,
			SecondaryPatch: SecondaryOn, LLMProof: ProofFull, LLMTrans: TransOff,
			Weights: progress.PhaseWeights{
				Extract: 5, BGMDetect: 2, Demucs: 8, VAD: 5,
				PrimaryASR: 25, SecondaryPatch: 15, LLMProof: 25, LLMTrans: 0, SRT: 10,
			},
		},
		"preset4": {
			ID: "preset4", PrimaryASR: true,
			SecondaryPatch: SecondaryOn, LLMProof: ProofFull, LLMTrans: TransFull,
			Weights: progress.PhaseWeights{
				Extract: 5, BGMDetect: 2, Demucs: 8, VAD: 5,
				PrimaryASR: 20, SecondaryPatch: 10, LLMProof: 20, LLMTrans: 15, SRT: 10,
			},
		},
		"preset5": {
			ID: "preset5", PrimaryASR: true,
			SecondaryPatch: SecondaryOn, LLMProof: ProofFull, LLMTrans: TransPartial,
			Weights: progress.PhaseWeights{
				Extract: 5, BGMDetect: 2, Demucs: 8, VAD: 5,
				PrimaryASR: 22, SecondaryPatch: 12, LLMProof: 20, LLMTrans: 8, SRT: 10,
			},
		},
	}
}
