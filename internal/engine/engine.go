// Package engine defines the uniform contracts for the model backends the
// pipeline treats as external collaborators: VAD, Separator, PrimaryASR,
// SecondaryASR, LLM. Concrete adapters are thin HTTP sidecar clients built
// on a pooled client and multipart/raw-float32 wire formats.
//
// Adapters are never called concurrently for the same job — the runner
// calls them sequentially — so none of them needs internal locking beyond
// what modelmanager.Manager already serializes.
package engine

import (
	"context"

	"github.com/capgen-ai/capgen/internal/domain"
)

// VAD segments raw audio into speech-bounded intervals.
type VAD interface {
	Segment(ctx context.Context, samples []float32, sampleRate int) ([]domain.VADSegment, error)
}

// Separator re-renders an audio slice with a voice-prominent mix at the
// given tier. Input length and sample rate are preserved.
type Separator interface {
	Separate(ctx context.Context, samples []float32, sampleRate int, tier domain.SeparatorTier) ([]float32, error)
}

// PrimaryASRResult is the first-pass transcription of one chunk.
type PrimaryASRResult struct {
	Text          string
	TextClean     string
	AvgConfidence float64
	Words         []domain.WordTimestamp
	EventTag      string // ambient-audio label, e.g. "BGM", "noise"; "" if none
	Language      string
}

// PrimaryASR is the fast first-pass engine; it defines the authoritative
// time axis for a chunk.
type PrimaryASR interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, languageHint string) (*PrimaryASRResult, error)
}

// SecondaryASRResult omits timestamps by construction: the field simply
// doesn't exist, since the secondary pass only ever patches text.
type SecondaryASRResult struct {
	Text          string
	AvgConfidence float64
}

// SecondaryASR re-transcribes a low-confidence sentence's audio slice for
// text only; its own timestamps are never surfaced.
type SecondaryASR interface {
	TranscribeTextOnly(ctx context.Context, samples []float32, sampleRate int, contextPrompt, languageHint string) (*SecondaryASRResult, error)
}

// ProofResult is the LLM's corrected text plus a perplexity estimate.
type ProofResult struct {
	Text       string
	Perplexity float64
}

// TranslateResult is the LLM's translation plus the provider's own
// confidence estimate.
type TranslateResult struct {
	Text       string
	Confidence float64
}

// LLM performs post-enhancement proofreading and translation.
type LLM interface {
	Proof(ctx context.Context, text string, context []string) (*ProofResult, error)
	Translate(ctx context.Context, text, targetLang string, context []string) (*TranslateResult, error)
}
