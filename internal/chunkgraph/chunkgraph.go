// Package chunkgraph is an in-memory, runner-private list of per-chunk
// audio state: each chunk's original and currently-separated audio,
// separation tier, and bounded retry budget.
package chunkgraph

import "github.com/capgen-ai/capgen/internal/domain"

const retryCap = 1

// State is one chunk's mutable separation state. original is set once at
// construction and never reassigned; current is replaced by each
// successful separation. Both are stored behind unexported fields so
// callers can't violate the "original never overwritten" invariant by
// direct field assignment — Upgrade is the only way current changes.
type State struct {
	ChunkIndex      int
	StartSec        float64
	EndSec          float64
	original        []float32
	current         []float32
	SeparationLevel domain.SeparatorTier
	FuseRetryCount  int
}

func (s *State) OriginalAudio() []float32 { return s.original }
func (s *State) CurrentAudio() []float32  { return s.current }

// CanUpgrade reports whether this chunk may receive another separation
// upgrade: at most one per chunk's lifetime, and only if it hasn't
// already reached the heavy tier.
func (s *State) CanUpgrade() bool {
	return s.FuseRetryCount < retryCap && s.SeparationLevel != domain.SeparatorHeavy
}

// Upgrade moves current to the result of separating original at the next
// tier, incrementing the retry budget. Callers (the pipeline runner) are
// responsible for actually invoking the Separator engine and passing its
// output here — this type only tracks state, it doesn't call engines.
func (s *State) Upgrade(tier domain.SeparatorTier, separated []float32) {
	s.current = separated
	s.SeparationLevel = tier
	s.FuseRetryCount++
}

// SetPreSeparated records the result of the pipeline's pre-separate stage,
// which runs once before the transcribe/fuse loop and isn't itself a
// retry.
func (s *State) SetPreSeparated(tier domain.SeparatorTier, separated []float32) {
	s.current = separated
	s.SeparationLevel = tier
}

// Graph holds every chunk for one job, keyed by chunk index order. It is
// private to the pipeline runner; no other package should construct or
// mutate it directly.
type Graph struct {
	states []*State
}

// New initializes the graph from VAD segments and the full-job original
// audio, slicing out each chunk's sample range into its own immutable
// original buffer.
func New(segments []domain.VADSegment, fullAudio []float32, sampleRate int) *Graph {
	states := make([]*State, len(segments))
	for i, seg := range segments {
		startIdx := int(seg.StartSec * float64(sampleRate))
		endIdx := int(seg.EndSec * float64(sampleRate))
		if startIdx < 0 {
			startIdx = 0
		}
		if endIdx > len(fullAudio) {
			endIdx = len(fullAudio)
		}
		if endIdx < startIdx {
			endIdx = startIdx
		}

		original := make([]float32, endIdx-startIdx)
		copy(original, fullAudio[startIdx:endIdx])

		current := make([]float32, len(original))
		copy(current, original)

		states[i] = &State{
			ChunkIndex:      seg.Index,
			StartSec:        seg.StartSec,
			EndSec:          seg.EndSec,
			original:        original,
			current:         current,
			SeparationLevel: domain.SeparatorNone,
			FuseRetryCount:  0,
		}
	}
	return &Graph{states: states}
}

func (g *Graph) All() []*State { return g.states }

func (g *Graph) At(chunkIndex int) *State {
	for _, s := range g.states {
		if s.ChunkIndex == chunkIndex {
			return s
		}
	}
	return nil
}

func (g *Graph) Len() int { return len(g.states) }
