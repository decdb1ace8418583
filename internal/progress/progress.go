// Package progress implements a preset-weighted, multi-phase aggregator
// that coalesces rapid intra-phase updates into a fixed-cadence tick
// before publishing, using the same non-blocking, mutex-guarded update
// shape as internal/eventbus.
package progress

import (
	"sync"
	"time"

	"github.com/capgen-ai/capgen/internal/domain"
)

const defaultCoalesceTick = 50 * time.Millisecond

// PhaseWeights names every phase in its fixed pipeline order with its
// preset-assigned weight.
type PhaseWeights struct {
	Extract        float64
	BGMDetect      float64
	Demucs         float64
	VAD            float64
	PrimaryASR     float64
	SecondaryPatch float64
	LLMProof       float64
	LLMTrans       float64
	SRT            float64
}

func (w PhaseWeights) ordered() []struct {
	name   string
	weight float64
} {
	return []struct {
		name   string
		weight float64
	}{
		{domain.PhaseExtract, w.Extract},
		{domain.PhaseBGMDetect, w.BGMDetect},
		{domain.PhaseDemucs, w.Demucs},
		{domain.PhaseVAD, w.VAD},
		{domain.PhasePrimaryASR, w.PrimaryASR},
		{domain.PhaseSecondaryPatch, w.SecondaryPatch},
		{domain.PhaseLLMProof, w.LLMProof},
		{domain.PhaseLLMTrans, w.LLMTrans},
		{domain.PhaseSRT, w.SRT},
	}
}

func (w PhaseWeights) total() float64 {
	var sum float64
	for _, p := range w.ordered() {
		sum += p.weight
	}
	return sum
}

type phaseState struct {
	weight         float64
	totalItems     int
	completedItems int
	isActive       bool
	completed      bool
	message        string
}

// Tracker aggregates one job's phase progress and publishes progress.<phase>
// and progress.overall events, coalesced onto a fixed tick.
type Tracker struct {
	mu        sync.Mutex
	jobID     string
	weights   PhaseWeights
	totalW    float64
	phases    map[string]*phaseState
	order     []string
	emit      domain.Emitter
	tick      time.Duration
	dirty     bool
	lastPct   float64
	stopTimer func()
}

func NewTracker(jobID string, weights PhaseWeights, emit domain.Emitter) *Tracker {
	if emit == nil {
		emit = domain.NopEmitter{}
	}
	t := &Tracker{
		jobID:   jobID,
		weights: weights,
		totalW:  weights.total(),
		phases:  map[string]*phaseState{},
		emit:    emit,
		tick:    defaultCoalesceTick,
	}
	for _, p := range weights.ordered() {
		t.phases[p.name] = &phaseState{weight: p.weight}
		t.order = append(t.order, p.name)
	}
	return t
}

// StartPhase marks a phase active with a known item count. Phases only
// transition forward: starting an already-completed phase is a no-op.
func (t *Tracker) StartPhase(phase string, totalItems int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.phases[phase]
	if !ok || p.completed {
		return
	}
	p.isActive = true
	p.totalItems = totalItems
	p.completedItems = 0
	t.dirty = true
	t.publishLocked(phase)
}

// UpdateItems records progress within the active phase. Rapid calls are
// coalesced: only the latest value before each tick is published.
func (t *Tracker) UpdateItems(phase string, completedItems int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.phases[phase]
	if !ok || !p.isActive {
		return
	}
	p.completedItems = completedItems
	p.message = message
	t.dirty = true
	t.maybeFlushLocked(phase)
}

// CompletePhase finalizes a phase's weight contribution and publishes.
func (t *Tracker) CompletePhase(phase string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.phases[phase]
	if !ok {
		return
	}
	p.isActive = false
	p.completed = true
	if p.totalItems > 0 {
		p.completedItems = p.totalItems
	}
	t.publishLocked(phase)
}

// maybeFlushLocked coalesces updates onto defaultCoalesceTick: the first
// update since the last flush publishes immediately and starts a timer;
// updates arriving before the timer fires just update in-memory state and
// rely on the timer's eventual flush.
func (t *Tracker) maybeFlushLocked(phase string) {
	if t.stopTimer != nil {
		return // a flush is already scheduled
	}
	t.publishLocked(phase)

	timer := time.AfterFunc(t.tick, func() {
		t.mu.Lock()
		t.stopTimer = nil
		wasDirty := t.dirty
		t.dirty = false
		t.mu.Unlock()
		if wasDirty {
			t.mu.Lock()
			t.publishLocked(phase)
			t.mu.Unlock()
		}
	})
	t.stopTimer = func() { timer.Stop() }
}

func (t *Tracker) publishLocked(phase string) {
	p := t.phases[phase]
	t.emit.Publish(t.jobID, domain.EventProgressPhase+domain.EventTag(phase), phaseUpdate{
		Phase:          phase,
		Weight:         p.weight,
		TotalItems:     p.totalItems,
		CompletedItems: p.completedItems,
		IsActive:       p.isActive,
		Message:        p.message,
	})

	pct := t.percentLocked()
	t.lastPct = pct
	t.emit.Publish(t.jobID, domain.EventProgressOverall, overallUpdate{Percent: pct})
}

// percentLocked computes the weighted-average completion percentage
// across every phase.
func (t *Tracker) percentLocked() float64 {
	if t.totalW == 0 {
		return 0
	}
	var sum float64
	for _, name := range t.order {
		p := t.phases[name]
		if p.completed {
			sum += p.weight
			continue
		}
		if p.isActive && p.totalItems > 0 {
			sum += p.weight * float64(p.completedItems) / float64(p.totalItems)
		}
	}
	pct := sum / t.totalW * 100
	// Monotonicity guard: a stale out-of-order update should never move
	// the reported percent backwards.
	if pct < t.lastPct {
		return t.lastPct
	}
	return pct
}

// Percent returns the last published overall percent.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPct
}

type phaseUpdate struct {
	Phase          string  `json:"phase"`
	Weight         float64 `json:"weight"`
	TotalItems     int     `json:"total_items"`
	CompletedItems int     `json:"completed_items"`
	IsActive       bool    `json:"is_active"`
	Message        string  `json:"message"`
}

type overallUpdate struct {
	Percent float64 `json:"percent"`
}
