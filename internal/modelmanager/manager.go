// Package modelmanager amortizes model load cost while enforcing that at
// most one heavy model occupies accelerator memory at a time.
package modelmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Slot names a model family. The runner acquires/releases/evicts by slot,
// never by concrete engine type, so the manager stays engine-agnostic.
type Slot string

const (
	SlotVAD          Slot = "vad"
	SlotPrimaryASR   Slot = "primary_asr"
	SlotSeparator    Slot = "separator"
	SlotSecondaryASR Slot = "secondary_asr"
)

// Loadable is implemented by an engine adapter that has a real load/unload
// cost (a remote model server preload/unload call, or a local allocation).
// Adapters with no meaningful load step (stateless HTTP proof/translate
// calls) can implement both as no-ops.
type Loadable interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
}

// Manager serializes acquisition of model slots behind a single
// process-wide exclusion lock and evicts conflicting slots automatically.
type Manager struct {
	mu        sync.Mutex
	loadables map[Slot]Loadable
	conflicts map[Slot][]Slot
	resident  map[Slot]bool
}

// New creates a Manager. conflicts maps a slot to the slots it cannot
// coexist with on the accelerator; acquiring a slot evicts every resident
// conflicting slot first.
func New(loadables map[Slot]Loadable, conflicts map[Slot][]Slot) *Manager {
	return &Manager{
		loadables: loadables,
		conflicts: conflicts,
		resident:  make(map[Slot]bool),
	}
}

// DefaultConflicts treats the separator and the two ASR engines as
// mutually exclusive heavy occupants of accelerator memory. VAD is
// assumed lightweight enough to coexist with anything.
func DefaultConflicts() map[Slot][]Slot {
	return map[Slot][]Slot{
		SlotPrimaryASR:   {SlotSeparator, SlotSecondaryASR},
		SlotSeparator:    {SlotPrimaryASR, SlotSecondaryASR},
		SlotSecondaryASR: {SlotPrimaryASR, SlotSeparator},
	}
}

// Acquire ensures slot's model is resident, evicting any conflicting
// resident slot first. Acquisitions are fully serialized: no two
// acquisitions can straddle a model swap.
func (m *Manager) Acquire(ctx context.Context, slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conflict := range m.conflicts[slot] {
		if m.resident[conflict] {
			if err := m.evictLocked(ctx, conflict); err != nil {
				return fmt.Errorf("evict conflicting slot %s: %w", conflict, err)
			}
		}
	}

	if m.resident[slot] {
		return nil
	}

	loadable, ok := m.loadables[slot]
	if !ok {
		return fmt.Errorf("no loadable registered for slot %q", slot)
	}

	slog.Info("model_manager_acquire", "slot", slot)
	if err := loadable.Load(ctx); err != nil {
		return fmt.Errorf("load slot %s: %w", slot, err)
	}
	m.resident[slot] = true
	return nil
}

// Release marks the caller done with the slot for now. The model is not
// unloaded — residency is retained until a conflicting Acquire or an
// explicit Evict — so back-to-back uses of the same slot avoid reload cost.
func (m *Manager) Release(slot Slot) {
	// Intentionally a no-op beyond documentation: residency tracking lives
	// in m.resident and is only cleared by evictLocked.
}

// Evict explicitly destroys the in-memory model for slot and frees
// accelerator memory, regardless of conflicts.
func (m *Manager) Evict(ctx context.Context, slot Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictLocked(ctx, slot)
}

func (m *Manager) evictLocked(ctx context.Context, slot Slot) error {
	if !m.resident[slot] {
		return nil
	}
	loadable, ok := m.loadables[slot]
	if !ok {
		return nil
	}
	slog.Info("model_manager_evict", "slot", slot)
	if err := loadable.Unload(ctx); err != nil {
		return fmt.Errorf("unload slot %s: %w", slot, err)
	}
	m.resident[slot] = false
	return nil
}

// Resident reports whether slot currently occupies accelerator memory.
func (m *Manager) Resident(slot Slot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resident[slot]
}
