package modelmanager

import (
	"context"
	"testing"
)

type fakeLoadable struct {
	loads, unloads int
	loadErr        error
}

func (f *fakeLoadable) Load(ctx context.Context) error {
	f.loads++
	return f.loadErr
}

func (f *fakeLoadable) Unload(ctx context.Context) error {
	f.unloads++
	return nil
}

func TestAcquireLoadsOnlyOnce(t *testing.T) {
	vad := &fakeLoadable{}
	m := New(map[Slot]Loadable{SlotVAD: vad}, DefaultConflicts())

	ctx := context.Background()
	if err := m.Acquire(ctx, SlotVAD); err != nil {
		t.Fatalf("first Acquire() error: %v", err)
	}
	if err := m.Acquire(ctx, SlotVAD); err != nil {
		t.Fatalf("second Acquire() error: %v", err)
	}
	if vad.loads != 1 {
		t.Errorf("Load() called %d times, want 1 (already resident)", vad.loads)
	}
	if !m.Resident(SlotVAD) {
		t.Error("Resident(SlotVAD) = false after Acquire()")
	}
}

func TestAcquireEvictsConflictingSlot(t *testing.T) {
	primary := &fakeLoadable{}
	separator := &fakeLoadable{}
	m := New(map[Slot]Loadable{
		SlotPrimaryASR: primary,
		SlotSeparator:  separator,
	}, DefaultConflicts())

	ctx := context.Background()
	if err := m.Acquire(ctx, SlotPrimaryASR); err != nil {
		t.Fatalf("Acquire(primary) error: %v", err)
	}
	if err := m.Acquire(ctx, SlotSeparator); err != nil {
		t.Fatalf("Acquire(separator) error: %v", err)
	}

	if m.Resident(SlotPrimaryASR) {
		t.Error("primary ASR should have been evicted when separator was acquired")
	}
	if !m.Resident(SlotSeparator) {
		t.Error("separator should be resident after Acquire()")
	}
	if primary.unloads != 1 {
		t.Errorf("primary Unload() called %d times, want 1", primary.unloads)
	}
}

func TestEvictOnNonResidentSlotIsNoOp(t *testing.T) {
	vad := &fakeLoadable{}
	m := New(map[Slot]Loadable{SlotVAD: vad}, DefaultConflicts())

	if err := m.Evict(context.Background(), SlotVAD); err != nil {
		t.Errorf("Evict() on a never-acquired slot should be a no-op, got: %v", err)
	}
	if vad.unloads != 0 {
		t.Errorf("Unload() called %d times, want 0", vad.unloads)
	}
}

func TestAcquireUnknownSlotFails(t *testing.T) {
	m := New(map[Slot]Loadable{}, DefaultConflicts())
	if err := m.Acquire(context.Background(), SlotVAD); err == nil {
		t.Error("Acquire() on a slot with no registered Loadable should fail")
	}
}

func TestAcquirePropagatesLoadError(t *testing.T) {
	failing := &fakeLoadable{loadErr: context.DeadlineExceeded}
	m := New(map[Slot]Loadable{SlotVAD: failing}, DefaultConflicts())

	if err := m.Acquire(context.Background(), SlotVAD); err == nil {
		t.Error("Acquire() should propagate a Load() error")
	}
	if m.Resident(SlotVAD) {
		t.Error("a failed Load() should not mark the slot resident")
	}
}
