package checkpoint

import (
	"testing"

	"github.com/capgen-ai/capgen/internal/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	job := &domain.Job{ID: "job-1", Status: domain.JobProcessing, Title: "My Video"}

	if err := store.Save(job); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := store.Load("job-1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Status != domain.JobProcessing || got.Title != "My Video" {
		t.Errorf("Load() = %+v, want a round-tripped copy of %+v", got, job)
	}
}

func TestLoadMissingJobFails(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Load("does-not-exist"); err == nil {
		t.Error("Load() on a missing manifest should fail")
	}
}

func TestLoadAllOnMissingDirReturnsEmpty(t *testing.T) {
	store := New(t.TempDir() + "/does-not-exist")
	jobs, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() on a missing dir returned an error: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("LoadAll() on a missing dir = %v, want empty", jobs)
	}
}

func TestLoadAllReturnsEverySavedJob(t *testing.T) {
	store := New(t.TempDir())
	store.Save(&domain.Job{ID: "a", Status: domain.JobFinished})
	store.Save(&domain.Job{ID: "b", Status: domain.JobQueued})

	jobs, err := store.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll() error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("LoadAll() returned %d jobs, want 2", len(jobs))
	}
}

func TestPatchUpdatesSingleField(t *testing.T) {
	store := New(t.TempDir())
	store.Save(&domain.Job{ID: "job-1", Status: domain.JobProcessing, Progress: 0})

	if err := store.Patch("job-1", "progress", 42.5); err != nil {
		t.Fatalf("Patch() error: %v", err)
	}

	got, err := store.Load("job-1")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Progress != 42.5 {
		t.Errorf("Progress after Patch() = %v, want 42.5", got.Progress)
	}
	if got.Status != domain.JobProcessing {
		t.Errorf("Patch() should not disturb other fields, Status = %v", got.Status)
	}
}

func TestDeleteRemovesManifest(t *testing.T) {
	store := New(t.TempDir())
	store.Save(&domain.Job{ID: "job-1"})

	if err := store.Delete("job-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := store.Load("job-1"); err == nil {
		t.Error("Load() after Delete() should fail")
	}
}

func TestDeleteMissingJobIsNotAnError(t *testing.T) {
	store := New(t.TempDir())
	if err := store.Delete("never-existed"); err != nil {
		t.Errorf("Delete() on a missing manifest should be a no-op, got: %v", err)
	}
}
