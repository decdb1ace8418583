package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/capgen-ai/capgen/internal/domain"
)

func waitFor(t *testing.T, desc string, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", desc)
}

func newTestJob(id string) *domain.Job {
	return &domain.Job{ID: id, InputPath: "/tmp/" + id + ".mp4"}
}

func TestCreateStartRunsToCompletion(t *testing.T) {
	run := func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		return domain.JobFinished, nil
	}
	q := New(1, run, domain.NopEmitter{}, nil)

	job := newTestJob("job-1")
	q.Create(job)
	got, ok := q.Get("job-1")
	if !ok || got.Status != domain.JobCreated {
		t.Fatalf("Create() left status %v, want CREATED", got)
	}

	if err := q.Start("job-1", domain.JobSettings{Preset: "default"}); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	waitFor(t, "job-1 to finish", func() bool {
		got, _ := q.Get("job-1")
		return got.Status == domain.JobFinished
	})
}

func TestStartTwiceFails(t *testing.T) {
	run := func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		return domain.JobFinished, nil
	}
	q := New(1, run, domain.NopEmitter{}, nil)
	q.Create(newTestJob("job-2"))

	if err := q.Start("job-2", domain.JobSettings{}); err != nil {
		t.Fatalf("first Start() error: %v", err)
	}
	if err := q.Start("job-2", domain.JobSettings{}); err == nil {
		t.Error("second Start() on the same job should fail")
	}
}

func TestStartUnknownJobFails(t *testing.T) {
	q := New(1, func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		return domain.JobFinished, nil
	}, domain.NopEmitter{}, nil)

	if err := q.Start("does-not-exist", domain.JobSettings{}); err == nil {
		t.Error("Start() on an unknown job should fail")
	}
}

func TestCancelQueuedJobIsImmediate(t *testing.T) {
	block := make(chan struct{})
	run := func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		<-block
		return domain.JobFinished, nil
	}
	q := New(1, run, domain.NopEmitter{}, nil)

	q.Create(newTestJob("running"))
	q.Start("running", domain.JobSettings{})
	waitFor(t, "running job to enter PROCESSING", func() bool {
		got, _ := q.Get("running")
		return got.Status == domain.JobProcessing
	})

	q.Create(newTestJob("queued"))
	q.Start("queued", domain.JobSettings{})

	if err := q.Cancel("queued"); err != nil {
		t.Fatalf("Cancel() on a queued job: %v", err)
	}
	got, _ := q.Get("queued")
	if got.Status != domain.JobCanceled {
		t.Errorf("queued job status after Cancel() = %v, want CANCELED", got.Status)
	}
	close(block)
}

func TestCancelTerminalJobFails(t *testing.T) {
	run := func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		return domain.JobFinished, nil
	}
	q := New(1, run, domain.NopEmitter{}, nil)
	q.Create(newTestJob("done"))
	q.Start("done", domain.JobSettings{})
	waitFor(t, "job to finish", func() bool {
		got, _ := q.Get("done")
		return got.Status == domain.JobFinished
	})

	if err := q.Cancel("done"); err == nil {
		t.Error("Cancel() on an already-terminal job should fail")
	}
}

func TestSetTitleAndSetSentencesMutateLiveJob(t *testing.T) {
	q := New(1, func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		return domain.JobFinished, nil
	}, domain.NopEmitter{}, nil)
	q.Create(newTestJob("edit-me"))

	if _, ok := q.SetTitle("edit-me", "My Video"); !ok {
		t.Fatal("SetTitle() returned not-ok for an existing job")
	}
	got, _ := q.Get("edit-me")
	if got.Title != "My Video" {
		t.Errorf("Title = %q, want %q", got.Title, "My Video")
	}

	sentences := []domain.Sentence{{ID: "0", Index: 0, Start: 0, End: 1, Text: "hi"}}
	if _, ok := q.SetSentences("edit-me", sentences); !ok {
		t.Fatal("SetSentences() returned not-ok for an existing job")
	}
	got, _ = q.Get("edit-me")
	if len(got.Sentences) != 1 || got.Sentences[0].Text != "hi" {
		t.Errorf("Sentences = %+v, want one sentence with text \"hi\"", got.Sentences)
	}
}

func TestReorderRejectsNonPermutation(t *testing.T) {
	q := New(1, func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		<-make(chan struct{}) // never returns
		return domain.JobFinished, nil
	}, domain.NopEmitter{}, nil)

	q.Create(newTestJob("a"))
	q.Start("a", domain.JobSettings{})
	waitFor(t, "job a to start processing so b/c stay queued", func() bool {
		got, _ := q.Get("a")
		return got.Status == domain.JobProcessing
	})
	q.Create(newTestJob("b"))
	q.Start("b", domain.JobSettings{})
	q.Create(newTestJob("c"))
	q.Start("c", domain.JobSettings{})

	if err := q.Reorder([]string{"c", "x"}); err == nil {
		t.Error("Reorder() with a missing id should fail")
	}
	if err := q.Reorder([]string{"b", "c"}); err != nil {
		t.Errorf("Reorder() with a valid permutation failed: %v", err)
	}
}

func TestRestoreRequeuesProcessingJobAndKeepsPaused(t *testing.T) {
	q := New(1, func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error) {
		return domain.JobFinished, nil
	}, domain.NopEmitter{}, nil)

	processing := newTestJob("crashed-mid-run")
	processing.Status = domain.JobProcessing
	q.Restore(processing)

	paused := newTestJob("was-paused")
	paused.Status = domain.JobPaused
	q.Restore(paused)

	waitFor(t, "restored PROCESSING job to finish", func() bool {
		got, _ := q.Get("crashed-mid-run")
		return got.Status == domain.JobFinished
	})

	got, _ := q.Get("was-paused")
	if got.Status != domain.JobPaused {
		t.Errorf("restored PAUSED job status = %v, want PAUSED", got.Status)
	}
}
