// Package jobqueue implements the job lifecycle state machine, a single
// reorderable FIFO of QUEUED jobs, and a scheduler that keeps a bounded
// number of runners active: a mutex-guarded in-memory job store, a full
// guarded transition table, a cooperative pause/cancel flag per running
// job, and an explicit concurrency cap.
package jobqueue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/capgen-ai/capgen/internal/domain"
)

// Control is handed to a running job's RunFunc so it can cooperate with
// pause/cancel requests at stage and chunk boundaries.
type Control struct {
	paused    atomic.Bool
	canceled  atomic.Bool
	cancelCtx context.CancelFunc
}

func (c *Control) PauseRequested() bool  { return c.paused.Load() }
func (c *Control) CancelRequested() bool { return c.canceled.Load() }

// RunFunc runs one job to completion (or until ctx is canceled, or until
// Control reports a pause/cancel request at the next boundary the caller
// checks). It reports the job's terminal or interrupted status.
type RunFunc func(ctx context.Context, job *domain.Job, ctrl *Control) (domain.JobStatus, error)

// Queue owns every job's lifecycle state and the reorderable QUEUED list.
// concurrency jobs run at once; by default 1, so only one job actively
// processes at a time.
type Queue struct {
	mu          sync.Mutex
	jobs        map[string]*domain.Job
	queued      []string // QUEUED job ids, head is next to run
	active      map[string]*Control
	concurrency int
	run         RunFunc
	emit        domain.Emitter
	wake        chan struct{}
	onSave      func(*domain.Job) // checkpoint hook, called on every transition
}

func New(concurrency int, run RunFunc, emit domain.Emitter, onSave func(*domain.Job)) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	if emit == nil {
		emit = domain.NopEmitter{}
	}
	if onSave == nil {
		onSave = func(*domain.Job) {}
	}
	q := &Queue{
		jobs:        map[string]*domain.Job{},
		active:      map[string]*Control{},
		concurrency: concurrency,
		run:         run,
		emit:        emit,
		wake:        make(chan struct{}, 1),
		onSave:      onSave,
	}
	go q.schedulerLoop()
	return q
}

// Restore re-registers a job loaded from the checkpoint store at process
// startup, without going through the normal Create/Start path. A job that
// crashed mid-PROCESSING is restored into QUEUED; a PAUSED job keeps its
// state.
func (q *Queue) Restore(job *domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.Status == domain.JobProcessing {
		job.Status = domain.JobQueued
	}
	q.jobs[job.ID] = job
	if job.Status == domain.JobQueued {
		q.queued = append(q.queued, job.ID)
	}
	q.wakeLocked()
}

// Create registers a new job in CREATED state.
func (q *Queue) Create(job *domain.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = domain.JobCreated
	job.UpdatedAt = time.Now()
	q.jobs[job.ID] = job
	q.onSave(job)
}

func (q *Queue) Get(jobID string) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// SetSentences replaces a job's sentence list in place (the SRT editor
// save path) and persists the change.
func (q *Queue) SetSentences(jobID string, sentences []domain.Sentence) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	job.Sentences = sentences
	job.UpdatedAt = time.Now()
	q.onSave(job)
	return job.Clone(), true
}

// SetTitle renames a job in place and persists the change, independent of
// its lifecycle status.
func (q *Queue) SetTitle(jobID, title string) (*domain.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	job.Title = title
	job.UpdatedAt = time.Now()
	q.onSave(job)
	return job.Clone(), true
}

func (q *Queue) All() []*domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*domain.Job, 0, len(q.jobs))
	for _, j := range q.jobs {
		out = append(out, j.Clone())
	}
	return out
}

// Start implements CREATED→QUEUED, attaching the caller's settings first.
func (q *Queue) Start(jobID string, settings domain.JobSettings) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != domain.JobCreated {
		return fmt.Errorf("job %s: cannot start from status %s", jobID, job.Status)
	}
	job.Settings = settings
	q.transitionLocked(job, domain.JobQueued)
	q.queued = append(q.queued, jobID)
	q.emit.Publish(jobID, domain.EventSignalJobStart, nil)
	q.wakeLocked()
	return nil
}

// Pause implements PROCESSING→PAUSED: sets the cooperative flag and lets
// the runner checkpoint and stop at the next stage boundary. The actual
// status transition to PAUSED is committed by the scheduler once the
// RunFunc returns, not here: checkpoint first, then interrupt, never
// mid-chunk write, and only the runner can guarantee that ordering.
func (q *Queue) Pause(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != domain.JobProcessing {
		return fmt.Errorf("job %s: cannot pause from status %s", jobID, job.Status)
	}
	ctrl, ok := q.active[jobID]
	if !ok {
		return fmt.Errorf("job %s: not actively running", jobID)
	}
	ctrl.paused.Store(true)
	return nil
}

// Resume implements PAUSED→QUEUED, re-entering the queue at its original
// position unless the queue has since been reordered.
func (q *Queue) Resume(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status != domain.JobPaused {
		return fmt.Errorf("job %s: cannot resume from status %s", jobID, job.Status)
	}
	q.transitionLocked(job, domain.JobQueued)
	q.queued = append(q.queued, jobID)
	q.wakeLocked()
	return nil
}

// Cancel implements any-non-terminal→CANCELED. For a queued-but-not-yet-
// running job it's applied immediately; for an active job it sets the
// cooperative flag and the scheduler finalizes CANCELED once RunFunc
// returns.
func (q *Queue) Cancel(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s: already terminal (%s)", jobID, job.Status)
	}

	if ctrl, ok := q.active[jobID]; ok {
		ctrl.canceled.Store(true)
		if ctrl.cancelCtx != nil {
			ctrl.cancelCtx()
		}
		return nil
	}

	q.removeFromQueuedLocked(jobID)
	q.transitionLocked(job, domain.JobCanceled)
	q.emit.Publish(jobID, domain.EventSignalJobCanceled, nil)
	return nil
}

// Reorder applies newOrder to the QUEUED set; newOrder must be a
// permutation of the ids currently in queued.
func (q *Queue) Reorder(newOrder []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(newOrder) != len(q.queued) {
		return fmt.Errorf("reorder: expected %d ids, got %d", len(q.queued), len(newOrder))
	}
	current := map[string]bool{}
	for _, id := range q.queued {
		current[id] = true
	}
	seen := map[string]bool{}
	for _, id := range newOrder {
		if !current[id] || seen[id] {
			return fmt.Errorf("reorder: %q is not a valid permutation of the queued set", id)
		}
		seen[id] = true
	}
	q.queued = append([]string(nil), newOrder...)
	return nil
}

func (q *Queue) removeFromQueuedLocked(jobID string) {
	for i, id := range q.queued {
		if id == jobID {
			q.queued = append(q.queued[:i], q.queued[i+1:]...)
			return
		}
	}
}

func (q *Queue) transitionLocked(job *domain.Job, status domain.JobStatus) {
	job.Status = status
	job.UpdatedAt = time.Now()
	q.onSave(job)
}

func (q *Queue) wakeLocked() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// schedulerLoop wakes whenever the active set might have room and the
// queue might have work, and starts runners up to the concurrency cap.
func (q *Queue) schedulerLoop() {
	for range q.wake {
		q.scheduleReady()
	}
}

func (q *Queue) scheduleReady() {
	for {
		q.mu.Lock()
		if len(q.active) >= q.concurrency || len(q.queued) == 0 {
			q.mu.Unlock()
			return
		}
		jobID := q.queued[0]
		q.queued = q.queued[1:]
		job, ok := q.jobs[jobID]
		if !ok {
			q.mu.Unlock()
			continue
		}
		q.transitionLocked(job, domain.JobProcessing)

		ctx, cancel := context.WithCancel(context.Background())
		ctrl := &Control{cancelCtx: cancel}
		q.active[jobID] = ctrl
		q.mu.Unlock()

		go q.runOne(ctx, job.Clone(), ctrl)
	}
}

func (q *Queue) runOne(ctx context.Context, job *domain.Job, ctrl *Control) {
	finalStatus, err := q.run(ctx, job, ctrl)

	q.mu.Lock()
	delete(q.active, job.ID)
	current := q.jobs[job.ID]
	if current == nil {
		q.mu.Unlock()
		return
	}

	switch {
	case ctrl.CancelRequested():
		q.transitionLocked(current, domain.JobCanceled)
		q.emit.Publish(job.ID, domain.EventSignalJobCanceled, nil)
	case ctrl.PauseRequested():
		q.transitionLocked(current, domain.JobPaused)
	case err != nil:
		current.Error = &domain.JobError{Stage: current.Phase, Message: err.Error()}
		q.transitionLocked(current, domain.JobFailed)
		q.emit.Publish(job.ID, domain.EventSignalJobFailed, current.Error)
	default:
		q.transitionLocked(current, finalStatus)
		if finalStatus == domain.JobFinished {
			q.emit.Publish(job.ID, domain.EventSignalJobComplete, nil)
		}
	}
	q.wakeLocked()
	q.mu.Unlock()
}
