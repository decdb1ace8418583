package telemetry

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	// maxDetailLen caps detail/error string lengths stored per stage.
	maxDetailLen = 500

	// recorderChannelBuffer is how many telemetry messages can queue before
	// the background drain goroutine writes them to the store.
	recorderChannelBuffer = 64
)

type recorderMsg struct {
	kind      string // "job_create", "job_end", "stage"
	job       JobRecord
	endID     string
	endStatus string
	stage     StageRecord
}

// Recorder writes telemetry asynchronously via a buffered channel of
// recorderChannelBuffer messages, so a slow or unavailable database does
// not hold up the pipeline runner until that buffer is full; once it is
// full, each call blocks until the drain goroutine takes a message. Every
// method is nil-safe, so a Recorder is optional plumbing a caller can
// leave nil when telemetry isn't configured.
type Recorder struct {
	store *Store
	ch    chan recorderMsg
	done  chan struct{}
}

func NewRecorder(store *Store) *Recorder {
	r := &Recorder{
		store: store,
		ch:    make(chan recorderMsg, recorderChannelBuffer),
		done:  make(chan struct{}),
	}
	go r.drain()
	return r
}

func (r *Recorder) drain() {
	defer close(r.done)
	for msg := range r.ch {
		r.handle(msg)
	}
}

func (r *Recorder) handle(m recorderMsg) {
	if err := r.dispatch(m); err != nil {
		slog.Warn("telemetry write failed", "kind", m.kind, "error", err)
	}
}

func (r *Recorder) dispatch(m recorderMsg) error {
	switch m.kind {
	case "job_create":
		return r.store.CreateJob(m.job)
	case "job_end":
		return r.store.EndJob(m.endID, m.endStatus)
	case "stage":
		return r.store.CreateStage(m.stage)
	}
	return nil
}

// StartJob records a job's creation.
func (r *Recorder) StartJob(id, inputPath, title, preset string) {
	if r == nil {
		return
	}
	r.ch <- recorderMsg{kind: "job_create", job: JobRecord{
		ID: id, InputPath: inputPath, Title: title, Preset: preset,
		StartedAt: time.Now(), Status: "PROCESSING",
	}}
}

// EndJob records a job's terminal status.
func (r *Recorder) EndJob(id, status string) {
	if r == nil {
		return
	}
	r.ch <- recorderMsg{kind: "job_end", endID: id, endStatus: status}
}

// RecordStage records one completed pipeline stage.
func (r *Recorder) RecordStage(jobID, name string, chunkIndex *int, startedAt time.Time, durationMs float64, status, detail, errMsg string) {
	if r == nil {
		return
	}
	r.ch <- recorderMsg{
		kind: "stage",
		stage: StageRecord{
			ID:         uuid.NewString(),
			JobID:      jobID,
			Name:       name,
			ChunkIndex: chunkIndex,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Status:     status,
			Detail:     truncate(detail, maxDetailLen),
			Error:      truncate(errMsg, maxDetailLen),
		},
	}
}

// Close drains pending writes and shuts down the background goroutine.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	close(r.ch)
	<-r.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
