package telemetry

import "time"

// JobRecord is one job's telemetry row: when it ran, under which preset,
// and how it ended. Distinct from domain.Job, which is the live,
// in-memory job the scheduler and checkpoint store operate on — this is
// the durable history kept for the hardware/ops surface, not the source
// of truth for resuming a job.
type JobRecord struct {
	ID        string     `json:"id"`
	InputPath string     `json:"input_path"`
	Title     string     `json:"title"`
	Preset    string     `json:"preset"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
}

// StageRecord is one pipeline stage execution within a job, optionally
// scoped to a single chunk. The runner records the extract and vad stages
// once per job and the primary_asr stage once per chunk.
type StageRecord struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Name       string    `json:"name"`
	ChunkIndex *int      `json:"chunk_index,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Error      string    `json:"error,omitempty"`
}
