package pipeline

import "errors"

// The runner classifies every stage failure into one of these kinds. Any
// classified stage failure ends the job as FAILED: the runner neither
// retries a stage nor skips one.
var (
	// ErrInput marks a bad file or unreadable container: job FAILED, no
	// retry.
	ErrInput = errors.New("input error")

	// ErrEngineTransient marks a one-shot model inference failure. The
	// runner fails the job on it; the stage is not retried.
	ErrEngineTransient = errors.New("engine transient error")

	// ErrEngineUnavailable marks a model that could not be acquired (missing
	// model, load failure, OOM after an eviction attempt). The runner fails
	// the job on it; no stage is skipped in its place.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrCanceled is not a failure: the runner exits cleanly at the next
	// boundary and the job becomes CANCELED, not FAILED.
	ErrCanceled = errors.New("job canceled")

	// ErrCheckpointIO marks a failure writing a job artifact (audio.wav in
	// the extract stage, output.srt in finalize); the job fails. A failed
	// manifest save is not classified: Pipeline.checkpoint logs it and the
	// run continues.
	ErrCheckpointIO = errors.New("checkpoint io error")
)

// StageError wraps a stage failure with the stage name and its error
// taxonomy classification, so the caller can decide retry vs degrade vs
// fail without string-matching error text.
type StageError struct {
	Stage string
	Kind  error // one of the sentinels above
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return e.Stage + ": " + e.Kind.Error()
	}
	return e.Stage + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Kind }

func stageErr(stage string, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}
