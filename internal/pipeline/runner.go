// Package pipeline orchestrates one job end to end: extract → VAD →
// diagnose → pre-separate → transcribe+fuse → post-enhance → emit →
// finalize. It also owns the LLM chat routing (llm.go, llm_agent.go) that
// drives the post-enhancement proof/translate stage.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/capgen-ai/capgen/internal/audio"
	"github.com/capgen-ai/capgen/internal/checkpoint"
	"github.com/capgen-ai/capgen/internal/chunkgraph"
	"github.com/capgen-ai/capgen/internal/domain"
	"github.com/capgen-ai/capgen/internal/engine"
	"github.com/capgen-ai/capgen/internal/fuse"
	"github.com/capgen-ai/capgen/internal/jobqueue"
	"github.com/capgen-ai/capgen/internal/metrics"
	"github.com/capgen-ai/capgen/internal/modelmanager"
	"github.com/capgen-ai/capgen/internal/preset"
	"github.com/capgen-ai/capgen/internal/progress"
	"github.com/capgen-ai/capgen/internal/spectrum"
	"github.com/capgen-ai/capgen/internal/subtitle"
	"github.com/capgen-ai/capgen/internal/telemetry"
)

const sampleRate = 16000

// Engines bundles the five adapter contracts the runner drives. Each is
// registered with the Model Manager under its slot name so the runner
// never talks to accelerator residency directly.
type Engines struct {
	VAD          engine.VAD
	Separator    engine.Separator
	PrimaryASR   engine.PrimaryASR
	SecondaryASR engine.SecondaryASR
	LLM          engine.LLM
}

// Config bundles everything the runner needs beyond one job's own fields.
type Config struct {
	Engines        Engines
	Models         *modelmanager.Manager
	Checkpoint     *checkpoint.Store
	Telemetry      *telemetry.Recorder
	Emit           domain.Emitter
	Presets        map[string]preset.Settings
	JobsDir        string
	FuseConfig     fuse.Config
	SplitConfig    SplitConfig
	PatchThreshold float64
}

// Pipeline runs jobs end to end. One Pipeline instance is shared across
// jobs; all per-job state lives in the run() call's locals, since each job
// is exclusively owned by the runner goroutine executing it.
type Pipeline struct {
	cfg Config
}

func New(cfg Config) *Pipeline {
	if cfg.PatchThreshold == 0 {
		cfg.PatchThreshold = 0.5
	}
	return &Pipeline{cfg: cfg}
}

// Run matches jobqueue.RunFunc's signature, so a Pipeline's Run method can
// be handed directly to jobqueue.New as the RunFunc callback.
func (p *Pipeline) Run(ctx context.Context, job *domain.Job, ctrl *jobqueue.Control) (domain.JobStatus, error) {
	ps, ok := p.cfg.Presets[job.Settings.Preset]
	if !ok {
		ps = preset.DefaultTable()["default"]
	}

	tracker := progress.NewTracker(job.ID, ps.Weights, p.cfg.Emit)
	var session *subtitle.Session
	if len(job.Sentences) > 0 {
		// A restored job already has committed sentences on disk; seed the
		// session from them instead of starting a fresh, empty transcript.
		session = subtitle.Restore(job.ID, p.cfg.Emit, job.Sentences)
	} else {
		session = subtitle.New(job.ID, p.cfg.Emit)
	}
	p.cfg.Telemetry.StartJob(job.ID, job.InputPath, job.Title, ps.ID)
	p.cfg.Emit.Publish(job.ID, domain.EventSignalJobStart, nil)

	job.Status = domain.JobProcessing
	p.checkpoint(job)

	metrics.JobsActive.Inc()
	status, err := p.run(ctx, job, ctrl, ps, tracker, session)
	metrics.JobsActive.Dec()
	metrics.JobsTotal.WithLabelValues(string(status)).Inc()

	p.cfg.Telemetry.EndJob(job.ID, string(status))
	return status, err
}

func (p *Pipeline) run(ctx context.Context, job *domain.Job, ctrl *jobqueue.Control, ps preset.Settings, tracker *progress.Tracker, session *subtitle.Session) (domain.JobStatus, error) {
	samples, err := p.stageExtract(ctx, job, tracker)
	if err != nil {
		return domain.JobFailed, err
	}

	if boundaryStop(ctrl) {
		return domain.JobCanceled, nil
	}

	segments, err := p.stageVAD(ctx, job, tracker, samples)
	if err != nil {
		return domain.JobFailed, err
	}

	if len(segments) == 0 {
		tracker.CompletePhase(domain.PhaseVAD)
		return p.finalize(job, session, domain.JobFinished)
	}

	diagnoses := p.stageDiagnose(job, tracker, segments, samples)

	graph := chunkgraph.New(segments, samples, sampleRate)

	if boundaryStop(ctrl) {
		return domain.JobCanceled, nil
	}

	if err := p.stagePreSeparate(ctx, job, tracker, graph, diagnoses); err != nil {
		return domain.JobFailed, err
	}

	status, err := p.stageTranscribeFuse(ctx, job, ctrl, tracker, session, graph, ps)
	if err != nil {
		return domain.JobFailed, err
	}
	if status == domain.JobCanceled {
		return p.cancel(job)
	}

	if boundaryStop(ctrl) {
		return p.cancel(job)
	}

	if err := p.stagePostEnhance(ctx, job, tracker, session, graph, ps); err != nil {
		return domain.JobFailed, err
	}

	return p.finalize(job, session, domain.JobFinished)
}

func boundaryStop(ctrl *jobqueue.Control) bool {
	return ctrl != nil && (ctrl.CancelRequested() || ctrl.PauseRequested())
}

func (p *Pipeline) cancel(job *domain.Job) (domain.JobStatus, error) {
	p.cfg.Emit.Publish(job.ID, domain.EventSignalJobCanceled, nil)
	p.checkpoint(job)
	return domain.JobCanceled, nil
}

// checkpoint persists the job's current state to disk on every phase
// transition and status change. A write failure is logged and the run
// continues rather than failing the job: losing one checkpoint tick only
// widens the window a process restart would need to re-derive from the
// last successful write.
func (p *Pipeline) checkpoint(job *domain.Job) {
	if p.cfg.Checkpoint == nil {
		return
	}
	job.UpdatedAt = time.Now()
	if err := p.cfg.Checkpoint.Save(job); err != nil {
		slog.Warn("checkpoint save failed", "job_id", job.ID, "error", err)
	}
}

// stageExtract demuxes the input to mono 16kHz PCM and persists the audio
// artifact for later /api/media endpoints.
func (p *Pipeline) stageExtract(ctx context.Context, job *domain.Job, tracker *progress.Tracker) ([]float32, error) {
	started := time.Now()
	tracker.StartPhase(domain.PhaseExtract, 1)
	p.cfg.Emit.Publish(job.ID, domain.EventSignalPhaseStart, phaseSignal(domain.PhaseExtract))

	samples, err := audio.ExtractMono16k(ctx, job.InputPath)
	if err != nil {
		p.recordStage(job.ID, domain.PhaseExtract, nil, started, err)
		return nil, stageErr(domain.PhaseExtract, ErrInput, err)
	}

	if p.cfg.JobsDir != "" {
		wavPath := fmt.Sprintf("%s/%s/audio.wav", p.cfg.JobsDir, job.ID)
		if err := audio.WriteWAV(wavPath, samples, sampleRate); err != nil {
			p.recordStage(job.ID, domain.PhaseExtract, nil, started, err)
			return nil, stageErr(domain.PhaseExtract, ErrCheckpointIO, err)
		}
	}

	tracker.UpdateItems(domain.PhaseExtract, 1, "")
	tracker.CompletePhase(domain.PhaseExtract)
	p.cfg.Emit.Publish(job.ID, domain.EventSignalPhaseComplete, phaseSignal(domain.PhaseExtract))
	p.recordStage(job.ID, domain.PhaseExtract, nil, started, nil)
	job.Phase = domain.PhaseExtract
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return samples, nil
}

// stageVAD runs voice activity detection. An empty result is legitimate:
// the caller completes the job with an empty subtitle.
func (p *Pipeline) stageVAD(ctx context.Context, job *domain.Job, tracker *progress.Tracker, samples []float32) ([]domain.VADSegment, error) {
	started := time.Now()
	tracker.StartPhase(domain.PhaseVAD, 1)

	if err := p.cfg.Models.Acquire(ctx, modelmanager.SlotVAD); err != nil {
		return nil, stageErr(domain.PhaseVAD, ErrEngineUnavailable, err)
	}
	segments, err := p.cfg.Engines.VAD.Segment(ctx, samples, sampleRate)
	p.cfg.Models.Release(modelmanager.SlotVAD)
	if err != nil {
		p.recordStage(job.ID, domain.PhaseVAD, nil, started, err)
		return nil, stageErr(domain.PhaseVAD, ErrEngineTransient, err)
	}

	metrics.SpeechSegments.Add(float64(len(segments)))
	tracker.UpdateItems(domain.PhaseVAD, 1, fmt.Sprintf("%d segments", len(segments)))
	tracker.CompletePhase(domain.PhaseVAD)
	p.recordStage(job.ID, domain.PhaseVAD, nil, started, nil)
	job.Phase = domain.PhaseVAD
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return segments, nil
}

// stageDiagnose classifies every chunk's spectrum content. Failures here
// never fail the job: a diagnosis defaults to CLEAN/none, which simply
// skips pre-separation for that chunk.
func (p *Pipeline) stageDiagnose(job *domain.Job, tracker *progress.Tracker, segments []domain.VADSegment, samples []float32) map[int]domain.SpectrumDiagnosis {
	tracker.StartPhase(domain.PhaseBGMDetect, len(segments))
	classifier := spectrum.NewClassifier(spectrum.DefaultThresholds())

	diagnoses := make(map[int]domain.SpectrumDiagnosis, len(segments))
	for i, seg := range segments {
		startIdx := clampIndex(int(seg.StartSec*sampleRate), len(samples))
		endIdx := clampIndex(int(seg.EndSec*sampleRate), len(samples))
		diagnoses[seg.Index] = classifier.Diagnose(seg.Index, samples[startIdx:endIdx], sampleRate)
		tracker.UpdateItems(domain.PhaseBGMDetect, i+1, "")
	}
	tracker.CompletePhase(domain.PhaseBGMDetect)
	job.Phase = domain.PhaseBGMDetect
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return diagnoses
}

func clampIndex(i, max int) int {
	if i < 0 {
		return 0
	}
	if i > max {
		return max
	}
	return i
}

// stagePreSeparate acquires the separator once, runs it on every chunk
// whose diagnosis recommends separation, then lets the caller evict it by
// acquiring a conflicting slot next.
func (p *Pipeline) stagePreSeparate(ctx context.Context, job *domain.Job, tracker *progress.Tracker, graph *chunkgraph.Graph, diagnoses map[int]domain.SpectrumDiagnosis) error {
	toSeparate := 0
	for _, d := range diagnoses {
		if d.RecommendedSeparator != domain.SeparatorNone {
			toSeparate++
		}
	}
	tracker.StartPhase(domain.PhaseDemucs, toSeparate)
	if toSeparate == 0 {
		tracker.CompletePhase(domain.PhaseDemucs)
		job.Phase = domain.PhaseDemucs
		job.Progress = tracker.Percent()
		p.checkpoint(job)
		return nil
	}

	if err := p.cfg.Models.Acquire(ctx, modelmanager.SlotSeparator); err != nil {
		return stageErr(domain.PhaseDemucs, ErrEngineUnavailable, err)
	}

	done := 0
	for _, state := range graph.All() {
		d, ok := diagnoses[state.ChunkIndex]
		if !ok || d.RecommendedSeparator == domain.SeparatorNone {
			continue
		}
		separated, err := p.cfg.Engines.Separator.Separate(ctx, state.OriginalAudio(), sampleRate, d.RecommendedSeparator)
		if err != nil {
			return stageErr(domain.PhaseDemucs, ErrEngineTransient, err)
		}
		state.SetPreSeparated(d.RecommendedSeparator, separated)
		done++
		tracker.UpdateItems(domain.PhaseDemucs, done, "")
	}
	p.cfg.Models.Release(modelmanager.SlotSeparator)

	tracker.CompletePhase(domain.PhaseDemucs)
	job.Phase = domain.PhaseDemucs
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return nil
}

func phaseSignal(phase string) map[string]any {
	return map[string]any{"signal": phase}
}

func (p *Pipeline) recordStage(jobID, name string, chunkIndex *int, started time.Time, err error) {
	status := "ok"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	p.cfg.Telemetry.RecordStage(jobID, name, chunkIndex, started, time.Since(started).Seconds()*1000, status, "", errMsg)
}
