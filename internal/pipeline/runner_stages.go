package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/capgen-ai/capgen/internal/chunkgraph"
	"github.com/capgen-ai/capgen/internal/domain"
	"github.com/capgen-ai/capgen/internal/engine"
	"github.com/capgen-ai/capgen/internal/fuse"
	"github.com/capgen-ai/capgen/internal/jobqueue"
	"github.com/capgen-ai/capgen/internal/metrics"
	"github.com/capgen-ai/capgen/internal/modelmanager"
	"github.com/capgen-ai/capgen/internal/preset"
	"github.com/capgen-ai/capgen/internal/progress"
	"github.com/capgen-ai/capgen/internal/srt"
	"github.com/capgen-ai/capgen/internal/subtitle"
)

// stageTranscribeFuse runs the per-chunk transcribe+fuse loop. PrimaryASR
// stays acquired across the whole loop; an UPGRADE_SEPARATION verdict
// evicts it, acquires the Separator for one chunk's re-separation, then
// re-acquires PrimaryASR before re-invoking it on the same chunk, rather
// than holding both models resident at once.
//
// A restored job starts from job.CommittedChunks rather than chunk zero:
// the runner's own chunk order is deterministic, so the partial sentence
// list a prior run persisted is authoritative for every chunk below that
// index and is never re-transcribed.
func (p *Pipeline) stageTranscribeFuse(ctx context.Context, job *domain.Job, ctrl *jobqueue.Control, tracker *progress.Tracker, session *subtitle.Session, graph *chunkgraph.Graph, ps preset.Settings) (domain.JobStatus, error) {
	tracker.StartPhase(domain.PhasePrimaryASR, graph.Len())

	start := job.CommittedChunks
	if start < 0 {
		start = 0
	}
	if start > graph.Len() {
		start = graph.Len()
	}
	for i := 0; i < start; i++ {
		tracker.UpdateItems(domain.PhasePrimaryASR, i+1, fmt.Sprintf("chunk %d (resumed)", graph.At(i).ChunkIndex))
	}
	if start == graph.Len() {
		tracker.CompletePhase(domain.PhasePrimaryASR)
		job.Phase = domain.PhasePrimaryASR
		job.Progress = tracker.Percent()
		p.checkpoint(job)
		return domain.JobProcessing, nil
	}

	if err := p.cfg.Models.Acquire(ctx, modelmanager.SlotPrimaryASR); err != nil {
		return domain.JobFailed, stageErr(domain.PhasePrimaryASR, ErrEngineUnavailable, err)
	}

	chunks := graph.All()
	for i := start; i < len(chunks); i++ {
		state := chunks[i]
		if boundaryStop(ctrl) {
			p.cfg.Models.Release(modelmanager.SlotPrimaryASR)
			return domain.JobCanceled, nil
		}

		result, err := p.transcribeChunkWithFuse(ctx, job, state, ps)
		if err != nil {
			p.cfg.Models.Release(modelmanager.SlotPrimaryASR)
			return domain.JobFailed, err
		}

		commitChunkSentences(session, p.cfg.SplitConfig, result)
		metrics.ChunksProcessed.Inc()
		metrics.PrimaryASRConfidence.Observe(result.AvgConfidence)

		tracker.UpdateItems(domain.PhasePrimaryASR, i+1, fmt.Sprintf("chunk %d", state.ChunkIndex))
		job.Sentences = session.All()
		job.CommittedChunks = i + 1
		job.Progress = tracker.Percent()
		p.checkpoint(job)
	}
	p.cfg.Models.Release(modelmanager.SlotPrimaryASR)
	tracker.CompletePhase(domain.PhasePrimaryASR)
	job.Phase = domain.PhasePrimaryASR
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return domain.JobProcessing, nil
}

// transcribeChunkWithFuse runs PrimaryASR on a chunk and applies the Fuse
// Controller's verdict, looping on UPGRADE_SEPARATION until ACCEPT (bounded
// by chunkgraph's retry cap). Returns the accepted transcription result for
// the caller to commit to the Subtitle Session.
func (p *Pipeline) transcribeChunkWithFuse(ctx context.Context, job *domain.Job, state *chunkgraph.State, ps preset.Settings) (*engine.PrimaryASRResult, error) {
	for {
		started := time.Now()
		result, err := p.cfg.Engines.PrimaryASR.Transcribe(ctx, state.CurrentAudio(), sampleRate, job.Settings.LanguageHint)
		if err != nil {
			p.recordStageChunk(job.ID, domain.PhasePrimaryASR, state.ChunkIndex, started, err)
			return nil, stageErr(domain.PhasePrimaryASR, ErrEngineTransient, err)
		}
		p.recordStageChunk(job.ID, domain.PhasePrimaryASR, state.ChunkIndex, started, nil)

		decision := fuse.Decide(p.cfg.FuseConfig, state, result.AvgConfidence, result.EventTag)
		if decision.Verdict == fuse.Accept {
			return result, nil
		}

		metrics.FuseRetries.Inc()
		if err := p.cfg.Models.Acquire(ctx, modelmanager.SlotSeparator); err != nil {
			return nil, stageErr(domain.PhasePrimaryASR, ErrEngineUnavailable, err)
		}
		separated, sepErr := p.cfg.Engines.Separator.Separate(ctx, state.OriginalAudio(), sampleRate, decision.NextLevel)
		p.cfg.Models.Release(modelmanager.SlotSeparator)
		if sepErr != nil {
			return nil, stageErr(domain.PhasePrimaryASR, ErrEngineTransient, sepErr)
		}
		state.Upgrade(decision.NextLevel, separated)

		if err := p.cfg.Models.Acquire(ctx, modelmanager.SlotPrimaryASR); err != nil {
			return nil, stageErr(domain.PhasePrimaryASR, ErrEngineUnavailable, err)
		}
		// loop: re-invoke PrimaryASR on the newly separated audio
	}
}

func (p *Pipeline) recordStageChunk(jobID, name string, chunkIndex int, started time.Time, err error) {
	idx := chunkIndex
	status := "ok"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	p.cfg.Telemetry.RecordStage(jobID, name, &idx, started, time.Since(started).Seconds()*1000, status, "", errMsg)
}

// commitChunkSentences splits one chunk's PrimaryASR result into sentences
// and appends each to the Subtitle Session. A chunk whose PrimaryASR
// returned empty text commits nothing, but is still counted toward
// progress by the caller.
func commitChunkSentences(session *subtitle.Session, splitCfg SplitConfig, result *engine.PrimaryASRResult) {
	if result == nil || result.Text == "" || len(result.Words) == 0 {
		return
	}

	drafts := SplitSentences(result.Words, splitCfg)
	for _, d := range drafts {
		text := d.text()
		if text == "" {
			continue
		}
		session.Append(domain.Sentence{
			Start:      d.Start,
			End:        d.End,
			Text:       text,
			Confidence: d.avgConfidence(),
			Source:     domain.SourcePrimary,
			Words:      d.Words,
		})
	}
}

// stagePostEnhance runs SecondaryASR text-only patches for low-confidence
// sentences, then LLM proof and translate passes, gated by the job's
// preset.
func (p *Pipeline) stagePostEnhance(ctx context.Context, job *domain.Job, tracker *progress.Tracker, session *subtitle.Session, graph *chunkgraph.Graph, ps preset.Settings) error {
	sentences := session.All()

	if err := p.stageSecondaryPatch(ctx, job, tracker, session, graph, ps, sentences); err != nil {
		return err
	}
	if err := p.stageLLMProof(ctx, job, tracker, session, ps); err != nil {
		return err
	}
	if err := p.stageLLMTrans(ctx, job, tracker, session, ps); err != nil {
		return err
	}
	return nil
}

func (p *Pipeline) stageSecondaryPatch(ctx context.Context, job *domain.Job, tracker *progress.Tracker, session *subtitle.Session, graph *chunkgraph.Graph, ps preset.Settings, sentences []domain.Sentence) error {
	candidates := 0
	if ps.RunsSecondaryPatch() {
		for _, s := range sentences {
			if s.Confidence < p.cfg.PatchThreshold {
				candidates++
			}
		}
	}
	tracker.StartPhase(domain.PhaseSecondaryPatch, candidates)
	if candidates == 0 {
		tracker.CompletePhase(domain.PhaseSecondaryPatch)
		job.Phase = domain.PhaseSecondaryPatch
		job.Progress = tracker.Percent()
		p.checkpoint(job)
		return nil
	}

	if err := p.cfg.Models.Acquire(ctx, modelmanager.SlotSecondaryASR); err != nil {
		return stageErr(domain.PhaseSecondaryPatch, ErrEngineUnavailable, err)
	}

	done := 0
	for _, s := range sentences {
		if s.Confidence >= p.cfg.PatchThreshold {
			continue
		}
		samples := sliceAudioForSentence(graph, s)
		result, err := p.cfg.Engines.SecondaryASR.TranscribeTextOnly(ctx, samples, sampleRate, "", job.Settings.LanguageHint)
		if err != nil {
			p.cfg.Models.Release(modelmanager.SlotSecondaryASR)
			return stageErr(domain.PhaseSecondaryPatch, ErrEngineTransient, err)
		}
		if result.Text != "" {
			conf := result.AvgConfidence
			session.ReplaceText(s.ID, result.Text, domain.SourceSecondaryPatch, &conf, nil)
		}
		done++
		tracker.UpdateItems(domain.PhaseSecondaryPatch, done, "")
	}
	p.cfg.Models.Release(modelmanager.SlotSecondaryASR)
	tracker.CompletePhase(domain.PhaseSecondaryPatch)
	job.Phase = domain.PhaseSecondaryPatch
	job.Sentences = session.All()
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return nil
}

// sliceAudioForSentence recovers the sentence's (start,end) audio slice
// from the chunk whose interval contains it. Chunks are in VAD order, so
// a linear scan is sufficient for the bounded chunk counts this pipeline
// targets.
func sliceAudioForSentence(graph *chunkgraph.Graph, s domain.Sentence) []float32 {
	for _, state := range graph.All() {
		if s.Start >= state.StartSec && s.End <= state.EndSec+0.001 {
			offset := s.Start - state.StartSec
			startIdx := clampIndex(int(offset*sampleRate), len(state.CurrentAudio()))
			endIdx := clampIndex(int((offset+(s.End-s.Start))*sampleRate), len(state.CurrentAudio()))
			return state.CurrentAudio()[startIdx:endIdx]
		}
	}
	return nil
}

func (p *Pipeline) stageLLMProof(ctx context.Context, job *domain.Job, tracker *progress.Tracker, session *subtitle.Session, ps preset.Settings) error {
	sentences := session.All()
	candidates := 0
	if ps.RunsLLMProof() {
		candidates = countProofCandidates(sentences, ps.LLMProof)
	}
	tracker.StartPhase(domain.PhaseLLMProof, candidates)
	if candidates == 0 {
		tracker.CompletePhase(domain.PhaseLLMProof)
		job.Phase = domain.PhaseLLMProof
		job.Progress = tracker.Percent()
		p.checkpoint(job)
		return nil
	}

	done := 0
	for i, s := range sentences {
		if !shouldProof(s, ps.LLMProof) {
			continue
		}
		context := session.ContextWindow(i, 3)
		result, err := p.cfg.Engines.LLM.Proof(ctx, s.Text, context)
		if err != nil {
			return stageErr(domain.PhaseLLMProof, ErrEngineTransient, err)
		}
		perplexity := result.Perplexity
		session.ReplaceText(s.ID, result.Text, domain.SourceLLMCorrection, nil, &perplexity)
		done++
		tracker.UpdateItems(domain.PhaseLLMProof, done, "")
	}
	tracker.CompletePhase(domain.PhaseLLMProof)
	job.Phase = domain.PhaseLLMProof
	job.Sentences = session.All()
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return nil
}

// countProofCandidates mirrors shouldProof's selection so the phase's
// total_items matches the number of sentences actually processed.
func countProofCandidates(sentences []domain.Sentence, mode preset.ProofMode) int {
	n := 0
	for _, s := range sentences {
		if shouldProof(s, mode) {
			n++
		}
	}
	return n
}

// shouldProof implements the sparse/full distinction: full proofs every
// sentence, sparse only those already flagged with a quality warning.
func shouldProof(s domain.Sentence, mode preset.ProofMode) bool {
	switch mode {
	case preset.ProofFull:
		return true
	case preset.ProofSparse:
		return s.Warning != domain.WarningNone
	default:
		return false
	}
}

func (p *Pipeline) stageLLMTrans(ctx context.Context, job *domain.Job, tracker *progress.Tracker, session *subtitle.Session, ps preset.Settings) error {
	sentences := session.All()
	candidates := 0
	if ps.RunsLLMTrans() {
		candidates = countTransCandidates(sentences, ps.LLMTrans)
	}
	tracker.StartPhase(domain.PhaseLLMTrans, candidates)
	if candidates == 0 {
		tracker.CompletePhase(domain.PhaseLLMTrans)
		job.Phase = domain.PhaseLLMTrans
		job.Progress = tracker.Percent()
		p.checkpoint(job)
		return nil
	}

	targetLang := job.Settings.LanguageHint
	if targetLang == "" {
		targetLang = "en"
	}

	done := 0
	for i, s := range sentences {
		if !shouldTranslate(i, len(sentences), ps.LLMTrans) {
			continue
		}
		context := session.ContextWindow(i, 3)
		result, err := p.cfg.Engines.LLM.Translate(ctx, s.Text, targetLang, context)
		if err != nil {
			return stageErr(domain.PhaseLLMTrans, ErrEngineTransient, err)
		}
		session.SetTranslation(s.ID, result.Text, result.Confidence)
		done++
		tracker.UpdateItems(domain.PhaseLLMTrans, done, "")
	}
	tracker.CompletePhase(domain.PhaseLLMTrans)
	job.Phase = domain.PhaseLLMTrans
	job.Sentences = session.All()
	job.Progress = tracker.Percent()
	p.checkpoint(job)
	return nil
}

func countTransCandidates(sentences []domain.Sentence, mode preset.TransMode) int {
	n := 0
	for i := range sentences {
		if shouldTranslate(i, len(sentences), mode) {
			n++
		}
	}
	return n
}

// shouldTranslate implements the partial/full distinction: full translates
// every sentence, partial translates every other sentence as a
// cost-saving compromise.
func shouldTranslate(index, total int, mode preset.TransMode) bool {
	switch mode {
	case preset.TransFull:
		return true
	case preset.TransPartial:
		return index%2 == 0
	default:
		return false
	}
}

// finalize serializes the session to SRT, persists the artifact, and
// marks the job with its terminal status.
func (p *Pipeline) finalize(job *domain.Job, session *subtitle.Session, status domain.JobStatus) (domain.JobStatus, error) {
	sentences := session.All()
	content := srt.Encode(sentences)

	if p.cfg.JobsDir != "" {
		path := fmt.Sprintf("%s/%s/output.srt", p.cfg.JobsDir, job.ID)
		if err := writeSRTFile(path, content); err != nil {
			return domain.JobFailed, stageErr(domain.PhaseSRT, ErrCheckpointIO, err)
		}
	}

	job.Sentences = sentences
	job.Phase = domain.PhaseSRT
	job.Status = status
	job.Progress = 100
	p.checkpoint(job)

	if status == domain.JobFinished {
		p.cfg.Emit.Publish(job.ID, domain.EventSignalJobComplete, nil)
	}
	return status, nil
}

// writeSRTFile persists one job's rendered subtitle artifact, creating the
// job's output directory if it doesn't already exist.
func writeSRTFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
