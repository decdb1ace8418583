package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/capgen-ai/capgen/internal/audio"
	"github.com/capgen-ai/capgen/internal/domain"
	"github.com/capgen-ai/capgen/internal/srt"
)

const defaultPeaksSamples = 1000

func (s *Server) handleMediaAudio(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	path := filepath.Join(s.JobsDir, jobID, "audio.wav")
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "audio not available")
		return
	}
	http.ServeFile(w, r, path)
}

// handleMediaVideo serves the original input file directly. capgen never
// transcodes the source, so there is no generating window before it's
// available.
func (s *Server) handleMediaVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, ok := s.Queue.Get(jobID)
	if !ok || job.InputPath == "" {
		writeError(w, http.StatusNotFound, "video not available")
		return
	}
	http.ServeFile(w, r, job.InputPath)
}

func (s *Server) handleMediaPeaks(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	path := filepath.Join(s.JobsDir, jobID, "audio.wav")
	samples, sampleRate, err := audio.ReadWAV(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "audio not available")
		return
	}

	count := queryInt(r, "samples", defaultPeaksSamples)
	duration, peaks := audio.Peaks(samples, sampleRate, count)
	writeJSON(w, http.StatusOK, map[string]any{"duration": duration, "peaks": peaks})
}

func (s *Server) handleMediaThumbnails(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, ok := s.Queue.Get(jobID)
	if !ok || job.InputPath == "" {
		writeError(w, http.StatusNotFound, "video not available")
		return
	}

	count := queryInt(r, "count", 10)
	dir := filepath.Join(s.JobsDir, jobID, "thumbnails")
	timestamps, paths, err := generateThumbnails(r.Context(), job.InputPath, dir, count)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timestamps": timestamps, "thumbnails": paths})
}

// generateThumbnails shells out to ffprobe for duration then ffmpeg once per
// evenly-spaced timestamp, the same exec.CommandContext idiom
// internal/audio.ExtractMono16k uses.
func generateThumbnails(ctx context.Context, inputPath, outDir string, count int) ([]float64, []string, error) {
	if count <= 0 {
		count = 10
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, nil, err
	}

	duration, err := probeDuration(ctx, inputPath)
	if err != nil {
		return nil, nil, err
	}

	timestamps := make([]float64, count)
	paths := make([]string, count)
	step := duration / float64(count+1)
	for i := 0; i < count; i++ {
		ts := step * float64(i+1)
		timestamps[i] = ts
		dest := filepath.Join(outDir, fmt.Sprintf("thumb_%d.jpg", i))
		if err := extractFrame(ctx, inputPath, dest, ts); err != nil {
			return nil, nil, err
		}
		paths[i] = dest
	}
	return timestamps, paths, nil
}

func probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path).Output()
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
}

func extractFrame(ctx context.Context, inputPath, destPath string, timestampSec float64) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", "-y", "-ss", strconv.FormatFloat(timestampSec, 'f', 3, 64),
		"-i", inputPath, "-frames:v", "1", "-q:v", "3", destPath)
	return cmd.Run()
}

func (s *Server) handleMediaGetSRT(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	path := filepath.Join(s.JobsDir, jobID, "output.srt")
	data, err := os.ReadFile(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "srt not available")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

// handleMediaPutSRT implements the editor save path: the client's edited
// SRT text becomes both the new output.srt on disk and the job's sentence
// list, so a later GET /api/jobs/{job_id}/text reflects the edit.
func (s *Server) handleMediaPutSRT(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	entries, err := srt.Decode(string(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid srt: "+err.Error())
		return
	}

	path := filepath.Join(s.JobsDir, jobID, "output.srt")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Queue.SetSentences(jobID, sentencesFromSRT(entries))

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func sentencesFromSRT(entries []srt.Entry) []domain.Sentence {
	sentences := make([]domain.Sentence, 0, len(entries))
	for i, e := range entries {
		text := e.Text
		sentences = append(sentences, domain.Sentence{
			ID:           strconv.Itoa(i),
			Index:        i,
			Start:        e.Start,
			End:          e.End,
			Text:         e.Text,
			Confidence:   1,
			Source:       domain.SourcePrimary,
			IsModified:   true,
			OriginalText: &text,
			Warning:      domain.WarningNone,
		})
	}
	return sentences
}
