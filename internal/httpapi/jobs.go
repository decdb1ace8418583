package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/capgen-ai/capgen/internal/domain"
)

const defaultJobsPageSize = 50

// handleUpload implements POST /api/upload: multipart file intake, job
// created in CREATED status.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	job := s.newJob(header.Filename)
	if err := s.saveUploadedFile(job, header.Filename, file); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.Queue.Create(job)

	writeJSON(w, http.StatusCreated, map[string]any{
		"job_id":         job.ID,
		"filename":       header.Filename,
		"queue_position": 0,
	})
}

func (s *Server) newJob(filename string) *domain.Job {
	now := time.Now()
	return &domain.Job{
		ID:        uuid.NewString(),
		Title:     filename,
		Status:    domain.JobCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Server) saveUploadedFile(job *domain.Job, filename string, src io.Reader) error {
	dir := filepath.Join(s.JobsDir, job.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(dir, "input"+filepath.Ext(filename))
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return err
	}
	job.InputPath = dest
	return nil
}

// handleBatch implements POST /api/jobs/batch: references files already
// present in InputDir rather than uploading new bytes.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filenames []string `json:"filenames"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}

	type failure struct {
		Filename string `json:"filename"`
		Error    string `json:"error"`
	}
	var succeeded []string
	var failed []failure

	for _, name := range req.Filenames {
		src := filepath.Join(s.InputDir, name)
		if _, err := os.Stat(src); err != nil {
			failed = append(failed, failure{Filename: name, Error: "file not found"})
			continue
		}
		job := s.newJob(name)
		dir := filepath.Join(s.JobsDir, job.ID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			failed = append(failed, failure{Filename: name, Error: err.Error()})
			continue
		}
		dest := filepath.Join(dir, "input"+filepath.Ext(name))
		if err := copyFile(src, dest); err != nil {
			failed = append(failed, failure{Filename: name, Error: err.Error()})
			continue
		}
		job.InputPath = dest
		s.Queue.Create(job)
		succeeded = append(succeeded, job.ID)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"succeeded":   succeeded,
		"failed_count": len(failed),
		"failed":      failed,
	})
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// handleStart implements POST /api/start/{job_id}: CREATED→QUEUED with the
// caller's settings attached.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")

	var raw []byte
	if r.Body != nil {
		raw, _ = io.ReadAll(r.Body)
	}
	if err := validateStartSettings(raw); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var settings domain.JobSettings
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err != nil {
			writeError(w, http.StatusBadRequest, "bad request body")
			return
		}
	}
	if settings.Preset == "" {
		settings.Preset = "default"
	}

	if err := s.Queue.Start(jobID, settings); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if err := s.Queue.Pause(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pausing"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	if err := s.Queue.Resume(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	purge := r.URL.Query().Get("purge") == "true"

	if err := s.Queue.Cancel(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if purge {
		os.RemoveAll(filepath.Join(s.JobsDir, jobID))
		s.Checkpoint.Delete(jobID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if err := s.Queue.Reorder(req.Order); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reordered"})
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	job, ok := s.Queue.SetTitle(jobID, req.Title)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.Queue.All()

	page := queryInt(r, "page", 0)
	pageSize := queryInt(r, "page_size", defaultJobsPageSize)
	if page > 0 && pageSize > 0 {
		start := (page - 1) * pageSize
		if start >= len(jobs) {
			jobs = nil
		} else {
			end := start + pageSize
			if end > len(jobs) {
				end = len(jobs)
			}
			jobs = jobs[start:end]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "total": len(s.Queue.All())})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, ok := s.Queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobText(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, ok := s.Queue.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	type segment struct {
		Start      float64 `json:"start"`
		End        float64 `json:"end"`
		Text       string  `json:"text"`
		Confidence float64 `json:"confidence"`
	}
	segments := make([]segment, 0, len(job.Sentences))
	for _, sent := range job.Sentences {
		segments = append(segments, segment{Start: sent.Start, End: sent.End, Text: sent.Text, Confidence: sent.Confidence})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"segments": segments,
		"progress": map[string]float64{"percentage": job.Progress},
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
