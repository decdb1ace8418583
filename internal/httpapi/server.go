// Package httpapi implements the HTTP/SSE control surface over stdlib
// net/http, using Go's method+pattern ServeMux routing to register every
// endpoint for the job lifecycle and media surface.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capgen-ai/capgen/internal/checkpoint"
	"github.com/capgen-ai/capgen/internal/eventbus"
	"github.com/capgen-ai/capgen/internal/hwprobe"
	"github.com/capgen-ai/capgen/internal/jobqueue"
)

// Server bundles the handles every endpoint needs. One Server per
// process.
type Server struct {
	Queue      *jobqueue.Queue
	Checkpoint *checkpoint.Store
	Bus        *eventbus.Bus
	Hardware   hwprobe.Profile
	JobsDir    string
	InputDir   string
}

// Routes registers every endpoint onto a fresh ServeMux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/jobs/batch", s.handleBatch)
	mux.HandleFunc("POST /api/start/{job_id}", s.handleStart)
	mux.HandleFunc("POST /api/pause/{job_id}", s.handlePause)
	mux.HandleFunc("POST /api/resume/{job_id}", s.handleResume)
	mux.HandleFunc("POST /api/cancel/{job_id}", s.handleCancel)
	mux.HandleFunc("POST /api/jobs/reorder", s.handleReorder)
	mux.HandleFunc("PATCH /api/jobs/{job_id}/title", s.handleTitle)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{job_id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{job_id}/text", s.handleJobText)

	mux.HandleFunc("GET /api/media/{job_id}/audio", s.handleMediaAudio)
	mux.HandleFunc("GET /api/media/{job_id}/video", s.handleMediaVideo)
	mux.HandleFunc("GET /api/media/{job_id}/peaks", s.handleMediaPeaks)
	mux.HandleFunc("GET /api/media/{job_id}/thumbnails", s.handleMediaThumbnails)
	mux.HandleFunc("GET /api/media/{job_id}/srt", s.handleMediaGetSRT)
	mux.HandleFunc("PUT /api/media/{job_id}/srt", s.handleMediaPutSRT)

	mux.HandleFunc("GET /api/hardware", s.handleHardware)
	mux.HandleFunc("GET /api/stream/{job_id}", s.handleStreamJob)
	mux.HandleFunc("GET /api/stream", s.handleStreamGlobal)

	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	http.Error(w, msg, status)
}

type errorResponse struct {
	Error string `json:"error"`
}
