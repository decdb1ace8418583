// Package checkpoint persists one JSON manifest per job under a jobs
// directory, written atomically (temp file + rename) so a crash mid-write
// never leaves a corrupt manifest behind, plus targeted field patches
// (via sjson/gjson) for high-frequency updates that don't warrant a full
// manifest rewrite.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/capgen-ai/capgen/internal/domain"
)

// Store persists job manifests under a single directory, one file per
// job: <dir>/<job-id>.json.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(jobID string) string {
	return filepath.Join(s.dir, jobID+".json")
}

// Save writes the full job manifest atomically: marshal to a temp file in
// the same directory, fsync, then rename over the target. The rename is
// atomic on the same filesystem, so a reader never observes a partial
// write, and a crash between temp-write and rename just leaves an orphan
// <id>.*.tmp file behind; the next Save writes a fresh, randomly named
// temp file and does not remove it.
func (s *Store) Save(job *domain.Job) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", job.ID, err)
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: save %s: marshal: %w", job.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, job.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", job.ID, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: save %s: write: %w", job.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: save %s: sync: %w", job.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", job.ID, err)
	}
	if err := os.Rename(tmpPath, s.path(job.ID)); err != nil {
		return fmt.Errorf("checkpoint: save %s: rename: %w", job.ID, err)
	}
	return nil
}

// Patch updates a single top-level field in an existing manifest in place
// without re-marshaling the whole job, using sjson to splice the new value
// and gjson to validate the document still parses before the atomic
// rename. Used for fields that change far more often than the rest of the
// manifest (progress, phase) where a full Save on every tick would be
// wasteful I/O.
func (s *Store) Patch(jobID, field string, value any) error {
	existing, err := os.ReadFile(s.path(jobID))
	if err != nil {
		return fmt.Errorf("checkpoint: patch %s: %w", jobID, err)
	}

	patched, err := sjson.Set(string(existing), field, value)
	if err != nil {
		return fmt.Errorf("checkpoint: patch %s: %w", jobID, err)
	}
	if !gjson.Valid(patched) {
		return fmt.Errorf("checkpoint: patch %s: resulting document is not valid JSON", jobID)
	}

	tmp, err := os.CreateTemp(s.dir, jobID+".*.tmp")
	if err != nil {
		return fmt.Errorf("checkpoint: patch %s: %w", jobID, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.WriteString(patched); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: patch %s: write: %w", jobID, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("checkpoint: patch %s: sync: %w", jobID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: patch %s: %w", jobID, err)
	}
	return os.Rename(tmpPath, s.path(jobID))
}

// Load reads one job manifest.
func (s *Store) Load(jobID string) (*domain.Job, error) {
	data, err := os.ReadFile(s.path(jobID))
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: %w", jobID, err)
	}
	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("checkpoint: load %s: unmarshal: %w", jobID, err)
	}
	return &job, nil
}

// LoadAll scans the directory for manifests at startup and returns every
// job found, regardless of status. The caller (the jobqueue scheduler's
// restore path) is responsible for re-queuing anything that was
// PROCESSING when the process last stopped.
func (s *Store) LoadAll() ([]*domain.Job, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("checkpoint: load all: %w", err)
	}

	var jobs []*domain.Job
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		jobID := e.Name()[:len(e.Name())-len(".json")]
		job, err := s.Load(jobID)
		if err != nil {
			continue // skip a corrupt manifest rather than failing startup entirely
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Delete removes a job's manifest, used when a job is purged.
func (s *Store) Delete(jobID string) error {
	if err := os.Remove(s.path(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete %s: %w", jobID, err)
	}
	return nil
}
