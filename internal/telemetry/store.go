package telemetry

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxJobRecords = 500

// Store persists job and stage telemetry to PostgreSQL, migrating its
// schema on open. Job/Stage is a flat two-level hierarchy since one job
// runs its pipeline exactly once: there's no repeated "run" concept to
// track underneath it.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL telemetry database at connStr and applies
// any pending migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("telemetry open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new job record and prunes old ones beyond
// maxJobRecords.
func (s *Store) CreateJob(j JobRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO jobs (id, input_path, title, preset, started_at, status) VALUES ($1, $2, $3, $4, $5, $6)`,
		j.ID, j.InputPath, j.Title, j.Preset, j.StartedAt.UTC(), j.Status,
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM jobs WHERE id NOT IN (SELECT id FROM jobs ORDER BY started_at DESC LIMIT $1)`,
		maxJobRecords,
	)
	return err
}

// EndJob records the job's terminal status and timestamp.
func (s *Store) EndJob(id, status string) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET ended_at = $1, status = $2 WHERE id = $3`,
		time.Now().UTC(), status, id,
	)
	return err
}

// CreateStage inserts a completed stage execution.
func (s *Store) CreateStage(st StageRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO stages (id, job_id, name, chunk_index, started_at, duration_ms, status, detail, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		st.ID, st.JobID, st.Name, st.ChunkIndex, st.StartedAt.UTC(),
		st.DurationMs, st.Status, st.Detail, st.Error,
	)
	return err
}

// ListJobs returns job records ordered newest first.
func (s *Store) ListJobs(limit, offset int) ([]JobRecord, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(
		`SELECT id, input_path, title, preset, started_at, ended_at, status
		 FROM jobs ORDER BY started_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		var endedAt sql.NullTime
		if err = rows.Scan(&j.ID, &j.InputPath, &j.Title, &j.Preset, &j.StartedAt, &endedAt, &j.Status); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			j.EndedAt = &endedAt.Time
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

// GetJobStages returns every stage recorded for a job, oldest first.
func (s *Store) GetJobStages(jobID string) ([]StageRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, job_id, name, chunk_index, started_at, duration_ms, status, detail, error_msg
		 FROM stages WHERE job_id = $1 ORDER BY started_at ASC`,
		jobID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []StageRecord
	for rows.Next() {
		var st StageRecord
		var chunkIndex sql.NullInt64
		if err = rows.Scan(&st.ID, &st.JobID, &st.Name, &chunkIndex, &st.StartedAt, &st.DurationMs, &st.Status, &st.Detail, &st.Error); err != nil {
			return nil, err
		}
		if chunkIndex.Valid {
			v := int(chunkIndex.Int64)
			st.ChunkIndex = &v
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}
