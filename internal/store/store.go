package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zixuanli/edge-sim/backend/internal/model/job"
)

var (
	ErrDuplicateJob = errors.New("job id already exists")
	ErrJobNotFound  = errors.New("job not found")
)

// Store persists the small durable state the core owns: session roles,
// jobs, and the append-only step log.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the sqlite database at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite allows a single writer; keep the pool at one connection so
	// concurrent sessions and jobs serialize on the driver, not on errors.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			persona    TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			persona    TEXT NOT NULL,
			message    TEXT NOT NULL,
			mode       TEXT NOT NULL,
			status     TEXT NOT NULL,
			output     TEXT,
			error      TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS job_steps (
			job_id      TEXT NOT NULL,
			name        TEXT NOT NULL,
			result      TEXT NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (job_id, name)
		)`,
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
	}
	return nil
}

// GetSessionPersona returns the persisted persona for a session, or ok=false
// when the session has never been seen.
func (s *Store) GetSessionPersona(sessionID string) (string, bool, error) {
	var persona string
	err := s.db.QueryRow(`SELECT persona FROM sessions WHERE id = ?`, sessionID).Scan(&persona)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load session persona: %w", err)
	}
	return persona, true, nil
}

// SaveSessionPersona upserts the current persona of a session.
func (s *Store) SaveSessionPersona(sessionID, persona string) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, persona, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET persona = excluded.persona, updated_at = excluded.updated_at`,
		sessionID, persona, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save session persona: %w", err)
	}
	return nil
}

// CreateJob registers a new job in status queued. A reused id fails with
// ErrDuplicateJob and leaves the existing job untouched.
func (s *Store) CreateJob(id string, params job.Params) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, session_id, persona, message, mode, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, params.SessionID, params.Persona, params.UserMessage, string(params.Mode),
		string(job.StatusQueued), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateJob
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJob loads a job with its recorded steps.
func (s *Store) GetJob(id string) (job.State, error) {
	var (
		state  job.State
		mode   string
		status string
		output sql.NullString
		errMsg sql.NullString
	)

	err := s.db.QueryRow(`
		SELECT id, session_id, persona, message, mode, status, output, error, created_at, updated_at
		FROM jobs WHERE id = ?`, id).Scan(
		&state.ID, &state.Params.SessionID, &state.Params.Persona, &state.Params.UserMessage,
		&mode, &status, &output, &errMsg, &state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return job.State{}, ErrJobNotFound
	}
	if err != nil {
		return job.State{}, fmt.Errorf("load job: %w", err)
	}

	state.Params.Mode = job.Mode(mode)
	state.Status = job.Status(status)
	if errMsg.Valid {
		state.Error = errMsg.String
	}
	if output.Valid && output.String != "" {
		var out job.Output
		if err := json.Unmarshal([]byte(output.String), &out); err != nil {
			return job.State{}, fmt.Errorf("decode job output: %w", err)
		}
		state.Output = &out
	}

	steps, err := s.listSteps(id)
	if err != nil {
		return job.State{}, err
	}
	state.Steps = steps
	return state, nil
}

// ListJobsByStatus returns the ids of jobs currently in any of the given states.
func (s *Store) ListJobsByStatus(statuses ...job.Status) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, 0, len(statuses))
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.Query(
		`SELECT id FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkJobRunning transitions a job to running unless it is already terminal.
func (s *Store) MarkJobRunning(id string) error {
	return s.updateStatus(id, job.StatusRunning, nil, "")
}

// MarkJobComplete records the final output and transitions to complete.
func (s *Store) MarkJobComplete(id string, output job.Output) error {
	return s.updateStatus(id, job.StatusComplete, &output, "")
}

// MarkJobErrored records the failure detail and transitions to errored.
func (s *Store) MarkJobErrored(id string, detail string) error {
	return s.updateStatus(id, job.StatusErrored, nil, detail)
}

func (s *Store) updateStatus(id string, status job.Status, output *job.Output, detail string) error {
	var outJSON sql.NullString
	if output != nil {
		data, err := json.Marshal(output)
		if err != nil {
			return fmt.Errorf("encode job output: %w", err)
		}
		outJSON = sql.NullString{String: string(data), Valid: true}
	}

	var errVal sql.NullString
	if detail != "" {
		errVal = sql.NullString{String: detail, Valid: true}
	}

	// Terminal states are final: the guard refuses to move a job out of
	// complete or errored.
	res, err := s.db.Exec(`
		UPDATE jobs SET status = ?, output = ?, error = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)`,
		string(status), outJSON, errVal, time.Now().UTC(), id,
		string(job.StatusComplete), string(job.StatusErrored))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, getErr := s.GetJob(id); errors.Is(getErr, ErrJobNotFound) {
			return ErrJobNotFound
		}
	}
	return nil
}

// GetStep returns the recorded result for (jobID, name) if one exists.
func (s *Store) GetStep(jobID, name string) (job.StepRecord, bool, error) {
	var rec job.StepRecord
	err := s.db.QueryRow(`
		SELECT name, result, recorded_at FROM job_steps WHERE job_id = ? AND name = ?`,
		jobID, name).Scan(&rec.Name, &rec.Result, &rec.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return job.StepRecord{}, false, nil
	}
	if err != nil {
		return job.StepRecord{}, false, fmt.Errorf("load step: %w", err)
	}
	return rec, true, nil
}

// RecordStep appends a step result to the log. The first write for a
// (jobID, name) pair wins; later writes are ignored, keeping records immutable.
func (s *Store) RecordStep(jobID, name, result string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO job_steps (job_id, name, result, recorded_at)
		VALUES (?, ?, ?, ?)`,
		jobID, name, result, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record step: %w", err)
	}
	return nil
}

func (s *Store) listSteps(jobID string) ([]job.StepRecord, error) {
	rows, err := s.db.Query(`
		SELECT name, result, recorded_at FROM job_steps
		WHERE job_id = ? ORDER BY recorded_at`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []job.StepRecord
	for rows.Next() {
		var rec job.StepRecord
		if err := rows.Scan(&rec.Name, &rec.Result, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		steps = append(steps, rec)
	}
	return steps, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
