package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/research-loop/pkg/database"
	"github.com/mikeboe/research-loop/pkg/research"
)

const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var ErrJobNotFound = errors.New("research job not found")

// JobConfig is the per-job override of the research configuration.
type JobConfig struct {
	Iterations            int    `json:"iterations"`
	QuestionsPerIteration int    `json:"questions_per_iteration"`
	KnowledgeAccumulation string `json:"knowledge_accumulation"`
	Report                bool   `json:"report"`
}

type Job struct {
	ID         uuid.UUID `json:"id"`
	Query      string    `json:"query"`
	Status     string    `json:"status"`
	Config     JobConfig `json:"config"`
	Summary    *string   `json:"summary,omitempty"`
	Report     *string   `json:"report,omitempty"`
	OutputPath *string   `json:"output_path,omitempty"`
	Error      *string   `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// JobOutcome is stored when a job completes.
type JobOutcome struct {
	Summary    string
	Report     string
	OutputPath string
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Percent   *int            `json:"percent,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
}

// Store persists jobs, their progress log and their findings.
type Store interface {
	CreateJob(ctx context.Context, query string, cfg JobConfig) (*Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context) ([]Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	SaveState(ctx context.Context, id uuid.UUID, state research.Snapshot) error
	CompleteJob(ctx context.Context, id uuid.UUID, outcome JobOutcome) error
	FailJob(ctx context.Context, id uuid.UUID, reason string) error
	InsertLog(ctx context.Context, jobID uuid.UUID, entry LogEntry) error
	GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error)
	SaveFindings(ctx context.Context, jobID uuid.UUID, findings []research.Finding) error
	GetFindings(ctx context.Context, jobID uuid.UUID) ([]research.Finding, error)
}

// PGStore is the Postgres Store backed by the tables of database.InitSchema.
type PGStore struct {
	DB *database.PostgresDB
}

func NewPGStore(db *database.PostgresDB) *PGStore {
	return &PGStore{DB: db}
}

const jobColumns = `id, query, status, config, summary, report, output_path, error, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	var (
		job       Job
		configRaw []byte
	)
	err := row.Scan(&job.ID, &job.Query, &job.Status, &configRaw, &job.Summary, &job.Report,
		&job.OutputPath, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job config: %w", err)
		}
	}
	return &job, nil
}

func (s *PGStore) CreateJob(ctx context.Context, query string, cfg JobConfig) (*Job, error) {
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}

	job, err := scanJob(s.DB.Pool.QueryRow(ctx, `
		INSERT INTO research_jobs (id, query, status, config)
		VALUES ($1, $2, $3, $4)
		RETURNING `+jobColumns,
		uuid.New(), query, StatusPending, configJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (s *PGStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(s.DB.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (s *PGStore) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT 50`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (s *PGStore) exec(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	tag, err := s.DB.Pool.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if err := s.exec(ctx, id, `UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1`, status); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func (s *PGStore) SaveState(ctx context.Context, id uuid.UUID, state research.Snapshot) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.exec(ctx, id, `UPDATE research_jobs SET state = $2, updated_at = NOW() WHERE id = $1`, stateJSON); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

func (s *PGStore) CompleteJob(ctx context.Context, id uuid.UUID, outcome JobOutcome) error {
	err := s.exec(ctx, id, `
		UPDATE research_jobs
		SET status = $2, summary = $3, report = NULLIF($4, ''), output_path = $5, updated_at = NOW()
		WHERE id = $1`,
		StatusCompleted, outcome.Summary, outcome.Report, outcome.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (s *PGStore) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.exec(ctx, id, `UPDATE research_jobs SET status = $2, error = $3, updated_at = NOW() WHERE id = $1`, StatusFailed, reason); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (s *PGStore) InsertLog(ctx context.Context, jobID uuid.UUID, entry LogEntry) error {
	_, err := s.DB.Pool.Exec(ctx, `
		INSERT INTO research_logs (job_id, timestamp, level, message, percent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		jobID, entry.Timestamp, entry.Level, entry.Message, entry.Percent, []byte(entry.Metadata))
	if err != nil {
		return fmt.Errorf("failed to insert log: %w", err)
	}
	return nil
}

func (s *PGStore) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, percent, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Percent, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// SaveFindings stores the findings in order. Findings already stored for the
// same phase are kept, so every checkpoint can hand over the full list.
func (s *PGStore) SaveFindings(ctx context.Context, jobID uuid.UUID, findings []research.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, f := range findings {
		docs, err := json.Marshal(f.Documents)
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		results, err := json.Marshal(f.SearchResults)
		if err != nil {
			return fmt.Errorf("failed to marshal search results: %w", err)
		}
		batch.Queue(`
			INSERT INTO research_findings (job_id, position, phase, question, content, documents, search_results)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (job_id, phase) DO NOTHING`,
			jobID, i, f.Phase, f.Question, f.Content, docs, results)
	}

	br := s.DB.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range findings {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save finding: %w", err)
		}
	}
	return nil
}

func (s *PGStore) GetFindings(ctx context.Context, jobID uuid.UUID) ([]research.Finding, error) {
	rows, err := s.DB.Pool.Query(ctx, `
		SELECT phase, question, content, documents, search_results
		FROM research_findings
		WHERE job_id = $1
		ORDER BY position ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}
	defer rows.Close()

	var findings []research.Finding
	for rows.Next() {
		var (
			f                research.Finding
			docs, resultsRaw []byte
		)
		if err := rows.Scan(&f.Phase, &f.Question, &f.Content, &docs, &resultsRaw); err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}
		if len(docs) > 0 {
			if err := json.Unmarshal(docs, &f.Documents); err != nil {
				return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
			}
		}
		if len(resultsRaw) > 0 {
			if err := json.Unmarshal(resultsRaw, &f.SearchResults); err != nil {
				return nil, fmt.Errorf("failed to unmarshal search results: %w", err)
			}
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
