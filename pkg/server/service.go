package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mikeboe/research-loop/pkg/report"
	"github.com/mikeboe/research-loop/pkg/research"
)

var ErrInvalidRequest = errors.New("invalid research request")

// EngineFactory builds a research engine for one job. logger is the job's
// logger; everything the engine logs should reach it.
type EngineFactory func(cfg research.Config, logger *slog.Logger) *research.ResearchEngine

// Reporter turns the findings of a job into a report.
type Reporter interface {
	Generate(ctx context.Context, findings []research.Finding, query string) *report.Report
}

// ReporterFactory builds the reporter of one job from the job's config and logger.
type ReporterFactory func(cfg research.Config, logger *slog.Logger) Reporter

// Service runs research jobs in the background and records their progress.
type Service struct {
	Store     Store
	Defaults  research.Config
	NewEngine EngineFactory
	// Indexer and NewReporter are optional.
	Indexer     *Indexer
	NewReporter ReporterFactory
	Logger      *slog.Logger

	wg sync.WaitGroup
}

func NewService(store Store, defaults research.Config, newEngine EngineFactory) *Service {
	return &Service{
		Store:     store,
		Defaults:  defaults,
		NewEngine: newEngine,
		Logger:    slog.Default(),
	}
}

type CreateJobRequest struct {
	Query                 string `json:"query"`
	Iterations            int    `json:"iterations,omitempty"`
	QuestionsPerIteration int    `json:"questions_per_iteration,omitempty"`
	KnowledgeAccumulation string `json:"knowledge_accumulation,omitempty"`
	Report                bool   `json:"report,omitempty"`
}

func (s *Service) jobConfig(req CreateJobRequest) (JobConfig, error) {
	cfg := JobConfig{
		Iterations:            s.Defaults.MaxIterations,
		QuestionsPerIteration: s.Defaults.QuestionsPerIteration,
		KnowledgeAccumulation: string(s.Defaults.KnowledgeAccumulation),
		Report:                req.Report,
	}
	if req.Iterations < 0 || req.QuestionsPerIteration < 0 {
		return cfg, fmt.Errorf("%w: counts must be positive", ErrInvalidRequest)
	}
	if req.Iterations > 0 {
		cfg.Iterations = req.Iterations
	}
	if req.QuestionsPerIteration > 0 {
		cfg.QuestionsPerIteration = req.QuestionsPerIteration
	}
	if req.KnowledgeAccumulation != "" {
		cfg.KnowledgeAccumulation = req.KnowledgeAccumulation
	}
	if cfg.KnowledgeAccumulation != "" {
		policy, err := research.ParseKnowledgeAccumulation(cfg.KnowledgeAccumulation)
		if err != nil {
			return cfg, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
		cfg.KnowledgeAccumulation = string(policy)
	}
	return cfg, nil
}

// CreateJob stores a pending job and starts researching it in the background.
func (s *Service) CreateJob(ctx context.Context, req CreateJobRequest) (*Job, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidRequest)
	}
	cfg, err := s.jobConfig(req)
	if err != nil {
		return nil, err
	}

	job, err := s.Store.CreateJob(ctx, req.Query, cfg)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runWorker(job.ID, job.Query, cfg)
	}()

	return job, nil
}

func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return s.Store.GetJob(ctx, id)
}

func (s *Service) ListJobs(ctx context.Context) ([]Job, error) {
	return s.Store.ListJobs(ctx)
}

func (s *Service) GetJobLogs(ctx context.Context, id uuid.UUID) ([]LogEntry, error) {
	if _, err := s.Store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.GetJobLogs(ctx, id)
}

func (s *Service) GetFindings(ctx context.Context, id uuid.UUID) ([]research.Finding, error) {
	if _, err := s.Store.GetJob(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.GetFindings(ctx, id)
}

// Wait blocks until every started job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) runWorker(jobID uuid.UUID, query string, cfg JobConfig) {
	ctx := context.Background()
	dbLogger := slog.New(NewDBLogHandler(s.Store, jobID, s.logger().Handler())).With("job_id", jobID.String())

	if err := s.Store.UpdateStatus(ctx, jobID, StatusRunning); err != nil {
		s.logger().Error("Failed to mark job running", "job_id", jobID, "error", err)
	}

	researchCfg := s.Defaults
	researchCfg.MaxIterations = cfg.Iterations
	researchCfg.QuestionsPerIteration = cfg.QuestionsPerIteration
	researchCfg.KnowledgeAccumulation = research.KnowledgeAccumulation(cfg.KnowledgeAccumulation)
	researchCfg.OutputDir = filepath.Join(s.Defaults.OutputDir, jobID.String())

	engine := s.NewEngine(researchCfg, dbLogger)
	engine.Logger = dbLogger
	engine.Progress = research.SlogProgress(dbLogger)
	engine.OnCheckpoint = func(snap research.Snapshot) {
		if err := s.Store.SaveState(ctx, jobID, snap); err != nil {
			dbLogger.Error("Failed to save state to DB", "error", err)
		}
		if err := s.Store.SaveFindings(ctx, jobID, snap.Findings); err != nil {
			dbLogger.Error("Failed to save findings to DB", "error", err)
		}
	}

	result, err := engine.Run(ctx, query)
	if err != nil {
		s.failJob(ctx, dbLogger, jobID, fmt.Sprintf("Research failed: %v", err))
		return
	}

	if s.Indexer != nil {
		if _, err := s.Indexer.IndexFindings(ctx, jobID.String(), query, result.Findings); err != nil {
			dbLogger.Error("Failed to index findings", "error", err)
		}
	}

	outcome := JobOutcome{Summary: result.FormattedFindings, OutputPath: result.OutputPath}
	if cfg.Report && s.NewReporter != nil {
		dbLogger.Info("Generating report", "findings", len(result.Findings))
		rep := s.NewReporter(researchCfg, dbLogger).Generate(ctx, result.Findings, query)
		if rep.Failed() {
			dbLogger.Error("Report generation failed", "error", rep.Metadata.Error)
			outcome.Report = rep.Content
		} else {
			outcome.Report = rep.Markdown()
		}
	}

	if err := s.Store.CompleteJob(ctx, jobID, outcome); err != nil {
		dbLogger.Error("Failed to save final result to DB", "error", err)
		return
	}
	dbLogger.Info("Research job completed", "percent", 100)
}

func (s *Service) failJob(ctx context.Context, logger *slog.Logger, jobID uuid.UUID, reason string) {
	logger.Error(reason)
	if err := s.Store.FailJob(ctx, jobID, reason); err != nil {
		s.logger().Error("Failed to mark job failed", "job_id", jobID, "error", err)
	}
}
