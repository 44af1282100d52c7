package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-loop/pkg/research"
	"github.com/mikeboe/research-loop/pkg/vectorstore"
)

// memStore is an in-memory Store.
type memStore struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*Job
	logs      map[uuid.UUID][]LogEntry
	findings  map[uuid.UUID][]research.Finding
	states    map[uuid.UUID][]research.Snapshot
	createErr error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:     map[uuid.UUID]*Job{},
		logs:     map[uuid.UUID][]LogEntry{},
		findings: map[uuid.UUID][]research.Finding{},
		states:   map[uuid.UUID][]research.Snapshot{},
	}
}

func (s *memStore) CreateJob(_ context.Context, query string, cfg JobConfig) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	now := time.Now()
	job := &Job{ID: uuid.New(), Query: query, Status: StatusPending, Config: cfg, CreatedAt: now, UpdatedAt: now}
	s.jobs[job.ID] = job
	copied := *job
	return &copied, nil
}

func (s *memStore) GetJob(_ context.Context, id uuid.UUID) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *memStore) ListJobs(context.Context) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, *j)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	return jobs, nil
}

func (s *memStore) update(id uuid.UUID, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(job)
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	return s.update(id, func(j *Job) { j.Status = status })
}

func (s *memStore) SaveState(_ context.Context, id uuid.UUID, state research.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = append(s.states[id], state)
	return nil
}

func (s *memStore) CompleteJob(_ context.Context, id uuid.UUID, outcome JobOutcome) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusCompleted
		j.Summary = &outcome.Summary
		j.OutputPath = &outcome.OutputPath
		if outcome.Report != "" {
			j.Report = &outcome.Report
		}
	})
}

func (s *memStore) FailJob(_ context.Context, id uuid.UUID, reason string) error {
	return s.update(id, func(j *Job) {
		j.Status = StatusFailed
		j.Error = &reason
	})
}

func (s *memStore) InsertLog(_ context.Context, jobID uuid.UUID, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = len(s.logs[jobID]) + 1
	s.logs[jobID] = append(s.logs[jobID], entry)
	return nil
}

func (s *memStore) GetJobLogs(_ context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]LogEntry(nil), s.logs[jobID]...), nil
}

// SaveFindings keeps the first finding stored per phase.
func (s *memStore) SaveFindings(_ context.Context, jobID uuid.UUID, findings []research.Finding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, f := range s.findings[jobID] {
		seen[f.Phase] = true
	}
	for _, f := range findings {
		if !seen[f.Phase] {
			seen[f.Phase] = true
			s.findings[jobID] = append(s.findings[jobID], f)
		}
	}
	return nil
}

func (s *memStore) GetFindings(_ context.Context, jobID uuid.UUID) ([]research.Finding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]research.Finding(nil), s.findings[jobID]...), nil
}

// stubLLM answers question prompts with two questions and anything else with a summary.
type stubLLM struct{}

func (stubLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	prompt := messages[0].Parts[0].(llms.TextContent).Text
	out := "compressed knowledge"
	if strings.Contains(prompt, "internet search questions") {
		out = "Q: first question\nQ: second question"
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

type stubSearcher struct {
	err error
}

func (s stubSearcher) Search(_ context.Context, query string) ([]research.SearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	slug := strings.ReplaceAll(query, " ", "-")
	return []research.SearchResult{{Title: query, URL: "https://example.com/" + slug, Snippet: "about " + query}}, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) AnalyzeFollowup(_ context.Context, question string, results []research.SearchResult, _ string) (*research.Analysis, error) {
	return &research.Analysis{
		Content:   fmt.Sprintf("Answer to %s [1]", question),
		Documents: []research.Document{{Index: 1, Title: results[0].Title, URL: results[0].URL, Content: results[0].Snippet}},
	}, nil
}

func stubEngines(searchErr error) EngineFactory {
	return func(cfg research.Config, _ *slog.Logger) *research.ResearchEngine {
		return research.NewEngine(cfg, stubLLM{}, stubSearcher{err: searchErr}, stubAnalyzer{})
	}
}

type fakeSplitter struct{}

func (fakeSplitter) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []string{text}, nil
}

type fakeBatchEmbedder struct {
	err error
}

func (e fakeBatchEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

type fakeVectorWriter struct {
	mu      sync.Mutex
	docs    []vectorstore.Document
	deleted []string
}

func (w *fakeVectorWriter) AddDocuments(_ context.Context, docs []vectorstore.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs = append(w.docs, docs...)
	return nil
}

func (w *fakeVectorWriter) DeleteByJob(_ context.Context, jobID string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deleted = append(w.deleted, jobID)
	var kept []vectorstore.Document
	var removed int64
	for _, d := range w.docs {
		if d.Metadata["job_id"] == jobID {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	w.docs = kept
	return removed, nil
}

var errSearchDown = errors.New("search backend down")
