package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-loop/pkg/searchutil"
)

// LanguageModel is the part of llms.Model the engine needs.
type LanguageModel interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Searcher runs one web search. An empty result is valid; an error aborts the run.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// Analyzer turns search results into a cited answer. A nil analysis with a nil
// error means the analyzer declined and the question contributes nothing.
type Analyzer interface {
	AnalyzeFollowup(ctx context.Context, question string, results []SearchResult, knowledge string) (*Analysis, error)
}

type ResearchEngine struct {
	Config    Config
	LLM       LanguageModel
	Searcher  Searcher
	Analyzer  Analyzer
	Persister *Persister
	Progress  ProgressObserver
	Logger    *slog.Logger
	// OnCheckpoint is called after the findings of an iteration were saved.
	OnCheckpoint func(Snapshot)
	// Now is the clock used for the dates in prompts.
	Now func() time.Time
}

func NewEngine(cfg Config, llm LanguageModel, searcher Searcher, analyzer Analyzer) *ResearchEngine {
	cfg = cfg.withDefaults()
	return &ResearchEngine{
		Config:    cfg,
		LLM:       llm,
		Searcher:  searcher,
		Analyzer:  analyzer,
		Persister: NewPersister(cfg.OutputDir),
		Logger:    slog.Default(),
		Now:       time.Now,
	}
}

func (e *ResearchEngine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// invoke sends a single human prompt and returns the text with reasoning blocks removed.
func (e *ResearchEngine) invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := e.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm returned no choices")
	}
	return searchutil.RemoveThinkTags(resp.Choices[0].Content), nil
}

func (e *ResearchEngine) validate() error {
	switch {
	case e.LLM == nil:
		return errors.New("research engine has no language model")
	case e.Searcher == nil:
		return errors.New("research engine has no searcher")
	case e.Analyzer == nil:
		return errors.New("research engine has no analyzer")
	case e.Config.MaxIterations <= 0:
		return fmt.Errorf("max iterations must be positive, got %d", e.Config.MaxIterations)
	case e.Config.QuestionsPerIteration <= 0:
		return fmt.Errorf("questions per iteration must be positive, got %d", e.Config.QuestionsPerIteration)
	}
	_, err := ParseKnowledgeAccumulation(string(e.Config.KnowledgeAccumulation))
	return err
}

// Run researches query for exactly Config.MaxIterations iterations. Questions
// without search results or without an analysis are skipped; any error from a
// collaborator aborts the run, leaving the last iteration checkpoint on disk.
func (e *ResearchEngine) Run(ctx context.Context, query string) (*Result, error) {
	e.Config = e.Config.withDefaults()
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
	if e.Persister == nil {
		e.Persister = NewPersister(e.Config.OutputDir)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}

	var (
		findings  []Finding
		knowledge string
		formatted string
		path      string
		history   = QuestionHistory{}
		total     = e.Config.MaxIterations
		policy    = e.Config.KnowledgeAccumulation
	)

	e.Logger.Info("Starting research loop", "query", query, "iterations", total, "accumulation", policy)
	e.report("Initializing research system", Percent(5), map[string]any{
		"phase":              "init",
		"iterations_planned": total,
	})

	iteration := 0
	for iteration < total {
		base := float64(iteration) / float64(total) * 100
		e.report(fmt.Sprintf("Starting iteration %d of %d", iteration+1, total), Percent(int(base)), map[string]any{
			"phase":     "iteration_start",
			"iteration": iteration + 1,
		})

		questions, err := e.generateQuestions(ctx, knowledge, query, history)
		if err != nil {
			return nil, err
		}
		history[iteration] = questions

		for idx, question := range questions {
			qBase := base + float64(idx+1)/float64(len(questions))*(100/float64(total))*0.5

			e.report(fmt.Sprintf("Searching for: %s", question), Percent(int(qBase)), map[string]any{
				"phase":          "search",
				"iteration":      iteration + 1,
				"question_index": idx + 1,
			})

			results, err := e.Searcher.Search(ctx, question)
			if err != nil {
				return nil, fmt.Errorf("search failed for %q: %w", question, err)
			}

			e.report(fmt.Sprintf("Found %d results for question: %s", len(results), question), Percent(int(qBase+2)), map[string]any{
				"phase":        "search_complete",
				"result_count": len(results),
			})
			if len(results) == 0 {
				e.Logger.Info("No search results, skipping question", "question", question)
				continue
			}

			e.report(fmt.Sprintf("Analyzing results for: %s", question), Percent(int(qBase+5)), map[string]any{
				"phase": "analysis",
			})

			analysis, err := e.Analyzer.AnalyzeFollowup(ctx, question, results, KnowledgeWindow(knowledge, e.Config.ContextLimit))
			if err != nil {
				return nil, fmt.Errorf("analysis failed for %q: %w", question, err)
			}
			if analysis == nil {
				e.Logger.Info("Analysis declined, skipping question", "question", question)
				continue
			}

			findings = append(findings, Finding{
				Phase:         PhaseLabel(iteration, idx+1),
				Content:       analysis.Content,
				Question:      question,
				SearchResults: results,
				Documents:     analysis.Documents,
			})

			if policy != AccumulateNone {
				knowledge = AppendKnowledge(knowledge, *analysis, searchutil.ExtractLinks(results))
			}
			if policy == AccumulateQuestion {
				e.report(fmt.Sprintf("Compress Knowledge for: %s", question), Percent(int(qBase)), map[string]any{
					"phase": "analysis",
				})
				if knowledge, err = e.compressKnowledge(ctx, knowledge, query); err != nil {
					return nil, err
				}
			}

			e.report(fmt.Sprintf("Analysis complete for question: %s", question), Percent(int(qBase+10)), map[string]any{
				"phase": "analysis_complete",
			})
		}

		iteration++

		if policy == AccumulateIteration {
			e.report(fmt.Sprintf("Compressing knowledge after iteration %d", iteration), Percent(int(float64(iteration)/float64(total)*100-5)), map[string]any{
				"phase": "knowledge_compression",
			})
			if knowledge, err = e.compressKnowledge(ctx, knowledge, query); err != nil {
				return nil, err
			}
		}

		e.report(fmt.Sprintf("Iteration %d complete", iteration), Percent(int(float64(iteration)/float64(total)*100)), map[string]any{
			"phase":     "iteration_complete",
			"iteration": iteration,
		})

		formatted, path, err = e.saveFindings(findings, knowledge, query, history)
		if err != nil {
			return nil, err
		}

		if e.OnCheckpoint != nil {
			e.OnCheckpoint(Snapshot{
				Query:      query,
				Iteration:  iteration,
				Max:        total,
				Knowledge:  knowledge,
				Findings:   findings,
				Questions:  history,
				OutputPath: path,
			})
		}
	}

	e.Logger.Info("Research complete", "findings", len(findings), "iterations", iteration)
	e.report("Research complete", Percent(95), map[string]any{"phase": "complete"})

	return &Result{
		Findings:          findings,
		Iterations:        iteration,
		Questions:         history,
		FormattedFindings: formatted,
		OutputPath:        path,
	}, nil
}

func (e *ResearchEngine) saveFindings(findings []Finding, knowledge, query string, history QuestionHistory) (string, string, error) {
	e.report("Saving research findings...", nil, nil)

	formatted, path, err := e.Persister.Save(findings, knowledge, query, history)
	if err != nil {
		return "", "", err
	}

	e.report("Research findings saved", nil, map[string]any{"filename": path})
	return formatted, path, nil
}
