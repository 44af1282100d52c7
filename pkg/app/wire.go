// Package app assembles the research loop from the environment configuration.
// Both the CLI and the server build their engines through it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-loop/pkg/citation"
	"github.com/mikeboe/research-loop/pkg/clients"
	"github.com/mikeboe/research-loop/pkg/config"
	"github.com/mikeboe/research-loop/pkg/report"
	"github.com/mikeboe/research-loop/pkg/research"
	"github.com/mikeboe/research-loop/pkg/research/tools"
)

// ResearchConfig converts the environment configuration to a loop configuration.
func ResearchConfig(cfg *config.Config) (research.Config, error) {
	policy, err := research.ParseKnowledgeAccumulation(cfg.KnowledgeAccumulation)
	if err != nil {
		return research.Config{}, err
	}
	rc := research.Config{
		MaxIterations:         cfg.SearchIterations,
		QuestionsPerIteration: cfg.QuestionsPerIteration,
		KnowledgeAccumulation: policy,
		ContextLimit:          cfg.ContextLimit,
		OutputDir:             cfg.OutputDir,
	}
	if rc.MaxIterations <= 0 || rc.QuestionsPerIteration <= 0 {
		return research.Config{}, fmt.Errorf("SEARCH_ITERATIONS and QUESTIONS_PER_ITERATION must be positive, got %d and %d",
			rc.MaxIterations, rc.QuestionsPerIteration)
	}
	return rc, nil
}

// Stack holds the collaborators shared by every engine.
type Stack struct {
	LLM      research.LanguageModel
	Searcher research.Searcher
	Logger   *slog.Logger
}

func NewStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	llm, err := clients.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	llm.Logger = logger

	searcher, err := tools.New(cfg.SearchTool, tools.Options{
		MaxResults:    cfg.MaxSearchResults,
		MistralAPIKey: cfg.MistralApiKey,
		FetchFullText: cfg.FetchFullText,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	return &Stack{
		LLM:      llm,
		Searcher: searcher,
		Logger:   logger,
	}, nil
}

// Engine builds a research engine for rc. The engine and its citation
// handler log to logger, or to the stack logger when logger is nil.
func (s *Stack) Engine(rc research.Config, logger *slog.Logger) *research.ResearchEngine {
	if logger == nil {
		logger = s.Logger
	}
	analyzer := citation.NewHandler(s.LLM)
	analyzer.Logger = logger

	engine := research.NewEngine(rc, s.LLM, s.Searcher, analyzer)
	engine.Logger = logger
	return engine
}

// Reports builds a report generator whose section research runs with rc and
// the iteration count the generator asks for. Section findings are saved
// under rc.OutputDir.
func (s *Stack) Reports(rc research.Config, searchesPerSection int, logger *slog.Logger) *report.Generator {
	if logger == nil {
		logger = s.Logger
	}
	g := report.NewGenerator(s.LLM, func(iterations int) report.Researcher {
		sectionCfg := rc
		sectionCfg.MaxIterations = iterations
		return s.Engine(sectionCfg, logger)
	}, searchesPerSection)
	g.Logger = logger
	return g
}
