package research

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mikeboe/research-loop/pkg/types"
)

type (
	SearchResult    = types.SearchResult
	Document        = types.Document
	Analysis        = types.Analysis
	Finding         = types.Finding
	QuestionHistory = types.QuestionHistory
)

// PhaseLabel names the finding of the position-th (1-based) question of an iteration.
func PhaseLabel(iteration, position int) string { return types.PhaseLabel(iteration, position) }

// KnowledgeAccumulation selects when the running knowledge is extended and compressed.
type KnowledgeAccumulation string

const (
	// AccumulateNone never folds findings into the knowledge.
	AccumulateNone KnowledgeAccumulation = "NONE"
	// AccumulateQuestion appends and compresses after every finding.
	AccumulateQuestion KnowledgeAccumulation = "QUESTION"
	// AccumulateIteration appends after every finding and compresses once per iteration.
	AccumulateIteration KnowledgeAccumulation = "ITERATION"
)

var ErrUnknownAccumulation = errors.New("unknown knowledge accumulation")

// ParseKnowledgeAccumulation accepts the enum name in any case.
func ParseKnowledgeAccumulation(s string) (KnowledgeAccumulation, error) {
	switch v := KnowledgeAccumulation(strings.ToUpper(strings.TrimSpace(s))); v {
	case AccumulateNone, AccumulateQuestion, AccumulateIteration:
		return v, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAccumulation, s)
}

const (
	DefaultMaxIterations         = 3
	DefaultQuestionsPerIteration = 3
	DefaultContextLimit          = 5000
	DefaultOutputDir             = "research_outputs"
)

// Config holds runtime configuration of a research run
type Config struct {
	MaxIterations         int
	QuestionsPerIteration int
	KnowledgeAccumulation KnowledgeAccumulation
	ContextLimit          int
	OutputDir             string
}

// DefaultConfig mirrors the defaults of the environment configuration.
func DefaultConfig() Config {
	return Config{
		MaxIterations:         DefaultMaxIterations,
		QuestionsPerIteration: DefaultQuestionsPerIteration,
		KnowledgeAccumulation: AccumulateQuestion,
		ContextLimit:          DefaultContextLimit,
		OutputDir:             DefaultOutputDir,
	}
}

func (c Config) withDefaults() Config {
	if c.ContextLimit <= 0 {
		c.ContextLimit = DefaultContextLimit
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.KnowledgeAccumulation == "" {
		c.KnowledgeAccumulation = AccumulateQuestion
	}
	return c
}

// Result is returned by ResearchEngine.Run once every iteration has completed.
type Result struct {
	Findings          []Finding       `json:"findings"`
	Iterations        int             `json:"iterations"`
	Questions         QuestionHistory `json:"questions"`
	FormattedFindings string          `json:"formatted_findings"`
	OutputPath        string          `json:"output_path"`
}

// Snapshot is the loop state handed to OnCheckpoint at the end of each iteration.
type Snapshot struct {
	Query      string          `json:"query"`
	Iteration  int             `json:"iteration"`
	Max        int             `json:"max_iterations"`
	Knowledge  string          `json:"knowledge"`
	Findings   []Finding       `json:"findings"`
	Questions  QuestionHistory `json:"questions"`
	OutputPath string          `json:"output_path"`
}
