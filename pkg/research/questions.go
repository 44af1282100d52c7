package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/mikeboe/research-loop/pkg/searchutil"
)

// QuestionMarker prefixes every question line the model is asked to produce.
const QuestionMarker = "Q:"

// ParseQuestions keeps the lines of a model response that start with
// QuestionMarker, strips the marker and returns at most limit questions.
// Reasoning blocks are removed first. Free-form output yields an empty list.
func ParseQuestions(response string, limit int) []string {
	var questions []string
	for _, line := range strings.Split(searchutil.RemoveThinkTags(response), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, QuestionMarker) {
			continue
		}
		q := strings.TrimSpace(strings.TrimPrefix(line, QuestionMarker))
		if q == "" {
			continue
		}
		questions = append(questions, q)
		if limit > 0 && len(questions) == limit {
			break
		}
	}
	return questions
}

func buildQuestionPrompt(query, knowledge string, history QuestionHistory, n int, today string) string {
	format := fmt.Sprintf("Format: One question per line, e.g.\n%s question1\n%s question2", QuestionMarker, QuestionMarker)

	if len(history) == 0 {
		return fmt.Sprintf(`You will have follow up questions. First, identify if your knowledge is outdated (high chance).
Today: %s
Generate %d high-quality internet search questions to exactly answer: %s

%s`, today, n, query, format)
	}

	if strings.TrimSpace(knowledge) == "" {
		knowledge = "(empty)"
	}
	return fmt.Sprintf(`Critically reflect current knowledge (e.g., timeliness), what %d high-quality internet search questions remain unanswered to exactly answer the query?
Query: %s
Today: %s
Past questions:
%s
Knowledge: %s
Include questions that critically reflect current knowledge. Do not repeat past questions.

%s`, n, query, today, history.Render(), knowledge, format)
}

func (e *ResearchEngine) generateQuestions(ctx context.Context, knowledge, query string, history QuestionHistory) ([]string, error) {
	e.report("Generating follow-up questions...", nil, map[string]any{"iteration": len(history)})

	n := e.Config.QuestionsPerIteration
	prompt := buildQuestionPrompt(query, knowledge, history, n, e.now().Format("2006-01-02"))

	content, err := e.invoke(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("question generation failed: %w", err)
	}

	questions := ParseQuestions(content, n)
	if len(questions) == 0 {
		e.Logger.Warn("No questions recognized in model output", "iteration", len(history))
	}
	e.Logger.Info("Generated questions", "questions", questions)

	e.report(fmt.Sprintf("Generated %d follow-up questions", len(questions)), nil, map[string]any{"questions": questions})
	return questions, nil
}
