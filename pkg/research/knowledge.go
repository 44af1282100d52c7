package research

import (
	"context"
	"fmt"

	"github.com/mikeboe/research-loop/pkg/searchutil"
)

const knowledgeSeparator = "\n\n\n New: \n"

// AppendKnowledge extends the knowledge with an analysis and the links it was built from.
func AppendKnowledge(knowledge string, analysis Analysis, links []string) string {
	return knowledge + knowledgeSeparator + analysis.String() + "\n" + searchutil.FormatLinks(links)
}

// KnowledgeWindow returns the trailing limit characters of the knowledge.
// Truncation works on runes so the window stays valid UTF-8.
func KnowledgeWindow(knowledge string, limit int) string {
	if limit <= 0 {
		return knowledge
	}
	runes := []rune(knowledge)
	if len(runes) <= limit {
		return knowledge
	}
	return string(runes[len(runes)-limit:])
}

func buildCompressionPrompt(knowledge, query, today string) string {
	return fmt.Sprintf(`First provide a high-quality 1 page explanation based on sources (Date today: %s). Keep citations and source links directly in their text position. Never make up sources. Then provide an exact high-quality one sentence-long answer to the query.

Knowledge: %s
Query: %s

Format: text summary`, today, knowledge, query)
}

// compressKnowledge replaces the knowledge with a model-written summary.
func (e *ResearchEngine) compressKnowledge(ctx context.Context, knowledge, query string) (string, error) {
	e.report("Compressing and summarizing knowledge...", nil, nil)

	summary, err := e.invoke(ctx, buildCompressionPrompt(knowledge, query, e.now().Format("2006-01-02")))
	if err != nil {
		return "", fmt.Errorf("knowledge compression failed: %w", err)
	}
	e.Logger.Info("Compressed knowledge", "before", len(knowledge), "after", len(summary))

	e.report("Knowledge compression complete", nil, nil)
	return summary, nil
}
