// Package citation answers a research question from search results, citing
// every statement with the index of the source it came from.
package citation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-loop/pkg/searchutil"
	"github.com/mikeboe/research-loop/pkg/types"
)

const maxDocumentChars = 4000

// Model is the part of llms.Model the handler needs.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type Handler struct {
	LLM    Model
	Logger *slog.Logger
}

func NewHandler(llm Model) *Handler {
	return &Handler{LLM: llm, Logger: slog.Default()}
}

// Documents numbers the results from 1 in their original order.
func Documents(results []types.SearchResult) []types.Document {
	docs := make([]types.Document, 0, len(results))
	for i, r := range results {
		content := strings.TrimSpace(r.Text())
		runes := []rune(content)
		if len(runes) > maxDocumentChars {
			content = string(runes[:maxDocumentChars])
		}
		docs = append(docs, types.Document{
			Index:   i + 1,
			Title:   strings.TrimSpace(r.Title),
			URL:     strings.TrimSpace(r.URL),
			Content: content,
		})
	}
	return docs
}

func formatSources(docs []types.Document) string {
	var b strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&b, "[%d] %s", d.Index, d.Title)
		if d.URL != "" {
			fmt.Fprintf(&b, " (%s)", d.URL)
		}
		b.WriteString("\n")
		b.WriteString(d.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func buildFollowupPrompt(question, knowledge, sources string) string {
	if strings.TrimSpace(knowledge) == "" {
		knowledge = "(none yet)"
	}
	return fmt.Sprintf(`Using the sources below and the previous knowledge, answer the question.
Cite every statement with the number of its source in square brackets, e.g. [1] or [2][3].
Only use the numbered sources. Never invent sources. Point out where sources contradict the previous knowledge.

Previous knowledge:
%s

Question: %s

Sources:
%s`, knowledge, question, sources)
}

// AnalyzeFollowup answers question from results given the knowledge window.
// Model failures and empty answers are logged and reported as a declined
// analysis (nil, nil) so a single question never aborts the research loop.
func (h *Handler) AnalyzeFollowup(ctx context.Context, question string, results []types.SearchResult, knowledge string) (*types.Analysis, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(results) == 0 {
		return nil, nil
	}

	docs := Documents(results)
	resp, err := h.LLM.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, buildFollowupPrompt(question, knowledge, formatSources(docs))),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("Follow-up analysis failed", "question", question, "error", err)
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		logger.Warn("Follow-up analysis returned no choices", "question", question)
		return nil, nil
	}

	content := searchutil.RemoveThinkTags(resp.Choices[0].Content)
	if content == "" {
		logger.Warn("Follow-up analysis returned empty content", "question", question)
		return nil, nil
	}

	return &types.Analysis{Content: content, Documents: docs}, nil
}
