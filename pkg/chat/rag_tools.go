package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"google.golang.org/adk/agent"
	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/mikeboe/research-loop/pkg/vectorstore"
)

const defaultTopK = 5

// FindingIndex is the read side of the findings collection.
type FindingIndex interface {
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter map[string]any) ([]vectorstore.SimilaritySearchResult, error)
	Query(ctx context.Context, filter map[string]any) ([]vectorstore.Document, error)
}

// QueryEmbedder embeds search queries.
type QueryEmbedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// RagToolset exposes the indexed research findings to the chat agent and
// to the MCP endpoint.
type RagToolset struct {
	Index    FindingIndex
	Embedder QueryEmbedder
	Logger   *slog.Logger
}

func NewRagToolset(index FindingIndex, embedder QueryEmbedder) *RagToolset {
	return &RagToolset{Index: index, Embedder: embedder, Logger: slog.Default()}
}

func (t *RagToolset) Name() string {
	return "findings_tools"
}

func (t *RagToolset) Tools(ctx agent.ReadonlyContext) ([]tool.Tool, error) {
	searchTool, err := functiontool.New[SearchFindingsArgs, SearchFindingsResp](
		functiontool.Config{
			Name:        "search_findings",
			Description: "Semantic search over the findings of past research runs.",
		},
		func(ctx tool.Context, args SearchFindingsArgs) (SearchFindingsResp, error) {
			return t.SearchFindings(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create search tool: %w", err)
	}

	bySourceTool, err := functiontool.New[FindSourceArgs, FindSourceResp](
		functiontool.Config{
			Name:        "find_findings_by_source",
			Description: "Find every finding that cites a specific source URL.",
		},
		func(ctx tool.Context, args FindSourceArgs) (FindSourceResp, error) {
			return t.FindFindingsBySource(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_source tool: %w", err)
	}

	byMetadataTool, err := functiontool.New[FindMetadataArgs, FindMetadataResp](
		functiontool.Config{
			Name:        "find_findings_by_metadata",
			Description: "Find findings using logical filters ($and, $or, $not) on metadata such as job_id, phase, question or source.",
		},
		func(ctx tool.Context, args FindMetadataArgs) (FindMetadataResp, error) {
			return t.FindFindingsByMetadata(ctx, args)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create find_by_metadata tool: %w", err)
	}

	return []tool.Tool{searchTool, bySourceTool, byMetadataTool}, nil
}

type SearchFindingsArgs struct {
	Query  string `json:"query" jsonschema:"the search query"`
	TopK   int    `json:"topK,omitempty" jsonschema:"number of results to return (default 5)"`
	JobID  string `json:"job_id,omitempty" jsonschema:"restrict the search to one research job"`
	Source string `json:"source,omitempty" jsonschema:"restrict the search to findings citing this URL"`
}

type SearchFindingsResp struct {
	Results string `json:"results"`
}

func (t *RagToolset) SearchFindings(ctx context.Context, args SearchFindingsArgs) (SearchFindingsResp, error) {
	if args.TopK <= 0 {
		args.TopK = defaultTopK
	}
	t.Logger.Info("Search findings", "query", args.Query, "topK", args.TopK, "job_id", args.JobID, "source", args.Source)

	queryEmbedding, err := t.Embedder.EmbedText(ctx, args.Query)
	if err != nil {
		return SearchFindingsResp{}, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	filter := map[string]any{}
	if args.JobID != "" {
		filter["job_id"] = args.JobID
	}
	if args.Source != "" {
		for k, v := range vectorstore.SourceFilter(args.Source) {
			filter[k] = v
		}
	}

	results, err := t.Index.SimilaritySearch(ctx, queryEmbedding, args.TopK, filter)
	if err != nil {
		return SearchFindingsResp{}, fmt.Errorf("failed to search: %w", err)
	}

	docs := make([]vectorstore.Document, 0, len(results))
	for _, r := range results {
		docs = append(docs, r.Document)
	}
	return SearchFindingsResp{Results: formatDocuments(docs)}, nil
}

type FindSourceArgs struct {
	Source string `json:"source" jsonschema:"the source URL"`
}

type FindSourceResp struct {
	Content string `json:"content"`
}

func (t *RagToolset) FindFindingsBySource(ctx context.Context, args FindSourceArgs) (FindSourceResp, error) {
	docs, err := t.Index.Query(ctx, vectorstore.SourceFilter(args.Source))
	if err != nil {
		return FindSourceResp{}, fmt.Errorf("failed to find findings: %w", err)
	}
	return FindSourceResp{Content: formatDocuments(docs)}, nil
}

type FindMetadataArgs struct {
	Filter map[string]any `json:"filter" jsonschema:"JSON filter object with logical operators ($and, $or, $not)"`
}

type FindMetadataResp struct {
	Content string `json:"content"`
}

func (t *RagToolset) FindFindingsByMetadata(ctx context.Context, args FindMetadataArgs) (FindMetadataResp, error) {
	docs, err := t.Index.Query(ctx, args.Filter)
	if err != nil {
		return FindMetadataResp{}, fmt.Errorf("failed to find findings: %w", err)
	}
	return FindMetadataResp{Content: formatDocuments(docs)}, nil
}

// formatDocuments renders chunks for the model: source and content first,
// then the remaining metadata in key order.
func formatDocuments(docs []vectorstore.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		source := "unknown"
		if s, ok := doc.Metadata["source"].(string); ok && s != "" {
			source = s
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "[Source]: %s\n[Content]: %s", source, doc.Content)

		keys := make([]string, 0, len(doc.Metadata))
		for k := range doc.Metadata {
			if k != "source" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n[%s]: %v", k, doc.Metadata[k])
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}
