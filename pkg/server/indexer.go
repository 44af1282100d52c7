package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-loop/pkg/research"
	"github.com/mikeboe/research-loop/pkg/vectorstore"
)

type Splitter interface {
	SplitText(text string) ([]string, error)
}

type BatchEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type VectorWriter interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	DeleteByJob(ctx context.Context, jobID string) (int64, error)
}

// Indexer chunks, embeds and stores the findings of a job so the chat agent
// and the MCP tools can search them.
type Indexer struct {
	Splitter Splitter
	Embedder BatchEmbedder
	Store    VectorWriter
	Logger   *slog.Logger
}

func NewIndexer(splitter Splitter, embedder BatchEmbedder, store VectorWriter) *Indexer {
	return &Indexer{Splitter: splitter, Embedder: embedder, Store: store, Logger: slog.Default()}
}

// IndexFindings replaces the indexed chunks of jobID with the chunks of
// findings and returns how many were stored.
func (ix *Indexer) IndexFindings(ctx context.Context, jobID, query string, findings []research.Finding) (int, error) {
	var docs []vectorstore.Document
	for _, f := range findings {
		chunks, err := ix.Splitter.SplitText(f.Content)
		if err != nil {
			return 0, fmt.Errorf("failed to split finding %s: %w", f.Phase, err)
		}
		metadata := findingMetadata(jobID, query, f)
		for _, chunk := range chunks {
			docs = append(docs, vectorstore.Document{Content: chunk, Metadata: metadata})
		}
	}

	if err := ix.embed(ctx, docs); err != nil {
		return 0, err
	}

	// Old chunks go only once the new ones are ready to be written.
	removed, err := ix.Store.DeleteByJob(ctx, jobID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		ix.Logger.Info("Removed previously indexed chunks", "job_id", jobID, "count", removed)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	if err := ix.Store.AddDocuments(ctx, docs); err != nil {
		return 0, err
	}
	ix.Logger.Info("Indexed findings", "job_id", jobID, "findings", len(findings), "chunks", len(docs))
	return len(docs), nil
}

func (ix *Indexer) embed(ctx context.Context, docs []vectorstore.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	embeddings, err := ix.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed findings: %w", err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("embedder returned %d embeddings for %d chunks", len(embeddings), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = embeddings[i]
	}
	return nil
}

// findingMetadata uses the first cited document as the source of the finding.
func findingMetadata(jobID, query string, f research.Finding) map[string]any {
	sources := make([]string, 0, len(f.Documents))
	for _, d := range f.Documents {
		if d.URL != "" {
			sources = append(sources, d.URL)
		}
	}
	if len(sources) == 0 {
		for _, r := range f.SearchResults {
			if r.URL != "" {
				sources = append(sources, r.URL)
			}
		}
	}

	metadata := map[string]any{
		"job_id":   jobID,
		"query":    query,
		"phase":    f.Phase,
		"question": f.Question,
		"sources":  sources,
	}
	if len(sources) > 0 {
		metadata["source"] = sources[0]
	}
	return metadata
}
