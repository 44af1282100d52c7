package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-loop/pkg/vectorstore"
)

type fakeIndex struct {
	results    []vectorstore.SimilaritySearchResult
	docs       []vectorstore.Document
	err        error
	lastTopK   int
	lastFilter map[string]any
}

func (f *fakeIndex) SimilaritySearch(_ context.Context, _ []float32, topK int, filter map[string]any) ([]vectorstore.SimilaritySearchResult, error) {
	f.lastTopK = topK
	f.lastFilter = filter
	return f.results, f.err
}

func (f *fakeIndex) Query(_ context.Context, filter map[string]any) ([]vectorstore.Document, error) {
	f.lastFilter = filter
	return f.docs, f.err
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

func TestFormatDocuments(t *testing.T) {
	docs := []vectorstore.Document{
		{Content: "Paris is the capital.", Metadata: map[string]any{"source": "https://a.example", "phase": "Follow-up 0.1", "job_id": "j1"}},
		{Content: "No source here."},
	}

	got := formatDocuments(docs)

	assert.Equal(t,
		"[Source]: https://a.example\n[Content]: Paris is the capital.\n[job_id]: j1\n[phase]: Follow-up 0.1"+
			"\n\n"+
			"[Source]: unknown\n[Content]: No source here.",
		got)
}

func TestSearchFindings(t *testing.T) {
	index := &fakeIndex{results: []vectorstore.SimilaritySearchResult{
		{Document: vectorstore.Document{Content: "chunk", Metadata: map[string]any{"source": "https://b.example"}}, Score: 0.9},
	}}
	tools := NewRagToolset(index, fakeEmbedder{})

	resp, err := tools.SearchFindings(context.Background(), SearchFindingsArgs{Query: "capital", JobID: "j1"})
	require.NoError(t, err)

	assert.Equal(t, "[Source]: https://b.example\n[Content]: chunk", resp.Results)
	assert.Equal(t, defaultTopK, index.lastTopK)
	assert.Equal(t, map[string]any{"job_id": "j1"}, index.lastFilter)

	_, err = tools.SearchFindings(context.Background(), SearchFindingsArgs{Query: "capital", Source: "https://b.example"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"sources": []any{"https://b.example"}}, index.lastFilter)
}

func TestSearchFindingsErrors(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		tools := NewRagToolset(&fakeIndex{}, fakeEmbedder{err: errors.New("quota")})
		_, err := tools.SearchFindings(context.Background(), SearchFindingsArgs{Query: "q"})
		assert.ErrorContains(t, err, "quota")
	})

	t.Run("index", func(t *testing.T) {
		tools := NewRagToolset(&fakeIndex{err: errors.New("db down")}, fakeEmbedder{})
		_, err := tools.SearchFindings(context.Background(), SearchFindingsArgs{Query: "q", TopK: 3})
		assert.ErrorContains(t, err, "db down")
	})
}

func TestFindFindingsBySourceAndMetadata(t *testing.T) {
	index := &fakeIndex{docs: []vectorstore.Document{{Content: "c", Metadata: map[string]any{"source": "s"}}}}
	tools := NewRagToolset(index, fakeEmbedder{})

	bySource, err := tools.FindFindingsBySource(context.Background(), FindSourceArgs{Source: "s"})
	require.NoError(t, err)
	assert.Equal(t, "[Source]: s\n[Content]: c", bySource.Content)
	assert.Equal(t, map[string]any{"sources": []any{"s"}}, index.lastFilter)

	filter := map[string]any{"$or": []any{map[string]any{"phase": "Follow-up 0.1"}}}
	byMeta, err := tools.FindFindingsByMetadata(context.Background(), FindMetadataArgs{Filter: filter})
	require.NoError(t, err)
	assert.Equal(t, bySource.Content, byMeta.Content)
	assert.Equal(t, filter, index.lastFilter)
}
