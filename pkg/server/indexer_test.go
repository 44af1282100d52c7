package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-loop/pkg/research"
	"github.com/mikeboe/research-loop/pkg/vectorstore"
)

func TestIndexFindings(t *testing.T) {
	writer := &fakeVectorWriter{}
	ix := NewIndexer(fakeSplitter{}, fakeBatchEmbedder{}, writer)
	ix.Logger = quietLogger()

	findings := []research.Finding{
		{
			Phase:     "Follow-up 0.1",
			Question:  "what is it",
			Content:   "It is a thing [1].",
			Documents: []research.Document{{Index: 1, URL: "https://a.example"}, {Index: 2, URL: "https://b.example"}},
		},
		{
			Phase:         "Follow-up 0.2",
			Question:      "why",
			Content:       "Because.",
			SearchResults: []research.SearchResult{{URL: "https://c.example"}},
		},
		{Phase: "Follow-up 0.3", Content: "  "},
	}

	n, err := ix.IndexFindings(context.Background(), "job-1", "topic", findings)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, writer.docs, 2)

	first := writer.docs[0]
	assert.Equal(t, "It is a thing [1].", first.Content)
	assert.Equal(t, []float32{0}, first.Embedding)
	assert.Equal(t, map[string]any{
		"job_id":   "job-1",
		"query":    "topic",
		"phase":    "Follow-up 0.1",
		"question": "what is it",
		"source":   "https://a.example",
		"sources":  []string{"https://a.example", "https://b.example"},
	}, first.Metadata)
	assert.Equal(t, "https://c.example", writer.docs[1].Metadata["source"])

	// Indexing again replaces the chunks of the job.
	n, err = ix.IndexFindings(context.Background(), "job-1", "topic", findings[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, writer.docs, 1)
}

func TestIndexFindingsEmbedError(t *testing.T) {
	writer := &fakeVectorWriter{}
	ix := NewIndexer(fakeSplitter{}, fakeBatchEmbedder{err: errors.New("quota exceeded")}, writer)

	_, err := ix.IndexFindings(context.Background(), "job-1", "topic", []research.Finding{{Content: "x"}})
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Empty(t, writer.docs)
}

func TestIndexFindingsEmbedErrorKeepsIndexedChunks(t *testing.T) {
	old := vectorstore.Document{Content: "earlier answer", Metadata: map[string]any{"job_id": "job-1"}}
	writer := &fakeVectorWriter{docs: []vectorstore.Document{old}}
	ix := NewIndexer(fakeSplitter{}, fakeBatchEmbedder{err: errors.New("quota exceeded")}, writer)
	ix.Logger = quietLogger()

	_, err := ix.IndexFindings(context.Background(), "job-1", "topic", []research.Finding{{Content: "new answer"}})
	require.ErrorContains(t, err, "quota exceeded")
	require.Len(t, writer.docs, 1)
	assert.Equal(t, "earlier answer", writer.docs[0].Content)
	assert.Empty(t, writer.deleted)
}
