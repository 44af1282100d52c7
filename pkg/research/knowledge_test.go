package research

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppendKnowledge(t *testing.T) {
	analysis := Analysis{
		Content:   "Paris is the capital [1].",
		Documents: []Document{{Index: 1, Title: "France", URL: "https://example.com/france"}},
	}

	got := AppendKnowledge("previous", analysis, []string{"https://example.com/france"})

	assert.True(t, strings.HasPrefix(got, "previous\n\n\n New: \n"))
	assert.Contains(t, got, "Paris is the capital [1].")
	assert.Contains(t, got, "[1] France (https://example.com/france)")
	assert.True(t, strings.HasSuffix(got, "1. https://example.com/france"))
}

func TestKnowledgeWindow(t *testing.T) {
	tests := []struct {
		name      string
		knowledge string
		limit     int
		want      string
	}{
		{name: "short", knowledge: "abc", limit: 10, want: "abc"},
		{name: "tail kept", knowledge: "abcdef", limit: 3, want: "def"},
		{name: "no limit", knowledge: "abcdef", limit: 0, want: "abcdef"},
		{name: "runes", knowledge: "añoñú", limit: 2, want: "ñú"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KnowledgeWindow(tt.knowledge, tt.limit))
		})
	}
}
