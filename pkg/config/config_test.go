package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LLM_PROVIDER", "REASONING_MODEL", "LLM_TEMPERATURE", "LLM_MAX_TOKENS",
		"SEARCH_TOOL", "SEARCH_ITERATIONS", "QUESTIONS_PER_ITERATION",
		"KNOWLEDGE_ACCUMULATION", "CONTEXT_LIMIT", "OUTPUT_DIR", "PORT",
	} {
		t.Setenv(key, "")
	}
	t.Chdir(t.TempDir())

	cfg := Load()
	assert.Equal(t, "google", cfg.LLMProvider)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 15000, cfg.MaxTokens)
	assert.Equal(t, "auto", cfg.SearchTool)
	assert.Equal(t, 3, cfg.SearchIterations)
	assert.Equal(t, 3, cfg.QuestionsPerIteration)
	assert.Equal(t, "QUESTION", cfg.KnowledgeAccumulation)
	assert.Equal(t, 5000, cfg.ContextLimit)
	assert.Equal(t, "research_outputs", cfg.OutputDir)
	assert.Equal(t, "3000", cfg.Port)
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLM_PROVIDER", "Ollama")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("SEARCH_ITERATIONS", "5")
	t.Setenv("KNOWLEDGE_ACCUMULATION", "iteration")
	t.Setenv("FETCH_FULL_TEXT", "true")

	cfg := Load()
	assert.Equal(t, "ollama", cfg.LLMProvider)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 5, cfg.SearchIterations)
	assert.Equal(t, "ITERATION", cfg.KnowledgeAccumulation)
	assert.True(t, cfg.FetchFullText)
}

func TestGetEnvAsIntFallsBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	assert.Equal(t, 1000, getEnvAsInt("CHUNK_SIZE", 1000))
}
