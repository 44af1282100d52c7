package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// LLM
	LLMProvider     string
	ReasoningModel  string
	LLMBaseURL      string
	GoogleApiKey    string
	OpenAIApiKey    string
	AnthropicApiKey string
	Temperature     float64
	MaxTokens       int

	// Search
	SearchTool       string
	MaxSearchResults int
	MistralApiKey    string
	FetchFullText    bool

	// Research loop
	SearchIterations      int
	QuestionsPerIteration int
	KnowledgeAccumulation string
	ContextLimit          int
	OutputDir             string
	SearchesPerSection    int

	// Server
	DatabaseURL    string
	Port           string
	EmbeddingModel string
	CollectionName string
	ChunkSize      int
	ChunkOverlap   int
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "google")),
		ReasoningModel:  getEnv("REASONING_MODEL", "gemini-3-flash-preview"),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),
		GoogleApiKey:    getEnv("GOOGLE_API_KEY", ""),
		OpenAIApiKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicApiKey: getEnv("ANTHROPIC_API_KEY", ""),
		Temperature:     getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		MaxTokens:       getEnvAsInt("LLM_MAX_TOKENS", 15000),

		SearchTool:       strings.ToLower(getEnv("SEARCH_TOOL", "auto")),
		MaxSearchResults: getEnvAsInt("MAX_SEARCH_RESULTS", 10),
		MistralApiKey:    getEnv("MISTRAL_API_KEY", ""),
		FetchFullText:    getEnvAsBool("FETCH_FULL_TEXT", false),

		SearchIterations:      getEnvAsInt("SEARCH_ITERATIONS", 3),
		QuestionsPerIteration: getEnvAsInt("QUESTIONS_PER_ITERATION", 3),
		KnowledgeAccumulation: strings.ToUpper(getEnv("KNOWLEDGE_ACCUMULATION", "QUESTION")),
		ContextLimit:          getEnvAsInt("CONTEXT_LIMIT", 5000),
		OutputDir:             getEnv("OUTPUT_DIR", "research_outputs"),
		SearchesPerSection:    getEnvAsInt("SEARCHES_PER_SECTION", 2),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		Port:           getEnv("PORT", "3000"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		CollectionName: getEnv("COLLECTION_NAME", "research_findings"),
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvAsInt("CHUNK_OVERLAP", 200),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
