package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mikeboe/talent-scout/pkg/clients"
)

type Config struct {
	GoogleApiKey string
	DatabaseURL  string
	Port         string

	// Ordered fallback chain for planning/reflection calls, and the model
	// used for grounded web search.
	PlannerModels  []string
	GroundingModel string
	EmbeddingModel string
	EvidenceTable  string

	PeopleSearchURL      string
	PeopleSearchKey      string
	PeopleSearchPerPage  int
	PeopleSearchInterval time.Duration

	TargetCount     int
	MaxLoops        int
	TimeBudget      time.Duration
	QueriesPerRound int
	PageWindow      int

	FetchTimeout   time.Duration
	FetchDelay     time.Duration
	NameThreshold  float64
	FieldThreshold float64
}

func Load() *Config {
	return &Config{
		GoogleApiKey: getEnv("GOOGLE_API_KEY", getEnv("GEMINI_API_KEY", "")),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		Port:         getEnv("PORT", "3000"),

		PlannerModels:  getEnvAsList("PLANNER_MODELS", clients.DefaultPlannerModels),
		GroundingModel: getEnv("GROUNDING_MODEL", "gemini-3-flash-preview"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "gemini-embedding-001"),
		EvidenceTable:  getEnv("EVIDENCE_TABLE", "evidence_embeddings"),

		PeopleSearchURL:      getEnv("PEOPLE_SEARCH_URL", "https://api.apollo.io"),
		PeopleSearchKey:      getEnv("PEOPLE_SEARCH_API_KEY", ""),
		PeopleSearchPerPage:  getEnvAsInt("PEOPLE_SEARCH_PER_PAGE", 10),
		PeopleSearchInterval: getEnvAsDuration("PEOPLE_SEARCH_INTERVAL", time.Second),

		TargetCount:     getEnvAsInt("TARGET_COUNT", 10),
		MaxLoops:        getEnvAsInt("MAX_LOOPS", 3),
		TimeBudget:      getEnvAsDuration("TIME_BUDGET", 8*time.Minute),
		QueriesPerRound: getEnvAsInt("QUERIES_PER_ROUND", 4),
		PageWindow:      getEnvAsInt("PAGE_WINDOW", 3),

		FetchTimeout:   getEnvAsDuration("FETCH_TIMEOUT", 15*time.Second),
		FetchDelay:     getEnvAsDuration("FETCH_DELAY", 500*time.Millisecond),
		NameThreshold:  getEnvAsFloat("NAME_THRESHOLD", 0.85),
		FieldThreshold: getEnvAsFloat("FIELD_THRESHOLD", 0.75),
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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
