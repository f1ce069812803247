package config

import (
	"strconv"
	"strings"
	"time"
)

// Config stores environment configuration for Helmsman.
type Config struct {
	Port        string
	DatabaseURL string
	RedisAddrs  []string
	RedisDB     int

	LLMProvider  string
	LLMModel     string
	LLMAPIKey    string
	LLMAPIURL    string
	LLMMaxTokens int

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingAPIURL   string

	// Pipeline ceilings
	MaxSteps               int
	MaxToolCallsPerRequest int
	MaxRecursiveDepth      int
	MaxInputRunes          int
	ToolResultMaxBytes     int
	MaxHistoryMessages     int

	// Event stream backpressure
	ChannelCapacity   int
	DropDeltaWhenFull bool

	// Circuit breaker
	BreakerFailureThreshold    int
	BreakerSamplingDuration    time.Duration
	BreakerBreakDuration       time.Duration
	BreakerHalfOpenMaxAttempts int

	// Retry
	RetryMaxRetries        int
	RetryInitialDelay      time.Duration
	RetryMaxDelay          time.Duration
	RetryBackoffMultiplier float64
	RetryJitterFactor      float64
	RetryTotalTimeout      time.Duration
	RetryableStatusCodes   []int

	// Semantic cache
	CacheEnabled               bool
	CacheAllowSensitiveContent bool
	CacheMode                  string
	CacheTTL                   time.Duration

	CatalogPath string
}

// LoadConfig loads the Helmsman configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:        GetEnv("PORT", "18040"),
		DatabaseURL: RequireEnv("DATABASE_URL"),
		RedisAddrs:  parseList(GetEnv("REDIS_ADDRS", "")),
		RedisDB:     GetEnvInt("REDIS_DB", 0),

		LLMProvider:  GetEnv("LLM_PROVIDER", "openai"),
		LLMModel:     GetEnv("LLM_MODEL", ""),
		LLMAPIKey:    GetEnv("LLM_API_KEY", ""),
		LLMAPIURL:    GetEnv("LLM_API_URL", ""),
		LLMMaxTokens: GetEnvInt("LLM_MAX_TOKENS", 4096),

		EmbeddingProvider: GetEnv("EMBEDDING_PROVIDER", GetEnv("LLM_PROVIDER", "")),
		EmbeddingModel:    GetEnv("EMBEDDING_MODEL", ""),
		EmbeddingAPIKey:   GetEnv("EMBEDDING_API_KEY", GetEnv("LLM_API_KEY", "")),
		EmbeddingAPIURL:   GetEnv("EMBEDDING_API_URL", GetEnv("LLM_API_URL", "")),

		MaxSteps:               GetEnvInt("HELMSMAN_MAX_STEPS", 6),
		MaxToolCallsPerRequest: GetEnvInt("HELMSMAN_MAX_TOOL_CALLS", 12),
		MaxRecursiveDepth:      GetEnvInt("HELMSMAN_MAX_RECURSIVE_DEPTH", 6),
		MaxInputRunes:          GetEnvInt("HELMSMAN_MAX_INPUT_RUNES", 10000),
		ToolResultMaxBytes:     GetEnvInt("HELMSMAN_TOOL_RESULT_MAX_BYTES", 16384),
		MaxHistoryMessages:     GetEnvInt("HELMSMAN_MAX_HISTORY_MESSAGES", 20),

		ChannelCapacity:   GetEnvInt("HELMSMAN_CHANNEL_CAPACITY", 256),
		DropDeltaWhenFull: GetEnvBool("HELMSMAN_DROP_DELTA_WHEN_FULL", true),

		BreakerFailureThreshold:    GetEnvInt("BREAKER_FAILURE_THRESHOLD", 10),
		BreakerSamplingDuration:    GetEnvDuration("BREAKER_SAMPLING_DURATION", 30*time.Second),
		BreakerBreakDuration:       GetEnvDuration("BREAKER_BREAK_DURATION", 15*time.Second),
		BreakerHalfOpenMaxAttempts: GetEnvInt("BREAKER_HALF_OPEN_MAX_ATTEMPTS", 1),

		RetryMaxRetries:        GetEnvInt("RETRY_MAX_RETRIES", 3),
		RetryInitialDelay:      GetEnvDuration("RETRY_INITIAL_DELAY", 100*time.Millisecond),
		RetryMaxDelay:          GetEnvDuration("RETRY_MAX_DELAY", 5*time.Second),
		RetryBackoffMultiplier: GetEnvFloat("RETRY_BACKOFF_MULTIPLIER", 2.0),
		RetryJitterFactor:      GetEnvFloat("RETRY_JITTER_FACTOR", 0.1),
		RetryTotalTimeout:      GetEnvDuration("RETRY_TOTAL_TIMEOUT", 30*time.Second),
		RetryableStatusCodes:   parseIntList(GetEnv("RETRY_STATUS_CODES", "")),

		CacheEnabled:               GetEnvBool("SEMCACHE_ENABLED", true),
		CacheAllowSensitiveContent: GetEnvBool("SEMCACHE_ALLOW_SENSITIVE", false),
		CacheMode:                  GetEnv("SEMCACHE_MODE", "exact"),
		CacheTTL:                   GetEnvDuration("SEMCACHE_TTL", 6*time.Hour),

		CatalogPath: GetEnv("HELMSMAN_CATALOG_PATH", ""),
	}
}

func parseIntList(s string) []int {
	var result []int
	for _, item := range parseList(s) {
		n, err := strconv.Atoi(item)
		if err != nil {
			continue
		}
		result = append(result, n)
	}
	return result
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
