package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string
	PromptsDir  string

	// L0 raw window caps.
	L0MaxTurns  int
	L0MaxTokens int

	// Per-segment pending buffer caps.
	TopicBufferMaxTurns  int
	TopicBufferMaxTokens int

	// Topic detection cadence.
	TopicCheckIntervalTurns int
	TopicQuickCheckEnabled  bool
	ExtraTopicMarkersCSV    string

	// Recursive summarization triggers.
	L1UpdateTurnThreshold   int
	L1UpdateIntervalMinutes int
	L1MinNewUtterances      int
	SummaryMaxItems         int
	SummaryMaxTokens        int

	// Speaker tracking caps.
	SpeakerBufferMaxTurns  int
	SpeakerBufferMaxTokens int

	// Workflow bounds.
	MaxRetry              int
	EngineConcurrency     int
	MinutesLongTokens     int
	MinutesLongTopics     int
	MinutesChunkTopics    int
	OrchestrateMaxRounds int

	// Recovery.
	RecoveryUtteranceLimit int

	// Summarization sweep cadence (cron spec).
	SweepCronSpec string

	LLMProvider   string // openai | anthropic
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int
}

func FromEnv() Config {
	dataDir := stringOrDefault("PARLEY_DATA_DIR", "/data")

	return Config{
		Environment: stringOrDefault("PARLEY_ENV", "development"),
		HTTPAddr:    stringOrDefault("PARLEY_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      stringOrDefault("PARLEY_DB_PATH", filepath.Join(dataDir, "parley", "meta.sqlite")),
		PromptsDir:  stringOrDefault("PARLEY_PROMPTS_DIR", filepath.Join(dataDir, "parley", "prompts")),

		L0MaxTurns:  intOrDefault("PARLEY_L0_MAX_TURNS", 50),
		L0MaxTokens: intOrDefault("PARLEY_L0_MAX_TOKENS", 3000),

		TopicBufferMaxTurns:  intOrDefault("PARLEY_TOPIC_BUFFER_MAX_TURNS", 40),
		TopicBufferMaxTokens: intOrDefault("PARLEY_TOPIC_BUFFER_MAX_TOKENS", 4000),

		TopicCheckIntervalTurns: intOrDefault("PARLEY_TOPIC_CHECK_INTERVAL_TURNS", 10),
		TopicQuickCheckEnabled:  boolOrDefault("PARLEY_TOPIC_QUICK_CHECK_ENABLED", true),
		ExtraTopicMarkersCSV:    strings.TrimSpace(os.Getenv("PARLEY_TOPIC_MARKERS_EXTRA")),

		L1UpdateTurnThreshold:   intOrDefault("PARLEY_L1_UPDATE_TURN_THRESHOLD", 15),
		L1UpdateIntervalMinutes: intOrDefault("PARLEY_L1_UPDATE_INTERVAL_MINUTES", 5),
		L1MinNewUtterances:      intOrDefault("PARLEY_L1_MIN_NEW_UTTERANCES", 3),
		SummaryMaxItems:         intOrDefault("PARLEY_SUMMARY_MAX_ITEMS", 8),
		SummaryMaxTokens:        intOrDefault("PARLEY_SUMMARY_MAX_TOKENS", 600),

		SpeakerBufferMaxTurns:  intOrDefault("PARLEY_SPEAKER_BUFFER_MAX_TURNS", 10),
		SpeakerBufferMaxTokens: intOrDefault("PARLEY_SPEAKER_BUFFER_MAX_TOKENS", 1200),

		MaxRetry:             intOrDefault("PARLEY_MAX_RETRY", 3),
		EngineConcurrency:    intOrDefault("PARLEY_ENGINE_CONCURRENCY", 4),
		MinutesLongTokens:    intOrDefault("PARLEY_MINUTES_LONG_TOKENS", 3000),
		MinutesLongTopics:    intOrDefault("PARLEY_MINUTES_LONG_TOPICS", 3),
		MinutesChunkTopics:   intOrDefault("PARLEY_MINUTES_CHUNK_TOPICS", 2),
		OrchestrateMaxRounds: intOrDefault("PARLEY_ORCHESTRATE_MAX_ROUNDS", 2),

		RecoveryUtteranceLimit: intOrDefault("PARLEY_RECOVERY_UTTERANCE_LIMIT", 200),

		SweepCronSpec: stringOrDefault("PARLEY_SWEEP_CRON", "@every 1m"),

		LLMProvider:   stringOrDefault("PARLEY_LLM_PROVIDER", "openai"),
		LLMBaseURL:    stringOrDefault("PARLEY_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:     strings.TrimSpace(os.Getenv("PARLEY_LLM_API_KEY")),
		LLMModel:      stringOrDefault("PARLEY_LLM_MODEL", "gpt-4o"),
		LLMTimeoutSec: intOrDefault("PARLEY_LLM_TIMEOUT_SECONDS", 60),
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
