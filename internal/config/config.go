package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by GENESIS_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("GENESIS_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is optional. Without it the server keeps its state in badger.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// BadgerPath is the badger data directory. Empty means an in-memory database.
func BadgerPath() string {
	return os.Getenv("BADGER_PATH")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

func AnthropicAPIKey() string {
	return os.Getenv("ANTHROPIC_API_KEY")
}

func GeminiAPIKey() string {
	return os.Getenv("GEMINI_API_KEY")
}

// LLMProvider returns the configured probe content provider.
// Defaults to "template" if not set.
// Valid values: template, openai, anthropic, gemini, mock
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "template"
	}
	return p
}

// LLMAPIKey returns the API key for the configured LLM provider.
func LLMAPIKey() string {
	switch LLMProvider() {
	case "openai":
		return OpenAIAPIKey()
	case "anthropic":
		return AnthropicAPIKey()
	case "gemini":
		return GeminiAPIKey()
	default:
		return ""
	}
}

// LLMModel overrides the provider's default model.
func LLMModel() string {
	return os.Getenv("LLM_MODEL")
}

// ProbeTimeout bounds a single probe generation call. Defaults to 10s.
func ProbeTimeout() time.Duration {
	return duration("PROBE_TIMEOUT", 10*time.Second)
}

// ProbeTTL is how long a probe can be answered. Defaults to 24h.
func ProbeTTL() time.Duration {
	return duration("PROBE_TTL", 24*time.Hour)
}

func MaxProbesPerSession() int {
	return positiveInt("MAX_PROBES_PER_SESSION", 10)
}

func MaxProbesPerField() int {
	return positiveInt("MAX_PROBES_PER_FIELD", 3)
}

// SessionIdleTimeout is how long a session may sit without activity before the sweeper completes it.
func SessionIdleTimeout() time.Duration {
	return duration("SESSION_IDLE_TIMEOUT", 72*time.Hour)
}

func SweepInterval() time.Duration {
	return duration("SWEEP_INTERVAL", 15*time.Minute)
}

// RateLimitRPS returns requests per second allowed per user.
// Defaults to 20 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 20
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 10 if not set.
func RateLimitBurst() int {
	return positiveInt("RATE_LIMIT_BURST", 10)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// EventChannel is the Postgres NOTIFY channel for events.
func EventChannel() string {
	c := os.Getenv("EVENT_CHANNEL")
	if c == "" {
		return "genesis_events"
	}
	return c
}

func positiveInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
