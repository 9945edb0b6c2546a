// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Matching settings.
	ConfidenceThreshold float64 // Minimum accepted match score; a score equal to it is accepted.
	TieMargin           float64 // Minimum lead over the runner-up before a match counts as unambiguous.
	ConfusionPairs      string  // Extra transcription corrections, "from=to" comma-separated. Empty keeps defaults.

	// Catalog settings.
	CatalogTTL     time.Duration // Snapshot age after which a rebuild is triggered.
	AllowedDomains string        // Comma-separated domain allowlist. Empty keeps the defaults.

	// Routing settings.
	DebugLevel    string // "none", "low", or "verbose".
	PrimaryAgent  string // "http", "gemini", or "noop".
	FallbackAgent string

	// HTTP agent endpoints.
	PrimaryAgentURL    string
	PrimaryAgentToken  string
	FallbackAgentURL   string
	FallbackAgentToken string

	// Gemini settings.
	GeminiAPIKey string
	GeminiModel  string

	// Home Assistant collaborator settings.
	HassURL   string
	HassToken string

	// History settings.
	HistoryPath string // SQLite file path; empty disables turn history.

	// Auth settings.
	APIKeyHash string // bcrypt hash of the API key; empty disables auth.

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Rate limit settings.
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
	ShutdownHTTPTimeout time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("HANASHI_PORT", 8080),
		ReadTimeout:         envDuration("HANASHI_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("HANASHI_WRITE_TIMEOUT", 90*time.Second),
		ConfidenceThreshold: envFloat("HANASHI_CONFIDENCE_THRESHOLD", 0.88),
		TieMargin:           envFloat("HANASHI_TIE_MARGIN", 0.06),
		ConfusionPairs:      envStr("HANASHI_CONFUSION_PAIRS", ""),
		CatalogTTL:          envDuration("HANASHI_CATALOG_TTL", 60*time.Second),
		AllowedDomains:      envStr("HANASHI_ALLOWED_DOMAINS", ""),
		DebugLevel:          envStr("HANASHI_DEBUG_LEVEL", "none"),
		PrimaryAgent:        envStr("HANASHI_PRIMARY_AGENT", "http"),
		FallbackAgent:       envStr("HANASHI_FALLBACK_AGENT", "gemini"),
		PrimaryAgentURL:     envStr("HANASHI_PRIMARY_AGENT_URL", ""),
		PrimaryAgentToken:   envStr("HANASHI_PRIMARY_AGENT_TOKEN", ""),
		FallbackAgentURL:    envStr("HANASHI_FALLBACK_AGENT_URL", ""),
		FallbackAgentToken:  envStr("HANASHI_FALLBACK_AGENT_TOKEN", ""),
		GeminiAPIKey:        envStr("GEMINI_API_KEY", ""),
		GeminiModel:         envStr("HANASHI_GEMINI_MODEL", "gemini-2.0-flash"),
		HassURL:             envStr("HASS_URL", "http://localhost:8123"),
		HassToken:           envStr("HASS_TOKEN", ""),
		HistoryPath:         envStr("HANASHI_HISTORY_PATH", "hanashi.db"),
		APIKeyHash:          envStr("HANASHI_API_KEY_HASH", ""),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "hanashi"),
		RateLimitEnabled:    envBool("HANASHI_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:        envFloat("HANASHI_RATE_LIMIT_RPS", 5),
		RateLimitBurst:      envInt("HANASHI_RATE_LIMIT_BURST", 10),
		LogLevel:            envStr("HANASHI_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("HANASHI_MAX_REQUEST_BODY_BYTES", 64*1024)),
		ShutdownHTTPTimeout: envDuration("HANASHI_SHUTDOWN_HTTP_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that configuration values are coherent.
func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("config: HANASHI_CONFIDENCE_THRESHOLD must be in [0, 1]")
	}
	if c.TieMargin < 0 || c.TieMargin > 1 {
		return fmt.Errorf("config: HANASHI_TIE_MARGIN must be in [0, 1]")
	}
	if c.CatalogTTL <= 0 {
		return fmt.Errorf("config: HANASHI_CATALOG_TTL must be positive")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: HANASHI_MAX_REQUEST_BODY_BYTES must be positive")
	}
	switch c.DebugLevel {
	case "none", "low", "verbose":
	default:
		return fmt.Errorf("config: HANASHI_DEBUG_LEVEL must be none, low, or verbose (got %q)", c.DebugLevel)
	}
	for _, agent := range []string{c.PrimaryAgent, c.FallbackAgent} {
		switch agent {
		case "http", "gemini", "noop":
		default:
			return fmt.Errorf("config: agent kind must be http, gemini, or noop (got %q)", agent)
		}
	}
	if _, err := c.ParseConfusionPairs(); err != nil {
		return err
	}
	return nil
}

// ParseAllowedDomains parses HANASHI_ALLOWED_DOMAINS ("light,switch,...").
// Returns nil for an empty setting so callers fall back to the defaults.
func (c Config) ParseAllowedDomains() []string {
	if strings.TrimSpace(c.AllowedDomains) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(c.AllowedDomains, ",") {
		if d := strings.TrimSpace(part); d != "" {
			out = append(out, d)
		}
	}
	return out
}

// ParseConfusionPairs parses HANASHI_CONFUSION_PAIRS ("from=to,from=to").
// Returns nil for an empty setting so callers fall back to the defaults.
func (c Config) ParseConfusionPairs() ([][2]string, error) {
	if strings.TrimSpace(c.ConfusionPairs) == "" {
		return nil, nil
	}
	var out [][2]string
	for _, part := range strings.Split(c.ConfusionPairs, ",") {
		from, to, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return nil, fmt.Errorf("config: HANASHI_CONFUSION_PAIRS entry %q is not from=to", part)
		}
		out = append(out, [2]string{strings.TrimSpace(from), strings.TrimSpace(to)})
	}
	return out, nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
