package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

//////////////////////////////////////////////////////////////
// CONFIGURATION
//////////////////////////////////////////////////////////////

const (
	DEFAULT_WAKE_HOUR_START = 8
	DEFAULT_WAKE_HOUR_END   = 22  // exclusive
	DEFAULT_TIMEZONE_OFFSET = 5.5 // IST

	DEFAULT_SESSION_DB = "file:bot.db?_foreign_keys=on"
	DEFAULT_TIMEOUT    = 20 * time.Second

	DEFAULT_OLLAMA_URL = "http://localhost:11434/api/chat"
)

// LLMConfig selects and configures the inference backend.
type LLMConfig struct {
	Provider string // gemini | openai | ark | ollama
	Model    string

	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	ArkAPIKey     string
	ArkBaseURL    string
	OllamaURL     string
}

// ModerationConfig is built once at startup and never mutated.
type ModerationConfig struct {
	Hours          WakingHours
	RulesPrompt    string
	Timeout        time.Duration
	ModeratedGroup map[string]bool // empty = every group
}

type Config struct {
	Moderation ModerationConfig
	LLM        LLMConfig

	SessionDB     string
	AuditDisabled bool
	MetricsAddr   string

	LogFormat string
	LogLevel  string
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getFloatEnv(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, v, err)
	}
	return f, nil
}

func getBoolEnv(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return def
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// Bare numbers are seconds.
		secs, ferr := strconv.ParseFloat(v, 64)
		if ferr != nil {
			return 0, fmt.Errorf("%s: invalid duration %q: %w", key, v, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	return d, nil
}

// parseGroups splits a comma separated list of group JIDs into a set.
func parseGroups(raw string) map[string]bool {
	groups := make(map[string]bool)
	for _, g := range strings.Split(raw, ",") {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if !strings.Contains(g, "@") {
			g += "@g.us"
		}
		groups[g] = true
	}
	return groups
}

// LoadConfig reads the environment. A missing inference credential is not an
// error here; NewGenerator turns it into an unconfigured generator.
func LoadConfig() (*Config, error) {
	start, err := getIntEnv("WAKE_HOUR_START", DEFAULT_WAKE_HOUR_START)
	if err != nil {
		return nil, err
	}
	end, err := getIntEnv("WAKE_HOUR_END", DEFAULT_WAKE_HOUR_END)
	if err != nil {
		return nil, err
	}
	offset, err := getFloatEnv("TIMEZONE_OFFSET", DEFAULT_TIMEZONE_OFFSET)
	if err != nil {
		return nil, err
	}
	hours := WakingHours{Start: start, End: end, Offset: offset}
	if err := hours.Validate(); err != nil {
		return nil, err
	}

	timeout, err := getDurationEnv("MODERATION_TIMEOUT", DEFAULT_TIMEOUT)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("MODERATION_TIMEOUT must be positive, got %s", timeout)
	}

	prompt := DefaultRulesPrompt
	if path := getEnv("RULES_PROMPT_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read RULES_PROMPT_FILE: %w", err)
		}
		prompt = string(data)
	}
	if err := ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderOpenAI, ProviderArk, ProviderOllama:
	default:
		return nil, fmt.Errorf("LLM_PROVIDER: unknown provider %q", provider)
	}

	return &Config{
		Moderation: ModerationConfig{
			Hours:          hours,
			RulesPrompt:    prompt,
			Timeout:        timeout,
			ModeratedGroup: parseGroups(os.Getenv("MODERATED_GROUPS")),
		},
		LLM: LLMConfig{
			Provider:      provider,
			Model:         getEnv("LLM_MODEL", ""),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			ArkAPIKey:     getEnv("ARK_API_KEY", ""),
			ArkBaseURL:    getEnv("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			OllamaURL:     getEnv("OLLAMA_URL", DEFAULT_OLLAMA_URL),
		},
		SessionDB:     getEnv("SESSION_DB", DEFAULT_SESSION_DB),
		AuditDisabled: getBoolEnv("AUDIT_DISABLED", false),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}, nil
}
